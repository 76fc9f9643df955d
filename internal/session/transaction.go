package session

import (
	"context"
	"fmt"
	"time"

	"github.com/savemate/ledgersync/internal/apiclient"
	"github.com/savemate/ledgersync/internal/domain/participation"
	"github.com/savemate/ledgersync/internal/metrics"
	"github.com/savemate/ledgersync/internal/progress"
)

// TransactionInput describes a deposit or withdrawal to record. Date, when
// supplied, must not be in the future.
type TransactionInput struct {
	Amount      int64
	Type        participation.TransactionType
	Description string
	Date        *time.Time
}

// TransactionResult is the discriminated outcome of a successful
// AddTransaction: the created transaction, the server-authoritative balance,
// and the locally predicted balance it replaced. Mismatch flags a race with
// a concurrent transaction from another session; the server value has
// already won. Stale means focus moved away mid-flight and the cache was
// deliberately left at its pre-operation state.
type TransactionResult struct {
	Transaction      participation.Transaction
	NewBalance       int64
	PredictedBalance int64
	Mismatch         bool
	Stale            bool
}

// AddTransaction validates, optimistically applies, submits and reconciles
// one deposit or withdrawal. On any failure the optimistic balance is rolled
// back and the last authoritative state restored; the failed transaction
// never enters the history.
func (s *Session) AddTransaction(ctx context.Context, challengeID string, in TransactionInput) (TransactionResult, error) {
	// One in-flight transaction per challenge; a second concurrent call is
	// rejected, never run alongside the first.
	if err := s.acquire("transaction", challengeID); err != nil {
		return TransactionResult{}, err
	}
	defer s.release("transaction", challengeID)

	p, ok := s.cache.Participation(challengeID)
	if !ok {
		return TransactionResult{}, fmt.Errorf("transaction %s: %w", challengeID, ErrNoParticipation)
	}

	// All local validation happens before any network call, including the
	// challenge refetch below.
	now := s.now()
	if in.Amount <= 0 {
		return TransactionResult{}, fmt.Errorf("transaction %s: %w", challengeID, ErrInvalidAmount)
	}
	if in.Type == participation.TypeWithdrawal && in.Amount > p.CurrentAmount {
		return TransactionResult{}, fmt.Errorf("transaction %s: %w", challengeID, ErrInsufficientBalance)
	}
	if in.Date != nil && in.Date.After(now) {
		return TransactionResult{}, fmt.Errorf("transaction %s: %w", challengeID, ErrFutureDate)
	}

	ch, ok := s.cache.Challenge(challengeID)
	if !ok {
		fetched, err := s.api.GetChallenge(ctx, challengeID)
		if err != nil {
			return TransactionResult{}, fmt.Errorf("transaction %s: %w", challengeID, err)
		}
		s.cache.PutChallenge(fetched)
		ch = fetched
	}

	if !progress.CanTransact(p, ch, now) {
		return TransactionResult{}, fmt.Errorf("transaction %s: %w", challengeID, ErrNotTransactable)
	}

	predicted := predictBalance(p.CurrentAmount, in)

	// Optimistic window: reflect the prospective balance immediately, keeping
	// the previous authoritative balance for rollback.
	prev := p
	applied := false
	if s.fresh(challengeID) {
		s.writeBalance(challengeID, predicted)
		applied = true
	}

	resp, err := s.api.CreateTransaction(ctx, challengeID, apiclient.TransactionRequest{
		Amount:      in.Amount,
		Type:        in.Type,
		Description: in.Description,
		Date:        in.Date,
	})
	if err != nil {
		if applied {
			s.writeBalance(challengeID, prev.CurrentAmount)
			metrics.ObserveRollback()
		}
		metrics.ObserveOperation("transaction", "failure")
		return TransactionResult{}, fmt.Errorf("transaction %s: %w", challengeID, err)
	}

	if !s.fresh(challengeID) {
		// Late response after focus moved away: restore the last
		// authoritative balance and report the outcome without touching the
		// cache further.
		if applied {
			s.writeBalance(challengeID, prev.CurrentAmount)
		}
		s.log.Debugf("dropping stale transaction reconciliation for %s", challengeID)
		return TransactionResult{
			Transaction:      resp.Transaction,
			NewBalance:       resp.NewBalance,
			PredictedBalance: predicted,
			Stale:            true,
		}, nil
	}

	mismatch := resp.NewBalance != predicted
	if mismatch {
		// Race with a concurrent transaction from another session. The server
		// value wins; never re-derive locally.
		metrics.ObserveMismatch()
		s.log.Warnf("balance reconciliation mismatch for %s: predicted %d, server %d",
			challengeID, predicted, resp.NewBalance)
	}

	// Reconcile against the record as it is NOW, not the pre-flight snapshot:
	// an abandon that landed while the request was in flight must keep its
	// terminal status, and completion is only ever a forward transition.
	if cur, ok := s.cache.Participation(challengeID); ok {
		cur.CurrentAmount = resp.NewBalance
		txDate := resp.Transaction.Date
		cur.LastTransactionAt = &txDate
		if cur.TargetAmount > 0 &&
			cur.CurrentAmount >= cur.TargetAmount &&
			participation.ValidTransition(cur.Status, participation.StatusCompleted) {
			cur.Status = participation.StatusCompleted
		}
		s.cache.PutParticipation(cur)
		s.cache.AppendTransaction(challengeID, resp.Transaction)
	}
	metrics.ObserveOperation("transaction", "success")

	return TransactionResult{
		Transaction:      resp.Transaction,
		NewBalance:       resp.NewBalance,
		PredictedBalance: predicted,
		Mismatch:         mismatch,
	}, nil
}

// writeBalance writes a balance onto the cached record while preserving
// everything else about it as it currently stands. A status change that
// landed mid-flight (for example an abandon) is never undone by an
// optimistic apply or a rollback.
func (s *Session) writeBalance(challengeID string, balance int64) {
	cur, ok := s.cache.Participation(challengeID)
	if !ok {
		return
	}
	cur.CurrentAmount = balance
	s.cache.PutParticipation(cur)
}

// predictBalance computes the prospective balance of an optimistic update.
// The zero floor on withdrawals is a display-safety clamp; an over-balance
// withdrawal was already rejected before this point.
func predictBalance(balance int64, in TransactionInput) int64 {
	if in.Type == participation.TypeDeposit {
		return balance + in.Amount
	}
	if next := balance - in.Amount; next > 0 {
		return next
	}
	return 0
}
