// Package session implements the per-user synchronization engine: an
// explicitly owned state object holding the ledger cache, with join/leave/
// abandon orchestration and validated, rollback-safe transaction submission
// on top of the API client.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/savemate/ledgersync/internal/apiclient"
	"github.com/savemate/ledgersync/internal/domain/challenge"
	"github.com/savemate/ledgersync/internal/domain/participation"
	"github.com/savemate/ledgersync/internal/ledger"
	"github.com/savemate/ledgersync/internal/metrics"
	"github.com/savemate/ledgersync/pkg/logger"
)

// Local validation failures. All wrap ErrValidation and are rejected before
// any network call is made.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be a positive number", ErrValidation)
	ErrInsufficientBalance = fmt.Errorf("%w: withdrawal exceeds current balance", ErrValidation)
	ErrFutureDate          = fmt.Errorf("%w: transaction date is in the future", ErrValidation)
	ErrHasBalance          = fmt.Errorf("%w: cannot leave with a non-zero balance", ErrValidation)
)

// State failures.
var (
	ErrNoParticipation   = errors.New("no participation for challenge")
	ErrNotActive         = errors.New("participation is not active")
	ErrNotTransactable   = errors.New("challenge does not accept transactions")
	ErrOperationInFlight = errors.New("operation already in flight")
)

// API is the slice of the API client the session depends on. *apiclient.Client
// satisfies it; tests substitute a fake.
type API interface {
	ListChallenges(ctx context.Context, f apiclient.Filter) ([]challenge.Challenge, apiclient.PageInfo, error)
	GetChallenge(ctx context.Context, id string) (challenge.Challenge, error)
	ListParticipants(ctx context.Context, id string) ([]challenge.Participant, error)
	Join(ctx context.Context, id string, req apiclient.JoinRequest) (apiclient.JoinResponse, error)
	Leave(ctx context.Context, id string) error
	Abandon(ctx context.Context, id string, req apiclient.AbandonRequest) error
	CreateTransaction(ctx context.Context, id string, req apiclient.TransactionRequest) (apiclient.TransactionResponse, error)
	ListTransactions(ctx context.Context, id string) ([]participation.Transaction, error)
	GetGoal(ctx context.Context, id string) (participation.Goal, error)
	PutGoal(ctx context.Context, id string, req apiclient.GoalRequest) (participation.Goal, error)
	UserChallenges(ctx context.Context, userID string, status participation.Status) ([]participation.Participation, error)
}

// Options tunes session construction. Zero values get sensible defaults.
type Options struct {
	Cache     *ledger.Cache
	Snapshots ledger.SnapshotStore
	Log       *logger.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Session owns one user's ledger cache and is the only writer to it. It is
// safe for concurrent use; per-operation in-flight gates reject duplicate
// concurrent submissions of the same operation on the same challenge.
type Session struct {
	userID    string
	api       API
	cache     *ledger.Cache
	snapshots ledger.SnapshotStore
	log       *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]bool // op + ":" + challengeID
	active   string          // challenge id the UI is focused on, "" = none
}

// New creates a session for a user against an API.
func New(userID string, api API, opts Options) *Session {
	cache := opts.Cache
	if cache == nil {
		cache = ledger.New()
	}
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("session")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		userID:    userID,
		api:       api,
		cache:     cache,
		snapshots: opts.Snapshots,
		log:       log.With("user", userID),
		now:       now,
		inflight:  make(map[string]bool),
	}
}

// UserID returns the owning user id.
func (s *Session) UserID() string { return s.userID }

// Cache exposes the ledger cache for read-only derivation (the progress
// aggregator). Mutation goes through session operations only.
func (s *Session) Cache() *ledger.Cache { return s.cache }

// SetActiveChallenge records the challenge the caller's UI is focused on.
// Responses that arrive for a different challenge after focus moved are
// treated as stale and not applied to the cache.
func (s *Session) SetActiveChallenge(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = id
}

// ActiveChallenge returns the currently focused challenge id.
func (s *Session) ActiveChallenge() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// fresh reports whether an update targeting challengeID may still be
// applied. With no focus set, everything is fresh.
func (s *Session) fresh(challengeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == "" || s.active == challengeID
}

// acquire takes the in-flight gate for (op, challengeID). The second caller
// is rejected, never run concurrently with the first.
func (s *Session) acquire(op, challengeID string) error {
	key := op + ":" + challengeID
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] {
		return fmt.Errorf("%s %s: %w", op, challengeID, ErrOperationInFlight)
	}
	s.inflight[key] = true
	return nil
}

func (s *Session) release(op, challengeID string) {
	key := op + ":" + challengeID
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

// ---------------------------------------------------------------------------
// Participation controller
// ---------------------------------------------------------------------------

// JoinOptions parameterizes a join.
type JoinOptions struct {
	TargetAmount int64
	Mode         participation.Mode
	Motivation   string
}

// Join enrolls the user in a challenge. Joins are never applied
// optimistically: a false-positive join would gate subsequent financial
// operations on state the server rejected, so the cache is written only from
// the server's response.
func (s *Session) Join(ctx context.Context, challengeID string, opts JoinOptions) (participation.Participation, error) {
	if opts.TargetAmount <= 0 {
		return participation.Participation{}, fmt.Errorf("join %s: %w", challengeID, ErrInvalidAmount)
	}
	if opts.Mode == "" {
		opts.Mode = participation.ModeFree
	}

	if err := s.acquire("join", challengeID); err != nil {
		return participation.Participation{}, err
	}
	defer s.release("join", challengeID)

	// Defense in depth; the server is authoritative and rejects duplicates
	// regardless.
	if p, ok := s.cache.Participation(challengeID); ok {
		if p.Status == participation.StatusAbandoned {
			return participation.Participation{}, fmt.Errorf("join %s: %w", challengeID, apiclient.ErrAlreadyAbandoned)
		}
		return participation.Participation{}, fmt.Errorf("join %s: %w", challengeID, apiclient.ErrAlreadyJoined)
	}

	resp, err := s.api.Join(ctx, challengeID, apiclient.JoinRequest{
		TargetAmount: opts.TargetAmount,
		Mode:         opts.Mode,
		Motivation:   opts.Motivation,
	})
	if err != nil {
		metrics.ObserveOperation("join", "failure")
		return participation.Participation{}, fmt.Errorf("join %s: %w", challengeID, err)
	}

	s.cache.PutParticipation(resp.Participant)
	if resp.Goal != nil {
		s.cache.PutGoal(*resp.Goal)
	}
	metrics.ObserveOperation("join", "success")

	// Refresh participant count and collective totals. Best effort; the join
	// itself already succeeded.
	if err := s.RefreshChallenge(ctx, challengeID); err != nil {
		s.log.Warnf("post-join challenge refresh failed for %s: %v", challengeID, err)
	}
	return resp.Participant, nil
}

// Abandon permanently abandons an active participation. Calling it again on
// an already-abandoned participation is an idempotent no-op.
func (s *Session) Abandon(ctx context.Context, challengeID, reason, category, comment string) (participation.Participation, error) {
	p, ok := s.cache.Participation(challengeID)
	if !ok {
		return participation.Participation{}, fmt.Errorf("abandon %s: %w", challengeID, ErrNoParticipation)
	}
	if p.Status == participation.StatusAbandoned {
		return p, nil
	}
	if p.Status != participation.StatusActive {
		return participation.Participation{}, fmt.Errorf("abandon %s: %w", challengeID, ErrNotActive)
	}

	if err := s.acquire("abandon", challengeID); err != nil {
		return participation.Participation{}, err
	}
	defer s.release("abandon", challengeID)

	err := s.api.Abandon(ctx, challengeID, apiclient.AbandonRequest{
		Reason:   reason,
		Category: category,
		Comment:  comment,
	})
	if err != nil {
		// The participation stays ACTIVE; no partial state is exposed.
		metrics.ObserveOperation("abandon", "failure")
		return participation.Participation{}, fmt.Errorf("abandon %s: %w", challengeID, err)
	}

	now := s.now().UTC()
	p.Status = participation.StatusAbandoned
	p.AbandonReason = reason
	p.AbandonCategory = category
	p.AbandonComment = comment
	p.AbandonedAt = &now
	s.cache.PutParticipation(p)
	metrics.ObserveOperation("abandon", "success")
	return p, nil
}

// Leave is the soft exit used before any financial commitment: no reason
// capture, no penalty. The server enforces the zero-balance rule; the local
// pre-check just saves the round trip.
func (s *Session) Leave(ctx context.Context, challengeID string) error {
	p, ok := s.cache.Participation(challengeID)
	if !ok {
		return fmt.Errorf("leave %s: %w", challengeID, ErrNoParticipation)
	}
	if p.Status != participation.StatusActive {
		return fmt.Errorf("leave %s: %w", challengeID, ErrNotActive)
	}
	if p.CurrentAmount != 0 {
		return fmt.Errorf("leave %s: %w", challengeID, ErrHasBalance)
	}

	if err := s.acquire("leave", challengeID); err != nil {
		return err
	}
	defer s.release("leave", challengeID)

	if err := s.api.Leave(ctx, challengeID); err != nil {
		metrics.ObserveOperation("leave", "failure")
		return fmt.Errorf("leave %s: %w", challengeID, err)
	}
	s.cache.RemoveParticipation(challengeID)
	metrics.ObserveOperation("leave", "success")
	return nil
}

// ---------------------------------------------------------------------------
// Refresh and read operations
// ---------------------------------------------------------------------------

// RefreshChallenge refetches one challenge into the cache.
func (s *Session) RefreshChallenge(ctx context.Context, challengeID string) error {
	ch, err := s.api.GetChallenge(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("refresh challenge %s: %w", challengeID, err)
	}
	if !s.fresh(challengeID) {
		s.log.Debugf("dropping stale challenge refresh for %s", challengeID)
		return nil
	}
	s.cache.PutChallenge(ch)
	return nil
}

// BrowseChallenges fetches a filtered page of the catalog into the cache and
// returns it.
func (s *Session) BrowseChallenges(ctx context.Context, f apiclient.Filter) ([]challenge.Challenge, apiclient.PageInfo, error) {
	items, info, err := s.api.ListChallenges(ctx, f)
	if err != nil {
		return nil, apiclient.PageInfo{}, fmt.Errorf("browse challenges: %w", err)
	}
	s.cache.PutChallenges(items)
	return items, info, nil
}

// Participants fetches the participant roster for display. Not cached.
func (s *Session) Participants(ctx context.Context, challengeID string) ([]challenge.Participant, error) {
	return s.api.ListParticipants(ctx, challengeID)
}

// MyChallenges refetches the user's participation records, optionally
// filtered by status, replacing cached copies.
func (s *Session) MyChallenges(ctx context.Context, status participation.Status) ([]participation.Participation, error) {
	parts, err := s.api.UserChallenges(ctx, s.userID, status)
	if err != nil {
		return nil, fmt.Errorf("my challenges: %w", err)
	}
	for _, p := range parts {
		s.cache.PutParticipation(p)
	}
	return parts, nil
}

// RefreshTransactions refetches the authoritative transaction history for a
// challenge, replacing the cached copy.
func (s *Session) RefreshTransactions(ctx context.Context, challengeID string) ([]participation.Transaction, error) {
	txs, err := s.api.ListTransactions(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("refresh transactions %s: %w", challengeID, err)
	}
	if s.fresh(challengeID) {
		s.cache.ReplaceTransactions(challengeID, txs)
	}
	return txs, nil
}

// Transactions returns the cached transaction history.
func (s *Session) Transactions(challengeID string) []participation.Transaction {
	return s.cache.Transactions(challengeID)
}

// Participation returns the cached participation record.
func (s *Session) Participation(challengeID string) (participation.Participation, bool) {
	return s.cache.Participation(challengeID)
}

// ConfigureGoal creates or replaces the user's goal for a challenge.
func (s *Session) ConfigureGoal(ctx context.Context, challengeID string, req apiclient.GoalRequest) (participation.Goal, error) {
	if req.TargetAmount <= 0 {
		return participation.Goal{}, fmt.Errorf("configure goal %s: %w", challengeID, ErrInvalidAmount)
	}
	goal, err := s.api.PutGoal(ctx, challengeID, req)
	if err != nil {
		return participation.Goal{}, fmt.Errorf("configure goal %s: %w", challengeID, err)
	}
	s.cache.PutGoal(goal)
	return goal, nil
}

// Goal returns the user's goal, from cache when present, otherwise fetched.
func (s *Session) Goal(ctx context.Context, challengeID string) (participation.Goal, error) {
	if g, ok := s.cache.Goal(challengeID); ok {
		return g, nil
	}
	g, err := s.api.GetGoal(ctx, challengeID)
	if err != nil {
		return participation.Goal{}, fmt.Errorf("goal %s: %w", challengeID, err)
	}
	s.cache.PutGoal(g)
	return g, nil
}

// ---------------------------------------------------------------------------
// Snapshot persistence
// ---------------------------------------------------------------------------

// ErrNoSnapshotStore is returned by snapshot operations on a session built
// without a SnapshotStore.
var ErrNoSnapshotStore = errors.New("session has no snapshot store")

// Snapshot serializes the cache and persists it under the session's user id.
// Snapshots are advisory; the server remains the source of truth after a
// restore.
func (s *Session) Snapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return ErrNoSnapshotStore
	}
	data, err := s.cache.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := s.snapshots.Save(ctx, s.userID, data); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// RestoreSnapshot loads the persisted snapshot into the cache. An
// incompatible or missing snapshot leaves the cache untouched.
func (s *Session) RestoreSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return ErrNoSnapshotStore
	}
	data, err := s.snapshots.Load(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if err := s.cache.RestoreSnapshot(data); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}
