// Package participation defines a user's enrollment in a challenge, the
// transactions recorded against it, and the participation state machine.
package participation

import "time"

// Mode distinguishes self-set targets from imposed ones.
type Mode string

const (
	ModeFree   Mode = "FREE"
	ModeForced Mode = "FORCED"
)

// Status is the participation lifecycle state. Completed and Abandoned are
// terminal.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusAbandoned Status = "ABANDONED"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// ValidTransition reports whether the state machine permits from → to.
// ACTIVE may complete or abandon; terminal states never change.
func ValidTransition(from, to Status) bool {
	if from == to {
		return false
	}
	return from == StatusActive && (to == StatusCompleted || to == StatusAbandoned)
}

// Participation is a user's personal enrollment and progress record against a
// challenge. At most one non-ABANDONED participation exists per
// (user, challenge) pair; the server enforces this and the cache mirrors it.
type Participation struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	ChallengeID       string     `json:"challengeId"`
	Mode              Mode       `json:"mode"`
	TargetAmount      int64      `json:"targetAmount"`
	CurrentAmount     int64      `json:"currentAmount"`
	Status            Status     `json:"status"`
	AbandonReason     string     `json:"abandonReason,omitempty"`
	AbandonCategory   string     `json:"abandonCategory,omitempty"`
	AbandonComment    string     `json:"abandonComment,omitempty"`
	AbandonedAt       *time.Time `json:"abandonedAt,omitempty"`
	LastTransactionAt *time.Time `json:"lastTransactionAt,omitempty"`
	JoinedAt          time.Time  `json:"joinedAt"`
}

// TransactionType discriminates ledger entries.
type TransactionType string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
)

// Transaction is an immutable ledger entry owned by a participation.
// Corrections are made by appending an offsetting entry, never by edit or
// delete. BalanceAfter is the server-authoritative balance snapshot.
type Transaction struct {
	ID              string          `json:"id"`
	ParticipationID string          `json:"participationId"`
	Type            TransactionType `json:"type"`
	Amount          int64           `json:"amount"`
	Description     string          `json:"description,omitempty"`
	Date            time.Time       `json:"date"`
	BalanceAfter    int64           `json:"balanceAfter"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Goal is the optional descriptive refinement of a participation. It never
// affects balance invariants.
type Goal struct {
	ChallengeID      string `json:"challengeId"`
	Currency         string `json:"currency"`
	TargetAmount     int64  `json:"targetAmount"`
	Mode             Mode   `json:"mode"`
	MonthlyIncome    int64  `json:"monthlyIncome,omitempty"`
	IsVariableIncome bool   `json:"isVariableIncome,omitempty"`
	Motivation       string `json:"motivation,omitempty"`
	AdditionalNotes  string `json:"additionalNotes,omitempty"`
}
