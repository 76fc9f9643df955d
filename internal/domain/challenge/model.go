// Package challenge defines the challenge catalog model: a time-boxed,
// optionally collective savings goal users can join.
package challenge

import "time"

// Type classifies the cadence of a challenge.
type Type string

const (
	TypeDaily   Type = "DAILY"
	TypeWeekly  Type = "WEEKLY"
	TypeMonthly Type = "MONTHLY"
	TypeCustom  Type = "CUSTOM"
)

// Status is the lifecycle state of a challenge.
type Status string

const (
	StatusUpcoming  Status = "UPCOMING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Visibility controls who can discover a challenge.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityFriends Visibility = "FRIENDS"
)

// Challenge is a savings challenge definition. All amounts are minor units
// (centimes) in the challenge currency. EndDate is nil for open-ended
// challenges.
type Challenge struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Type             Type       `json:"type"`
	Status           Status     `json:"status"`
	StartDate        time.Time  `json:"startDate"`
	EndDate          *time.Time `json:"endDate,omitempty"`
	TargetAmount     int64      `json:"targetAmount"`
	CurrentAmount    int64      `json:"currentAmount"`
	Currency         string     `json:"currency"`
	Visibility       Visibility `json:"visibility"`
	CreatorID        string     `json:"creatorId"`
	ParticipantCount int        `json:"participantCount"`
	IsOfficial       bool       `json:"isOfficial"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// EffectiveStatus derives the lifecycle state from the clock. CANCELLED and
// COMPLETED are server-authoritative and never overridden; the
// UPCOMING/ACTIVE boundary is purely a function of time, so a stale cached
// status is corrected here rather than stored.
func (c Challenge) EffectiveStatus(now time.Time) Status {
	switch c.Status {
	case StatusCancelled, StatusCompleted:
		return c.Status
	}
	if now.Before(c.StartDate) {
		return StatusUpcoming
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return StatusCompleted
	}
	return StatusActive
}

// InWindow reports whether now falls within [StartDate, EndDate], treating a
// nil EndDate as open-ended.
func (c Challenge) InWindow(now time.Time) bool {
	if now.Before(c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}

// Participant is a row of the participant listing for a challenge. Display
// data only; it is never cached beyond the most recent response.
type Participant struct {
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	CurrentAmount int64     `json:"currentAmount"`
	TargetAmount  int64     `json:"targetAmount"`
	Rank          int       `json:"rank,omitempty"`
	JoinedAt      time.Time `json:"joinedAt"`
}
