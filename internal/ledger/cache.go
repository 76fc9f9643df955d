// Package ledger holds the client-side mirror of server state: the challenge
// catalog, the user's participations and goals, and per-challenge transaction
// history. The cache owns no business rules; the server is the source of
// truth and divergence is resolved by refetch-and-replace.
package ledger

import (
	"sort"
	"sync"

	"github.com/savemate/ledgersync/internal/domain/challenge"
	"github.com/savemate/ledgersync/internal/domain/participation"
)

// Cache is a thread-safe in-memory mirror. All reads return copies so
// callers can never mutate cached state in place; all writes replace whole
// records.
type Cache struct {
	mu             sync.RWMutex
	challenges     map[string]challenge.Challenge
	participations map[string]participation.Participation // keyed by challenge id
	goals          map[string]participation.Goal          // keyed by challenge id
	transactions   map[string][]participation.Transaction // keyed by challenge id
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		challenges:     make(map[string]challenge.Challenge),
		participations: make(map[string]participation.Participation),
		goals:          make(map[string]participation.Goal),
		transactions:   make(map[string][]participation.Transaction),
	}
}

// Challenge catalog --------------------------------------------------------

// PutChallenge replaces the cached copy of a challenge.
func (c *Cache) PutChallenge(ch challenge.Challenge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challenges[ch.ID] = ch
}

// PutChallenges replaces the cached copies of a batch of challenges.
func (c *Cache) PutChallenges(chs []challenge.Challenge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range chs {
		c.challenges[ch.ID] = ch
	}
}

// Challenge returns the cached challenge, if present.
func (c *Cache) Challenge(id string) (challenge.Challenge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.challenges[id]
	return ch, ok
}

// Challenges returns all cached challenges, ordered by start date then id
// for deterministic iteration.
func (c *Cache) Challenges() []challenge.Challenge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]challenge.Challenge, 0, len(c.challenges))
	for _, ch := range c.challenges {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Participations -----------------------------------------------------------

// PutParticipation replaces the cached participation for its challenge.
func (c *Cache) PutParticipation(p participation.Participation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participations[p.ChallengeID] = p
}

// Participation returns the cached participation for a challenge.
func (c *Cache) Participation(challengeID string) (participation.Participation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.participations[challengeID]
	return p, ok
}

// RemoveParticipation drops the cached participation, goal and history for a
// challenge. Used after a soft leave, which deletes the record server-side.
func (c *Cache) RemoveParticipation(challengeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.participations, challengeID)
	delete(c.goals, challengeID)
	delete(c.transactions, challengeID)
}

// Participations returns all cached participations.
func (c *Cache) Participations() []participation.Participation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]participation.Participation, 0, len(c.participations))
	for _, p := range c.participations {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChallengeID < out[j].ChallengeID })
	return out
}

// Goals --------------------------------------------------------------------

// PutGoal replaces the cached goal for a challenge.
func (c *Cache) PutGoal(g participation.Goal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goals[g.ChallengeID] = g
}

// Goal returns the cached goal for a challenge.
func (c *Cache) Goal(challengeID string) (participation.Goal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.goals[challengeID]
	return g, ok
}

// Transactions -------------------------------------------------------------

// ReplaceTransactions swaps in the authoritative transaction history for a
// challenge, newest last.
func (c *Cache) ReplaceTransactions(challengeID string, txs []participation.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]participation.Transaction, len(txs))
	copy(cp, txs)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
	c.transactions[challengeID] = cp
}

// AppendTransaction appends one confirmed transaction to the history.
func (c *Cache) AppendTransaction(challengeID string, tx participation.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions[challengeID] = append(c.transactions[challengeID], tx)
}

// Transactions returns a copy of the cached history for a challenge.
func (c *Cache) Transactions(challengeID string) []participation.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	txs := c.transactions[challengeID]
	out := make([]participation.Transaction, len(txs))
	copy(out, txs)
	return out
}

// Clear drops everything. Used when a session is discarded or before a full
// authoritative refetch.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challenges = make(map[string]challenge.Challenge)
	c.participations = make(map[string]participation.Participation)
	c.goals = make(map[string]participation.Goal)
	c.transactions = make(map[string][]participation.Transaction)
}
