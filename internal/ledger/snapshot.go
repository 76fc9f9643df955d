package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/savemate/ledgersync/internal/domain/challenge"
	"github.com/savemate/ledgersync/internal/domain/participation"
)

// snapshotVersion guards against decoding snapshots written by an
// incompatible build. Snapshots are advisory: a version mismatch is handled
// by discarding the snapshot and refetching from the server.
const snapshotVersion = 1

// ErrSnapshotVersion is returned when a stored snapshot was written with a
// different schema version.
var ErrSnapshotVersion = fmt.Errorf("snapshot version mismatch")

// ErrNoSnapshot is returned when no snapshot exists for the user.
var ErrNoSnapshot = fmt.Errorf("no snapshot")

type snapshot struct {
	Version        int                                    `json:"version"`
	SavedAt        time.Time                              `json:"savedAt"`
	Challenges     []challenge.Challenge                  `json:"challenges"`
	Participations []participation.Participation          `json:"participations"`
	Goals          []participation.Goal                   `json:"goals"`
	Transactions   map[string][]participation.Transaction `json:"transactions"`
}

// MarshalSnapshot serializes the cache contents to a versioned JSON blob.
func (c *Cache) MarshalSnapshot() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := snapshot{
		Version:      snapshotVersion,
		SavedAt:      time.Now().UTC(),
		Transactions: make(map[string][]participation.Transaction, len(c.transactions)),
	}
	for _, ch := range c.challenges {
		snap.Challenges = append(snap.Challenges, ch)
	}
	for _, p := range c.participations {
		snap.Participations = append(snap.Participations, p)
	}
	for _, g := range c.goals {
		snap.Goals = append(snap.Goals, g)
	}
	for id, txs := range c.transactions {
		cp := make([]participation.Transaction, len(txs))
		copy(cp, txs)
		snap.Transactions[id] = cp
	}
	return json.Marshal(snap)
}

// RestoreSnapshot replaces the cache contents from a serialized snapshot.
func (c *Cache) RestoreSnapshot(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return ErrSnapshotVersion
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.challenges = make(map[string]challenge.Challenge, len(snap.Challenges))
	for _, ch := range snap.Challenges {
		c.challenges[ch.ID] = ch
	}
	c.participations = make(map[string]participation.Participation, len(snap.Participations))
	for _, p := range snap.Participations {
		c.participations[p.ChallengeID] = p
	}
	c.goals = make(map[string]participation.Goal, len(snap.Goals))
	for _, g := range snap.Goals {
		c.goals[g.ChallengeID] = g
	}
	c.transactions = make(map[string][]participation.Transaction, len(snap.Transactions))
	for id, txs := range snap.Transactions {
		cp := make([]participation.Transaction, len(txs))
		copy(cp, txs)
		c.transactions[id] = cp
	}
	return nil
}

// SnapshotStore persists serialized cache snapshots per user.
type SnapshotStore interface {
	Save(ctx context.Context, userID string, data []byte) error
	Load(ctx context.Context, userID string) ([]byte, error)
	Delete(ctx context.Context, userID string) error
}

// RedisSnapshotStore keeps snapshots in Redis with an optional TTL.
type RedisSnapshotStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisSnapshotStore creates a store on an existing Redis client. A zero
// ttl keeps snapshots until overwritten or deleted.
func NewRedisSnapshotStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisSnapshotStore {
	if keyPrefix == "" {
		keyPrefix = "ledgersync:snapshot"
	}
	return &RedisSnapshotStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisSnapshotStore) key(userID string) string {
	return s.keyPrefix + ":" + userID
}

func (s *RedisSnapshotStore) Save(ctx context.Context, userID string, data []byte) error {
	if err := s.client.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, userID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// MemorySnapshotStore is the in-memory SnapshotStore used by tests and by
// sessions configured without Redis.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemorySnapshotStore creates an empty in-memory store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{blobs: make(map[string][]byte)}
}

func (s *MemorySnapshotStore) Save(_ context.Context, userID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[userID] = cp
	return nil
}

func (s *MemorySnapshotStore) Load(_ context.Context, userID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[userID]
	if !ok {
		return nil, ErrNoSnapshot
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemorySnapshotStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, userID)
	return nil
}
