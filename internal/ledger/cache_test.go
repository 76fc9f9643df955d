package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savemate/ledgersync/internal/domain/challenge"
	"github.com/savemate/ledgersync/internal/domain/participation"
)

func sampleChallenge(id string, start time.Time) challenge.Challenge {
	return challenge.Challenge{
		ID:           id,
		Title:        "sample",
		Type:         challenge.TypeWeekly,
		Status:       challenge.StatusActive,
		StartDate:    start,
		TargetAmount: 100_000,
		Currency:     "EUR",
	}
}

func TestPutAndGetChallenge(t *testing.T) {
	c := New()
	ch := sampleChallenge("ch-1", time.Now())
	c.PutChallenge(ch)

	got, ok := c.Challenge("ch-1")
	require.True(t, ok)
	assert.Equal(t, ch, got)

	_, ok = c.Challenge("missing")
	assert.False(t, ok)
}

func TestChallengesOrderedByStartDate(t *testing.T) {
	c := New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c.PutChallenges([]challenge.Challenge{
		sampleChallenge("b", base.Add(48*time.Hour)),
		sampleChallenge("a", base),
		sampleChallenge("c", base.Add(24*time.Hour)),
	})

	all := c.Challenges()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestReplaceSemantics(t *testing.T) {
	c := New()
	ch := sampleChallenge("ch-1", time.Now())
	ch.ParticipantCount = 5
	c.PutChallenge(ch)

	ch.ParticipantCount = 9
	c.PutChallenge(ch)

	got, _ := c.Challenge("ch-1")
	assert.Equal(t, 9, got.ParticipantCount)
}

func TestTransactionsReturnCopies(t *testing.T) {
	c := New()
	c.ReplaceTransactions("ch-1", []participation.Transaction{
		{ID: "tx-1", Amount: 100, Date: time.Now()},
	})

	txs := c.Transactions("ch-1")
	txs[0].Amount = 999_999

	fresh := c.Transactions("ch-1")
	assert.Equal(t, int64(100), fresh[0].Amount, "callers must not mutate cached state")
}

func TestReplaceTransactionsSortsByDate(t *testing.T) {
	c := New()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	c.ReplaceTransactions("ch-1", []participation.Transaction{
		{ID: "tx-2", Date: base.Add(time.Hour)},
		{ID: "tx-1", Date: base},
	})

	txs := c.Transactions("ch-1")
	assert.Equal(t, "tx-1", txs[0].ID)
	assert.Equal(t, "tx-2", txs[1].ID)
}

func TestRemoveParticipationDropsRelatedState(t *testing.T) {
	c := New()
	c.PutParticipation(participation.Participation{ChallengeID: "ch-1", Status: participation.StatusActive})
	c.PutGoal(participation.Goal{ChallengeID: "ch-1", Currency: "EUR"})
	c.AppendTransaction("ch-1", participation.Transaction{ID: "tx-1"})

	c.RemoveParticipation("ch-1")

	_, ok := c.Participation("ch-1")
	assert.False(t, ok)
	_, ok = c.Goal("ch-1")
	assert.False(t, ok)
	assert.Empty(t, c.Transactions("ch-1"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := New()
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	c.PutChallenge(sampleChallenge("ch-1", start))
	c.PutParticipation(participation.Participation{
		ChallengeID: "ch-1", CurrentAmount: 42_000, TargetAmount: 100_000,
		Status: participation.StatusActive, JoinedAt: start,
	})
	c.PutGoal(participation.Goal{ChallengeID: "ch-1", Currency: "EUR", TargetAmount: 100_000})
	c.AppendTransaction("ch-1", participation.Transaction{
		ID: "tx-1", Type: participation.TypeDeposit, Amount: 42_000, Date: start, BalanceAfter: 42_000,
	})

	data, err := c.MarshalSnapshot()
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.RestoreSnapshot(data))

	p, ok := restored.Participation("ch-1")
	require.True(t, ok)
	assert.Equal(t, int64(42_000), p.CurrentAmount)
	g, ok := restored.Goal("ch-1")
	require.True(t, ok)
	assert.Equal(t, "EUR", g.Currency)
	require.Len(t, restored.Transactions("ch-1"), 1)
}

func TestRestoreRejectsVersionMismatch(t *testing.T) {
	c := New()
	err := c.RestoreSnapshot([]byte(`{"version": 99}`))
	assert.ErrorIs(t, err, ErrSnapshotVersion)
}

func TestMemorySnapshotStore(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	_, err := store.Load(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Save(ctx, "user-1", []byte("blob")))
	data, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)

	require.NoError(t, store.Delete(ctx, "user-1"))
	_, err = store.Load(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
