package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savemate/ledgersync/internal/apiclient"
)

type fakeStatsAPI struct {
	stats     func(ctx context.Context) (apiclient.ChallengeStats, error)
	userStats func(ctx context.Context, userID string) (apiclient.UserStats, error)
}

func (f *fakeStatsAPI) Stats(ctx context.Context) (apiclient.ChallengeStats, error) {
	return f.stats(ctx)
}

func (f *fakeStatsAPI) UserStats(ctx context.Context, userID string) (apiclient.UserStats, error) {
	return f.userStats(ctx, userID)
}

func TestLatestBeforeFirstRefresh(t *testing.T) {
	f := NewFetcher(&fakeStatsAPI{}, nil)
	_, _, ok := f.Latest()
	assert.False(t, ok)
}

func TestRefreshOverwritesPreviousResponse(t *testing.T) {
	responses := []apiclient.ChallengeStats{
		{TotalChallenges: 10, TotalSaved: 1_000},
		{TotalChallenges: 11, TotalSaved: 2_500},
	}
	i := 0
	api := &fakeStatsAPI{stats: func(context.Context) (apiclient.ChallengeStats, error) {
		st := responses[i]
		i++
		return st, nil
	}}
	f := NewFetcher(api, nil)

	_, err := f.Refresh(context.Background())
	require.NoError(t, err)
	st, _, ok := f.Latest()
	require.True(t, ok)
	assert.Equal(t, 10, st.TotalChallenges)

	_, err = f.Refresh(context.Background())
	require.NoError(t, err)
	st, _, ok = f.Latest()
	require.True(t, ok)
	assert.Equal(t, 11, st.TotalChallenges)
	assert.Equal(t, int64(2_500), st.TotalSaved)
}

func TestRefreshFailureKeepsLastResponse(t *testing.T) {
	fail := false
	api := &fakeStatsAPI{stats: func(context.Context) (apiclient.ChallengeStats, error) {
		if fail {
			return apiclient.ChallengeStats{}, errors.New("boom")
		}
		return apiclient.ChallengeStats{TotalChallenges: 7}, nil
	}}
	f := NewFetcher(api, nil)

	_, err := f.Refresh(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = f.Refresh(context.Background())
	require.Error(t, err)

	st, _, ok := f.Latest()
	require.True(t, ok, "a failed refresh must not clear the last response")
	assert.Equal(t, 7, st.TotalChallenges)
}

func TestRefreshUser(t *testing.T) {
	api := &fakeStatsAPI{userStats: func(_ context.Context, userID string) (apiclient.UserStats, error) {
		return apiclient.UserStats{UserID: userID, CompletedCount: 3}, nil
	}}
	f := NewFetcher(api, nil)

	_, ok := f.LatestUser("user-1")
	assert.False(t, ok)

	st, err := f.RefreshUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.CompletedCount)

	cached, ok := f.LatestUser("user-1")
	require.True(t, ok)
	assert.Equal(t, st, cached)
}
