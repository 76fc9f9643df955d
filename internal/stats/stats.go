// Package stats pulls server-aggregated statistics on demand. It is a
// read-only pass-through: no local derivation, no caching beyond the most
// recent response, always safe to refetch and overwrite.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/savemate/ledgersync/internal/apiclient"
	"github.com/savemate/ledgersync/internal/metrics"
	"github.com/savemate/ledgersync/pkg/logger"
)

// API is the slice of the API client the fetcher depends on.
type API interface {
	Stats(ctx context.Context) (apiclient.ChallengeStats, error)
	UserStats(ctx context.Context, userID string) (apiclient.UserStats, error)
}

// Fetcher fetches aggregate stats and remembers only the latest responses.
type Fetcher struct {
	api API
	log *logger.Logger

	mu        sync.RWMutex
	global    *apiclient.ChallengeStats
	globalAt  time.Time
	userStats map[string]apiclient.UserStats
}

// NewFetcher creates a stats fetcher.
func NewFetcher(api API, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NewDefault("stats")
	}
	return &Fetcher{
		api:       api,
		log:       log,
		userStats: make(map[string]apiclient.UserStats),
	}
}

// Refresh fetches the global aggregate stats and overwrites the previous
// response.
func (f *Fetcher) Refresh(ctx context.Context) (apiclient.ChallengeStats, error) {
	stats, err := f.api.Stats(ctx)
	if err != nil {
		metrics.ObserveStatsRefresh("failure")
		return apiclient.ChallengeStats{}, fmt.Errorf("refresh stats: %w", err)
	}
	f.mu.Lock()
	f.global = &stats
	f.globalAt = time.Now()
	f.mu.Unlock()
	metrics.ObserveStatsRefresh("success")
	return stats, nil
}

// Latest returns the most recently fetched global stats and when they were
// fetched. ok is false before the first successful refresh.
func (f *Fetcher) Latest() (stats apiclient.ChallengeStats, fetchedAt time.Time, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.global == nil {
		return apiclient.ChallengeStats{}, time.Time{}, false
	}
	return *f.global, f.globalAt, true
}

// RefreshUser fetches one user's aggregate stats, overwriting the previous
// response for that user.
func (f *Fetcher) RefreshUser(ctx context.Context, userID string) (apiclient.UserStats, error) {
	stats, err := f.api.UserStats(ctx, userID)
	if err != nil {
		metrics.ObserveStatsRefresh("failure")
		return apiclient.UserStats{}, fmt.Errorf("refresh user stats %s: %w", userID, err)
	}
	f.mu.Lock()
	f.userStats[userID] = stats
	f.mu.Unlock()
	metrics.ObserveStatsRefresh("success")
	return stats, nil
}

// LatestUser returns the most recently fetched stats for a user.
func (f *Fetcher) LatestUser(userID string) (apiclient.UserStats, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats, ok := f.userStats[userID]
	return stats, ok
}

// Refresher drives periodic background refreshes of the global stats.
type Refresher struct {
	fetcher *Fetcher
	spec    string
	log     *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRefresher creates a refresher on a cron spec, e.g. "@every 5m".
func NewRefresher(fetcher *Fetcher, spec string, log *logger.Logger) *Refresher {
	if spec == "" {
		spec = "@every 5m"
	}
	if log == nil {
		log = logger.NewDefault("stats-refresher")
	}
	return &Refresher{fetcher: fetcher, spec: spec, log: log}
}

// Start begins periodic refreshing. Idempotent.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(r.spec, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := r.fetcher.Refresh(refreshCtx); err != nil {
			r.log.Warnf("periodic stats refresh failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule stats refresh: %w", err)
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop halts periodic refreshing, waiting for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
}
