// Package apiclient is the HTTP gateway to the SaveMate challenge API. It
// owns request marshaling, auth header injection, response-envelope
// normalization and error normalization; everything above it works with
// domain types and typed errors only.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/savemate/ledgersync/internal/domain/challenge"
	"github.com/savemate/ledgersync/internal/domain/participation"
	"github.com/savemate/ledgersync/internal/metrics"
	"github.com/savemate/ledgersync/pkg/logger"
)

const maxResponseBytes = 8 << 20

// Config configures the API client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	// RateLimit is the sustained request rate in requests/second.
	// Zero disables client-side throttling.
	RateLimit float64
	Burst     int
	Log       *logger.Logger
}

// Client is a thin, typed REST client. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	maxRetries int
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a client with sane defaults: 10s timeout, two retries on
// transient failures of idempotent calls.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("apiclient")
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxRetries: maxRetries,
		limiter:    limiter,
		log:        log,
	}
}

// call describes one API request. Idempotent calls may be retried on
// transient failures; mutating calls never are, to rule out double
// submission of financial operations.
type call struct {
	name       string
	method     string
	path       string
	query      url.Values
	body       interface{}
	headers    map[string]string
	idempotent bool
}

func (c *Client) do(ctx context.Context, cl call) ([]byte, error) {
	var lastErr error
	attempts := 1
	if cl.idempotent {
		attempts += c.maxRetries
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.log.Debugf("retrying %s (attempt %d of %d)", cl.name, attempt+1, attempts)
		}
		body, err := c.doOnce(ctx, cl)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	// Transport-level failure with no HTTP response.
	return true
}

func (c *Client) doOnce(ctx context.Context, cl call) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var bodyReader io.Reader
	if cl.body != nil {
		encoded, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(cl.name, 0, time.Since(start))
		return nil, fmt.Errorf("%s: request failed: %w", cl.name, err)
	}
	defer resp.Body.Close()
	metrics.ObserveAPIRequest(cl.name, resp.StatusCode, time.Since(start))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response body: %w", cl.name, err)
	}

	if resp.StatusCode >= 400 {
		return nil, normalizeError(resp.StatusCode, payload)
	}
	return payload, nil
}

// normalizeError adapts the server's error body, which is either
// {"error": {"code", "message"}} or a flat {"code", "message"}, into a typed
// APIError.
func normalizeError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)
		if nested := root.Get("error"); nested.IsObject() {
			root = nested
		}
		if code := root.Get("code").String(); code != "" {
			apiErr.Code = code
		}
		if msg := root.Get("message").String(); msg != "" {
			apiErr.Message = msg
		}
	}
	return apiErr
}

// ---------------------------------------------------------------------------
// Challenges
// ---------------------------------------------------------------------------

// Filter narrows the challenge catalog listing.
type Filter struct {
	Search     string
	Type       challenge.Type
	Status     challenge.Status
	IsOfficial *bool
	Page       int
	Limit      int
}

func (f Filter) values() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.IsOfficial != nil {
		q.Set("isOfficial", fmt.Sprintf("%t", *f.IsOfficial))
	}
	if f.Page > 0 {
		q.Set("page", fmt.Sprintf("%d", f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", f.Limit))
	}
	return q
}

// ListChallenges fetches a page of the challenge catalog.
func (c *Client) ListChallenges(ctx context.Context, f Filter) ([]challenge.Challenge, PageInfo, error) {
	body, err := c.do(ctx, call{
		name: "list_challenges", method: http.MethodGet,
		path: "/challenges", query: f.values(), idempotent: true,
	})
	if err != nil {
		return nil, PageInfo{}, err
	}
	pg, err := normalizePage(body)
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("list_challenges: %w", err)
	}
	items, err := pageOf[challenge.Challenge](pg)
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("list_challenges: %w", err)
	}
	return items, pg.Info, nil
}

// GetChallenge fetches a single challenge by id.
func (c *Client) GetChallenge(ctx context.Context, id string) (challenge.Challenge, error) {
	body, err := c.do(ctx, call{
		name: "get_challenge", method: http.MethodGet,
		path: "/challenges/" + url.PathEscape(id), idempotent: true,
	})
	if err != nil {
		return challenge.Challenge{}, err
	}
	var out challenge.Challenge
	if err := json.Unmarshal(body, &out); err != nil {
		return challenge.Challenge{}, fmt.Errorf("get_challenge: decode: %w", err)
	}
	return out, nil
}

// ListParticipants fetches the participant roster of a challenge.
func (c *Client) ListParticipants(ctx context.Context, id string) ([]challenge.Participant, error) {
	body, err := c.do(ctx, call{
		name: "list_participants", method: http.MethodGet,
		path: "/challenges/" + url.PathEscape(id) + "/participants", idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	pg, err := normalizePage(body)
	if err != nil {
		return nil, fmt.Errorf("list_participants: %w", err)
	}
	return pageOf[challenge.Participant](pg)
}

// ---------------------------------------------------------------------------
// Participation
// ---------------------------------------------------------------------------

// JoinRequest is the body of POST /challenges/{id}/join.
type JoinRequest struct {
	TargetAmount int64              `json:"targetAmount"`
	Mode         participation.Mode `json:"mode"`
	Motivation   string             `json:"motivation,omitempty"`
}

// JoinResponse echoes the created participation and, when the server creates
// one at join time, its goal.
type JoinResponse struct {
	Participant participation.Participation `json:"participant"`
	Goal        *participation.Goal         `json:"goal,omitempty"`
}

// Join enrolls the authenticated user in a challenge.
func (c *Client) Join(ctx context.Context, id string, req JoinRequest) (JoinResponse, error) {
	body, err := c.do(ctx, call{
		name: "join", method: http.MethodPost,
		path: "/challenges/" + url.PathEscape(id) + "/join", body: req,
	})
	if err != nil {
		return JoinResponse{}, err
	}
	var out JoinResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return JoinResponse{}, fmt.Errorf("join: decode: %w", err)
	}
	return out, nil
}

// Leave removes a financially uncommitted participation.
func (c *Client) Leave(ctx context.Context, id string) error {
	_, err := c.do(ctx, call{
		name: "leave", method: http.MethodDelete,
		path: "/challenges/" + url.PathEscape(id) + "/leave",
	})
	return err
}

// AbandonRequest is the body of POST /challenges/{id}/abandon.
type AbandonRequest struct {
	Reason   string `json:"reason"`
	Category string `json:"category"`
	Comment  string `json:"comment,omitempty"`
}

// Abandon permanently abandons a participation. Irreversible server-side.
func (c *Client) Abandon(ctx context.Context, id string, req AbandonRequest) error {
	_, err := c.do(ctx, call{
		name: "abandon", method: http.MethodPost,
		path: "/challenges/" + url.PathEscape(id) + "/abandon", body: req,
	})
	return err
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// TransactionRequest is the body of POST /challenges/{id}/transactions.
type TransactionRequest struct {
	Amount      int64                         `json:"amount"`
	Type        participation.TransactionType `json:"type"`
	Description string                        `json:"description,omitempty"`
	Date        *time.Time                    `json:"date,omitempty"`
}

// TransactionResponse carries the created transaction and the authoritative
// post-transaction balance.
type TransactionResponse struct {
	Transaction participation.Transaction `json:"transaction"`
	NewBalance  int64                     `json:"newBalance"`
}

// CreateTransaction submits a deposit or withdrawal. An Idempotency-Key
// header protects against double submission if the caller resubmits after an
// ambiguous failure; the call itself is never auto-retried.
func (c *Client) CreateTransaction(ctx context.Context, id string, req TransactionRequest) (TransactionResponse, error) {
	body, err := c.do(ctx, call{
		name: "create_transaction", method: http.MethodPost,
		path:    "/challenges/" + url.PathEscape(id) + "/transactions",
		body:    req,
		headers: map[string]string{"Idempotency-Key": uuid.New().String()},
	})
	if err != nil {
		return TransactionResponse{}, err
	}
	var out TransactionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return TransactionResponse{}, fmt.Errorf("create_transaction: decode: %w", err)
	}
	return out, nil
}

// ListTransactions fetches the transaction history of the user's
// participation in a challenge.
func (c *Client) ListTransactions(ctx context.Context, id string) ([]participation.Transaction, error) {
	body, err := c.do(ctx, call{
		name: "list_transactions", method: http.MethodGet,
		path: "/challenges/" + url.PathEscape(id) + "/transactions", idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	pg, err := normalizePage(body)
	if err != nil {
		return nil, fmt.Errorf("list_transactions: %w", err)
	}
	return pageOf[participation.Transaction](pg)
}

// ---------------------------------------------------------------------------
// Goals
// ---------------------------------------------------------------------------

// GoalRequest is the body of POST /challenges/{id}/goal.
type GoalRequest struct {
	TargetAmount     int64              `json:"targetAmount"`
	Mode             participation.Mode `json:"mode"`
	Currency         string             `json:"currency"`
	MonthlyIncome    int64              `json:"monthlyIncome,omitempty"`
	IsVariableIncome bool               `json:"isVariableIncome,omitempty"`
	Motivation       string             `json:"motivation,omitempty"`
	AdditionalNotes  string             `json:"additionalNotes,omitempty"`
}

// GetGoal fetches the current user's goal for a challenge.
func (c *Client) GetGoal(ctx context.Context, id string) (participation.Goal, error) {
	body, err := c.do(ctx, call{
		name: "get_goal", method: http.MethodGet,
		path: "/challenges/" + url.PathEscape(id) + "/goal", idempotent: true,
	})
	if err != nil {
		return participation.Goal{}, err
	}
	var out participation.Goal
	if err := json.Unmarshal(body, &out); err != nil {
		return participation.Goal{}, fmt.Errorf("get_goal: decode: %w", err)
	}
	return out, nil
}

// PutGoal creates or replaces the current user's goal for a challenge.
func (c *Client) PutGoal(ctx context.Context, id string, req GoalRequest) (participation.Goal, error) {
	body, err := c.do(ctx, call{
		name: "put_goal", method: http.MethodPost,
		path: "/challenges/" + url.PathEscape(id) + "/goal", body: req,
	})
	if err != nil {
		return participation.Goal{}, err
	}
	var out participation.Goal
	if err := json.Unmarshal(body, &out); err != nil {
		return participation.Goal{}, fmt.Errorf("put_goal: decode: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// LeaderboardEntry is one row of a per-period leaderboard.
type LeaderboardEntry struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Rank       int    `json:"rank"`
	TotalSaved int64  `json:"totalSaved"`
	Period     string `json:"period,omitempty"`
}

// ChallengeStats are server-aggregated figures across all challenges.
type ChallengeStats struct {
	TotalChallenges   int                `json:"totalChallenges"`
	ActiveChallenges  int                `json:"activeChallenges"`
	TotalParticipants int                `json:"totalParticipants"`
	TotalSaved        int64              `json:"totalSaved"`
	Leaderboard       []LeaderboardEntry `json:"leaderboard,omitempty"`
}

// UserStats are server-aggregated figures for one user.
type UserStats struct {
	UserID          string  `json:"userId"`
	JoinedCount     int     `json:"joinedCount"`
	CompletedCount  int     `json:"completedCount"`
	AbandonedCount  int     `json:"abandonedCount"`
	TotalSaved      int64   `json:"totalSaved"`
	AverageProgress float64 `json:"averageProgress"`
}

// Stats fetches the global aggregate stats.
func (c *Client) Stats(ctx context.Context) (ChallengeStats, error) {
	body, err := c.do(ctx, call{
		name: "stats", method: http.MethodGet,
		path: "/challenges/stats", idempotent: true,
	})
	if err != nil {
		return ChallengeStats{}, err
	}
	var out ChallengeStats
	if err := json.Unmarshal(body, &out); err != nil {
		return ChallengeStats{}, fmt.Errorf("stats: decode: %w", err)
	}
	return out, nil
}

// UserChallenges fetches a user's participation records, optionally filtered
// by participation status.
func (c *Client) UserChallenges(ctx context.Context, userID string, status participation.Status) ([]participation.Participation, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	body, err := c.do(ctx, call{
		name: "user_challenges", method: http.MethodGet,
		path: "/users/" + url.PathEscape(userID) + "/challenges", query: q, idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	pg, err := normalizePage(body)
	if err != nil {
		return nil, fmt.Errorf("user_challenges: %w", err)
	}
	return pageOf[participation.Participation](pg)
}

// UserStats fetches one user's aggregate stats.
func (c *Client) UserStats(ctx context.Context, userID string) (UserStats, error) {
	body, err := c.do(ctx, call{
		name: "user_stats", method: http.MethodGet,
		path: "/users/" + url.PathEscape(userID) + "/challenges/stats", idempotent: true,
	})
	if err != nil {
		return UserStats{}, err
	}
	var out UserStats
	if err := json.Unmarshal(body, &out); err != nil {
		return UserStats{}, fmt.Errorf("user_stats: decode: %w", err)
	}
	return out, nil
}
