package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savemate/ledgersync/internal/domain/participation"
)

// newFakeServer stands in for the SaveMate API with just enough behavior to
// exercise the client: envelope shapes, auth echo, typed error bodies.
func newFakeServer(t *testing.T) (*httptest.Server, *fakeState) {
	t.Helper()
	state := &fakeState{}

	r := mux.NewRouter()
	r.HandleFunc("/challenges", func(w http.ResponseWriter, req *http.Request) {
		state.lastAuth = req.Header.Get("Authorization")
		state.lastQuery = req.URL.Query().Encode()
		// Legacy shape: bare array.
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"id": "ch-1", "title": "sprint", "type": "WEEKLY", "status": "ACTIVE"},
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/challenges/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": mux.Vars(req)["id"], "title": "sprint", "type": "WEEKLY", "status": "ACTIVE",
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/challenges/{id}/join", func(w http.ResponseWriter, req *http.Request) {
		var body JoinRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		if state.full {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error": map[string]string{"code": "challenge_full", "message": "challenge is full"},
			})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"participant": map[string]interface{}{
				"id": "part-1", "challengeId": mux.Vars(req)["id"],
				"targetAmount": body.TargetAmount, "status": "ACTIVE", "mode": body.Mode,
			},
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/challenges/{id}/transactions", func(w http.ResponseWriter, req *http.Request) {
		state.lastIdempotencyKey = req.Header.Get("Idempotency-Key")
		state.txCalls.Add(1)
		var body TransactionRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"transaction": map[string]interface{}{
				"id": "tx-1", "type": body.Type, "amount": body.Amount,
				"date": time.Now().UTC(), "balanceAfter": body.Amount,
			},
			"newBalance": body.Amount,
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/challenges/{id}/transactions", func(w http.ResponseWriter, req *http.Request) {
		// Paginated envelope shape for the same resource family.
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "tx-1", "type": "DEPOSIT", "amount": 500, "balanceAfter": 500},
			},
			"meta": map[string]int{"total": 1, "page": 1, "limit": 50},
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/flaky", func(w http.ResponseWriter, _ *http.Request) {
		if state.flakyCalls.Add(1) < 3 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"code": "upstream", "message": "bad gateway"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	}).Methods(http.MethodGet)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, state
}

type fakeState struct {
	lastAuth           string
	lastQuery          string
	lastIdempotencyKey string
	full               bool
	txCalls            atomic.Int32
	flakyCalls         atomic.Int32
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{BaseURL: srv.URL, Token: "token-123", Timeout: 2 * time.Second})
}

func TestListChallengesSendsAuthAndFilters(t *testing.T) {
	srv, state := newFakeServer(t)
	c := newTestClient(srv)

	official := true
	items, info, err := c.ListChallenges(context.Background(), Filter{
		Search: "sprint", Type: "WEEKLY", IsOfficial: &official, Page: 2, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ch-1", items[0].ID)
	assert.Equal(t, 1, info.Total)
	assert.Equal(t, "Bearer token-123", state.lastAuth)
	assert.Contains(t, state.lastQuery, "search=sprint")
	assert.Contains(t, state.lastQuery, "isOfficial=true")
	assert.Contains(t, state.lastQuery, "page=2")
}

func TestJoinDecodesParticipant(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := newTestClient(srv)

	resp, err := c.Join(context.Background(), "ch-1", JoinRequest{
		TargetAmount: 50_000, Mode: participation.ModeFree,
	})
	require.NoError(t, err)
	assert.Equal(t, "part-1", resp.Participant.ID)
	assert.Equal(t, int64(50_000), resp.Participant.TargetAmount)
	assert.Nil(t, resp.Goal)
}

func TestJoinConflictMapsToTypedError(t *testing.T) {
	srv, state := newFakeServer(t)
	state.full = true
	c := newTestClient(srv)

	_, err := c.Join(context.Background(), "ch-1", JoinRequest{TargetAmount: 1})
	assert.ErrorIs(t, err, ErrChallengeFull)
	assert.ErrorIs(t, err, ErrConflict)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "challenge_full", apiErr.Code)
}

func TestCreateTransactionSetsIdempotencyKey(t *testing.T) {
	srv, state := newFakeServer(t)
	c := newTestClient(srv)

	resp, err := c.CreateTransaction(context.Background(), "ch-1", TransactionRequest{
		Amount: 2_500, Type: participation.TypeDeposit,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), resp.NewBalance)
	assert.NotEmpty(t, state.lastIdempotencyKey)
	assert.Equal(t, int32(1), state.txCalls.Load(), "mutating calls are never auto-retried")
}

func TestListTransactionsHandlesDataEnvelope(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := newTestClient(srv)

	txs, err := c.ListTransactions(context.Background(), "ch-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, participation.TypeDeposit, txs[0].Type)
	assert.Equal(t, int64(500), txs[0].BalanceAfter)
}

func TestIdempotentCallsRetryTransientFailures(t *testing.T) {
	srv, state := newFakeServer(t)
	c := newTestClient(srv)

	body, err := c.do(context.Background(), call{
		name: "flaky", method: http.MethodGet, path: "/flaky", idempotent: true,
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), "ok")
	assert.Equal(t, int32(3), state.flakyCalls.Load())
}

func TestErrorNormalizationFlatBody(t *testing.T) {
	err := normalizeError(http.StatusBadRequest, []byte(`{"code":"bad_amount","message":"amount must be positive"}`))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad_amount", apiErr.Code)
	assert.Equal(t, "amount must be positive", apiErr.Message)
}

func TestErrorNormalizationNonJSONBody(t *testing.T) {
	err := normalizeError(http.StatusServiceUnavailable, []byte("upstream exploded"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), apiErr.Message)
	assert.ErrorIs(t, err, ErrTransient)
}
