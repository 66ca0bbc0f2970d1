package api

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osash4/dujyo-ledger/ledger"
	"github.com/osash4/dujyo-ledger/ledgertest"
	"github.com/osash4/dujyo-ledger/stake"
)

func testServer(t *testing.T) (*Server, *ledger.Ledger, *stake.Registry) {
	t.Helper()
	l := ledger.New(ledger.Config{})
	registry := stake.NewRegistry(stake.Config{Source: rand.NewSource(1)})
	s := NewServer(Config{Ledger: l, Registry: registry, Difficulty: 1})
	return s, l, registry
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	s, _, _ := testServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestSubmitTransaction(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{
			name:     "system grant accepted",
			body:     map[string]any{"recipient": "alice", "amount": 50},
			wantCode: http.StatusAccepted,
		},
		{
			name:     "missing recipient",
			body:     map[string]any{"amount": 50},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "zero amount",
			body:     map[string]any{"recipient": "alice", "amount": 0},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "self transfer",
			body:     map[string]any{"sender": "alice", "recipient": "alice", "amount": 5},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unsigned non-system transaction",
			body:     map[string]any{"sender": "alice", "recipient": "bob", "amount": 5},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown kind",
			body:     map[string]any{"recipient": "alice", "amount": 5, "kind": "BOGUS"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "contract kind without payload",
			body:     map[string]any{"recipient": "artist", "amount": 1, "kind": "CONTENT_REGISTRATION"},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "contract kind with payload accepted",
			body: map[string]any{
				"recipient": "artist",
				"amount":    1,
				"kind":      "CONTENT_REGISTRATION",
				"payload":   map[string]any{"contentId": "content-1", "contentHash": "abc"},
			},
			wantCode: http.StatusAccepted,
		},
		{
			name:     "amount past the balance range",
			body:     map[string]any{"recipient": "alice", "amount": uint64(math.MaxInt64) + 1},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := testServer(t)
			rec := doJSON(t, s.Router(), http.MethodPost, "/api/transactions", tt.body)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusAccepted {
				body := decodeBody(t, rec)
				require.Equal(t, "pending", body["status"])
				require.NotEmpty(t, body["id"])
				require.NotEmpty(t, body["hash"])
			}
		})
	}
}

func TestMineInline(t *testing.T) {
	s, l, _ := testServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/mine", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/transactions",
		map[string]any{"recipient": "alice", "amount": 50})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/mine", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "mined", body["status"])
	require.Equal(t, float64(2), body["height"])
	require.Equal(t, 2, l.Height())
}

func TestChainEndpoints(t *testing.T) {
	s, l, _ := testServer(t)
	ledgertest.MineInto(l, ledgertest.SystemGrant("alice", 50))
	router := s.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/chain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, float64(2), body["height"])
	require.Len(t, body["blocks"], 2)

	rec = doJSON(t, router, http.MethodGet, "/api/chain/head", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, l.LatestBlock().Hash, decodeBody(t, rec)["hash"])

	rec = doJSON(t, router, http.MethodGet, "/api/chain/valid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["valid"])
}

func TestAccountEndpoints(t *testing.T) {
	s, l, _ := testServer(t)
	ledgertest.MineInto(l,
		ledgertest.SystemGrant("alice", 50),
		ledgertest.SystemGrant("bob", 20))
	router := s.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.ElementsMatch(t, []any{"alice", "bob"}, decodeBody(t, rec)["accounts"])

	rec = doJSON(t, router, http.MethodGet, "/api/accounts/alice/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(50), decodeBody(t, rec)["balance"])

	rec = doJSON(t, router, http.MethodGet, "/api/accounts/ghost/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(0), decodeBody(t, rec)["balance"])

	rec = doJSON(t, router, http.MethodGet, "/api/accounts/alice/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["transactions"], 1)

	rec = doJSON(t, router, http.MethodGet, "/api/accounts/ghost/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeBody(t, rec)["transactions"])
}

func TestValidatorEndpoints(t *testing.T) {
	s, _, registry := testServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/validators/selection", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/validators",
		map[string]any{"address": "v1", "stake": 100})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/validators",
		map[string]any{"address": "v2", "stake": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/validators",
		map[string]any{"stake": 100})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/validators", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["validators"], 1)

	rec = doJSON(t, router, http.MethodGet, "/api/validators/selection", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v1", decodeBody(t, rec)["address"])

	rec = doJSON(t, router, http.MethodPost, "/api/validators/v1/slash",
		map[string]any{"reason": "DOUBLE_SIGN"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, registry.ActiveCount())
	require.Equal(t, stake.ReasonDoubleSign, registry.Validators()[0].SlashedFor)

	rec = doJSON(t, router, http.MethodPost, "/api/validators/ghost/slash", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthDegradedOnTamperedChain(t *testing.T) {
	s, l, _ := testServer(t)
	block := ledgertest.MineInto(l, ledgertest.SystemGrant("alice", 50))
	block.Transactions[0].Amount = 9999

	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "degraded", decodeBody(t, rec)["status"])
}
