package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayo6706/bank-ledger/internal/api"
	"github.com/ayo6706/bank-ledger/internal/config"
	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/idempotency"
	"github.com/ayo6706/bank-ledger/internal/ledger/memstore"
	"github.com/ayo6706/bank-ledger/internal/service"
)

func setupAPI(idem *idempotency.Store, rdb redis.Cmdable) http.Handler {
	store := memstore.New()
	audit := service.NewRecorder(store, domain.DefaultAlertThreshold)
	accounts := service.NewAccountService(store, audit)
	transfers := service.NewTransferService(store, audit)
	lifecycle := service.NewLifecycleService(store, audit)
	query := service.NewQueryService(store)

	cfg := &config.Config{
		HTTPPort:       "0",
		StoreDriver:    config.DriverMemory,
		AlertThreshold: domain.DefaultAlertThreshold,
		IdempotencyTTL: time.Hour,
	}
	router := api.NewRouter(cfg, zap.NewNop(), store, idem, rdb, accounts, transfers, lifecycle, query)
	return router.Routes()
}

func setupIdempotentAPI(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return setupAPI(idempotency.NewStore(client, time.Hour), client)
}

func doJSON(t *testing.T, h http.Handler, method, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	require.True(t, env.Success)
	return env.Data
}

func createAccountReq(username, nationalID, balance string) map[string]any {
	return map[string]any{
		"username":        username,
		"credential_hash": "sha256$fe12a9",
		"national_id":     nationalID,
		"initial_balance": balance,
	}
}

func requireBalance(t *testing.T, data map[string]any, key, want string) {
	t.Helper()
	raw, ok := data[key].(string)
	require.True(t, ok, "field %s missing or not a string: %v", key, data[key])
	got, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func TestCreateAndFetchAccount(t *testing.T) {
	h := setupAPI(nil, nil)

	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data := decodeEnvelope(t, w)
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, "active", data["status"])
	requireBalance(t, data, "balance", "100.00")
	assert.NotContains(t, w.Body.String(), "credential_hash", "credentials never leave the core")

	w = doJSON(t, h, "GET", "/v1/accounts/1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeEnvelope(t, w)
	requireBalance(t, data, "balance", "100.00")
}

func TestCreateAccountValidation(t *testing.T) {
	h := setupAPI(nil, nil)

	cases := []struct {
		name string
		body map[string]any
	}{
		{name: "missing_username", body: map[string]any{"credential_hash": "x", "national_id": "N-1"}},
		{name: "missing_credential_hash", body: map[string]any{"username": "bob", "national_id": "N-1"}},
		{name: "negative_balance", body: createAccountReq("bob", "N-1", "-5.00")},
		{name: "sub_cent_balance", body: createAccountReq("bob", "N-1", "1.005")},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, "POST", "/v1/accounts", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCreateAccountDuplicateIdentity(t *testing.T) {
	h := setupAPI(nil, nil)

	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "0"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice2", "N-100", "0"), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
}

func TestDepositAndWithdraw(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "50.00"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeEnvelope(t, w)
	requireBalance(t, data, "balance", "150.00")
	rec, ok := data["transaction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deposit", rec["kind"])
	assert.Equal(t, "success", rec["status"])

	w = doJSON(t, h, "POST", "/v1/accounts/1/withdraw", map[string]any{"amount": "30.00"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeEnvelope(t, w)
	requireBalance(t, data, "balance", "120.00")
}

func TestMoneyEndpointsRejectBadAmounts(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	cases := []struct {
		name string
		body map[string]any
	}{
		{name: "zero", body: map[string]any{"amount": "0"}},
		{name: "negative", body: map[string]any{"amount": "-5.00"}},
		{name: "sub_cent", body: map[string]any{"amount": "1.005"}},
		{name: "not_a_number", body: map[string]any{"amount": "five"}},
		{name: "missing", body: map[string]any{}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, "POST", "/v1/accounts/1/deposit", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w = doJSON(t, h, "GET", "/v1/accounts/1", nil, nil)
	requireBalance(t, decodeEnvelope(t, w), "balance", "100.00")
}

// trailing zeros do not change a value; the gate accepts exactly what the
// ledger accepts
func TestMoneyValidatorAcceptsTrailingZeros(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "1.500"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	requireBalance(t, decodeEnvelope(t, w), "balance", "101.50")

	w = doJSON(t, h, "POST", "/v1/accounts", createAccountReq("bob", "N-200", "2.50000"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "10.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "POST", "/v1/accounts/1/withdraw", map[string]any{"amount": "10.01"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
}

func TestStatusLifecycleOverHTTP(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "50.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "PUT", "/v1/accounts/1/status", map[string]any{"status": "locked"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "locked", decodeEnvelope(t, w)["status"])

	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "5.00"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "locked accounts refuse money movement")

	w = doJSON(t, h, "PUT", "/v1/accounts/1/status", map[string]any{"status": "frozen"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, "PUT", "/v1/accounts/99/status", map[string]any{"status": "locked"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAccountAlwaysRefused(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "50.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "DELETE", "/v1/accounts/1", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, h, "GET", "/v1/accounts/1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, "the account survives the refused deletion")
}

func TestTransferOverHTTP(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, h, "POST", "/v1/accounts", createAccountReq("bob", "N-200", "20.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "POST", "/v1/transfers", map[string]any{
		"from_account_id": 1,
		"to_account_id":   2,
		"amount":          "25.00",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeEnvelope(t, w)
	requireBalance(t, data, "balance", "75.00")
	outgoing, ok := data["outgoing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "transfer_out", outgoing["kind"])
	incoming, ok := data["incoming"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "transfer_in", incoming["kind"])

	w = doJSON(t, h, "GET", "/v1/accounts/2", nil, nil)
	requireBalance(t, decodeEnvelope(t, w), "balance", "45.00")
}

func TestTransferFailureStatuses(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, h, "POST", "/v1/accounts", createAccountReq("bob", "N-200", "0"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			name: "self_transfer",
			body: map[string]any{"from_account_id": 1, "to_account_id": 1, "amount": "5.00"},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown_target",
			body: map[string]any{"from_account_id": 1, "to_account_id": 99, "amount": "5.00"},
			want: http.StatusNotFound,
		},
		{
			name: "insufficient_source",
			body: map[string]any{"from_account_id": 2, "to_account_id": 1, "amount": "5.00"},
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, "POST", "/v1/transfers", tc.body, nil)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}

	w = doJSON(t, h, "GET", "/v1/accounts/1", nil, nil)
	requireBalance(t, decodeEnvelope(t, w), "balance", "100.00")
}

func TestTransactionsListing(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	for i := 0; i < 3; i++ {
		w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "1.00"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = doJSON(t, h, "GET", "/v1/accounts/1/transactions?page=1&page_size=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)
	items, ok := data["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	newest, ok := items[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4), newest["id"], "newest record first")

	w = doJSON(t, h, "GET", "/v1/accounts/404/transactions", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "listing an unknown account is not an empty page")
}

func TestOperationLogListing(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "10.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "5.00", "origin": "atm-17"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, "GET", "/v1/operation-logs?account_id=1&operation=deposit", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)
	items, ok := data["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	entry, ok := items[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deposit", entry["operation"])
	assert.Equal(t, "atm-17", entry["origin"], "explicit origin from the body wins")

	w = doJSON(t, h, "GET", "/v1/operation-logs?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, "GET", "/v1/operation-logs", nil, nil)
	data = decodeEnvelope(t, w)
	items, _ = data["items"].([]any)
	assert.Len(t, items, 2, "create_user and deposit")
}

func TestOriginDefaultsToPeerAddress(t *testing.T) {
	h := setupAPI(nil, nil)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "10.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "5.00"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, "GET", "/v1/operation-logs?operation=deposit", nil, nil)
	data := decodeEnvelope(t, w)
	items, ok := data["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	entry := items[0].(map[string]any)
	// httptest requests arrive from 192.0.2.1:1234.
	assert.Equal(t, "192.0.2.1", entry["origin"])

	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "5.00"}, map[string]string{
		"X-Forwarded-For": "203.0.113.9, 10.0.0.1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, h, "GET", "/v1/operation-logs?operation=deposit&page_size=1", nil, nil)
	data = decodeEnvelope(t, w)
	items, _ = data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "203.0.113.9", items[0].(map[string]any)["origin"])
}

func TestAccountListing(t *testing.T) {
	h := setupAPI(nil, nil)
	for i := 0; i < 3; i++ {
		w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq(fmt.Sprintf("user%d", i), fmt.Sprintf("N-10%d", i), "0"), nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := doJSON(t, h, "GET", "/v1/accounts?page=1&page_size=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)
	items, ok := data["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)
	assert.Equal(t, float64(3), data["total_count"])
}

func TestProblemDetailsShape(t *testing.T) {
	h := setupAPI(nil, nil)

	w := doJSON(t, h, "GET", "/v1/accounts/42", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/accounts/42", body["instance"])
	assert.NotEmpty(t, body["request_id"])
}

func TestHealthDocsAndMetrics(t *testing.T) {
	h := setupAPI(nil, nil)

	cases := []struct {
		name string
		path string
	}{
		{name: "live", path: "/healthz"},
		{name: "ready", path: "/readyz"},
		{name: "metrics", path: "/metrics"},
		{name: "openapi", path: "/openapi.yaml"},
		{name: "swagger", path: "/docs/index.html"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestDepositIdempotency(t *testing.T) {
	h := setupIdempotentAPI(t)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	key := map[string]string{"Idempotency-Key": "dep-1"}
	body := map[string]any{"amount": "50.00"}

	w1 := doJSON(t, h, "POST", "/v1/accounts/1/deposit", body, key)
	require.Equal(t, http.StatusOK, w1.Code, w1.Body.String())

	w2 := doJSON(t, h, "POST", "/v1/accounts/1/deposit", body, key)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "true", w2.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, w1.Body.String(), w2.Body.String())

	w = doJSON(t, h, "GET", "/v1/accounts/1", nil, nil)
	requireBalance(t, decodeEnvelope(t, w), "balance", "150.00")
}

func TestIdempotencyKeyConflicts(t *testing.T) {
	h := setupIdempotentAPI(t)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	key := map[string]string{"Idempotency-Key": "dep-1"}
	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "50.00"}, key)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "60.00"}, key)
	assert.Equal(t, http.StatusConflict, w.Code, "same key with a different body is refused")

	w = doJSON(t, h, "POST", "/v1/accounts/1/deposit", map[string]any{"amount": "50.00"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "the key is mandatory once the store is configured")

	w = doJSON(t, h, "GET", "/v1/accounts/1", nil, nil)
	requireBalance(t, decodeEnvelope(t, w), "balance", "150.00")
}

func TestIdempotencyReplaysBusinessFailures(t *testing.T) {
	h := setupIdempotentAPI(t)
	w := doJSON(t, h, "POST", "/v1/accounts", createAccountReq("alice", "N-100", "100.00"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	key := map[string]string{"Idempotency-Key": "wd-1"}
	w = doJSON(t, h, "POST", "/v1/accounts/1/withdraw", map[string]any{"amount": "500.00"}, key)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// The failure is a completed outcome for this key: a retry replays it.
	w = doJSON(t, h, "POST", "/v1/accounts/1/withdraw", map[string]any{"amount": "500.00"}, key)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Idempotent-Replay"))
}
