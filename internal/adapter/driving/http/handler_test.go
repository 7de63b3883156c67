package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/exchangevault/internal/adapter/driven/vaultcrypto"
	httphandler "github.com/ericfisherdev/exchangevault/internal/adapter/driving/http"
	"github.com/ericfisherdev/exchangevault/internal/application"
	"github.com/ericfisherdev/exchangevault/internal/domain/model"
	"github.com/ericfisherdev/exchangevault/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockVaultStore struct {
	mu      sync.Mutex
	records map[string]model.CredentialRecord
	err     error
}

func newMockVaultStore() *mockVaultStore {
	return &mockVaultStore{records: make(map[string]model.CredentialRecord)}
}

func (m *mockVaultStore) Put(_ context.Context, record model.CredentialRecord) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ExchangeID] = record
	return nil
}

func (m *mockVaultStore) Get(_ context.Context, exchangeID string) (model.CredentialRecord, error) {
	if m.err != nil {
		return model.CredentialRecord{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[exchangeID]
	if !ok {
		return model.CredentialRecord{}, driven.ErrCredentialNotFound
	}
	return rec, nil
}

func (m *mockVaultStore) Delete(_ context.Context, exchangeID string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[exchangeID]; !ok {
		return driven.ErrCredentialNotFound
	}
	delete(m.records, exchangeID)
	return nil
}

func (m *mockVaultStore) ListConfigured(_ context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// --- Test helpers ---

type testEnv struct {
	vault  *application.VaultService
	store  *mockVaultStore
	router http.Handler
}

func setupTestEnv(t *testing.T, requirePasswordForStatus bool, limiter *httphandler.RateLimiter) testEnv {
	t.Helper()

	codec, err := vaultcrypto.NewCodec(model.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1})
	require.NoError(t, err)

	store := newMockVaultStore()
	vault := application.NewVaultService(model.DefaultRegistry(), codec, store, time.Second, slog.Default())
	h := httphandler.NewHandler(vault, requirePasswordForStatus, slog.Default())

	return testEnv{
		vault:  vault,
		store:  store,
		router: httphandler.NewServeMux(h, limiter, slog.Default()),
	}
}

func doRequest(t *testing.T, router http.Handler, method, path, password, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if password != "" {
		req.Header.Set(httphandler.PasswordHeader, password)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) map[string]bool {
	t.Helper()
	var status map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

// --- Tests ---

func TestScenario_SaveStatusRemove(t *testing.T) {
	env := setupTestEnv(t, false, nil)

	rec := doRequest(t, env.router, http.MethodPost, "/api/keys", "hunter2",
		`{"exchange":"binance","keys":{"api_key":"A","secret_key":"B"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

	rec = doRequest(t, env.router, http.MethodGet, "/api/keys", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeStatus(t, rec)
	assert.Len(t, status, 10)
	assert.True(t, status["binance"])
	assert.False(t, status["kucoin"])

	got, err := env.vault.LoadCredentials(context.Background(), "hunter2", "binance")
	require.NoError(t, err)
	assert.Equal(t, model.Credentials{APIKey: "A", SecretKey: "B"}, got)

	_, err = env.vault.LoadCredentials(context.Background(), "wrong", "binance")
	assert.ErrorIs(t, err, application.ErrAuthentication)

	rec = doRequest(t, env.router, http.MethodDelete, "/api/keys/binance", "hunter2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

	rec = doRequest(t, env.router, http.MethodGet, "/api/keys", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeStatus(t, rec)["binance"])
}

func TestSaveKeys_Errors(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		body       string
		wantStatus int
		wantErr    string
	}{
		{
			name:       "invalid json",
			password:   "pw",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid request body",
		},
		{
			name:       "unknown exchange",
			password:   "pw",
			body:       `{"exchange":"ftx","keys":{"api_key":"A","secret_key":"B"}}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "unknown exchange",
		},
		{
			name:       "kucoin missing passphrase",
			password:   "pw",
			body:       `{"exchange":"kucoin","keys":{"api_key":"A","secret_key":"B"}}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "passphrase",
		},
		{
			name:       "binance unexpected passphrase",
			password:   "pw",
			body:       `{"exchange":"binance","keys":{"api_key":"A","secret_key":"B","passphrase":"C"}}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "unexpected field",
		},
		{
			name:       "missing secret",
			password:   "pw",
			body:       `{"exchange":"bybit","keys":{"api_key":"A"}}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "secret_key",
		},
		{
			name:       "missing password header",
			password:   "",
			body:       `{"exchange":"bybit","keys":{"api_key":"A","secret_key":"B"}}`,
			wantStatus: http.StatusUnauthorized,
			wantErr:    "encryption password required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, false, nil)

			rec := doRequest(t, env.router, http.MethodPost, "/api/keys", tt.password, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.wantErr)
			assert.Empty(t, env.store.records)
		})
	}
}

func TestRemoveKeys_Errors(t *testing.T) {
	env := setupTestEnv(t, false, nil)

	rec := doRequest(t, env.router, http.MethodDelete, "/api/keys/binance", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, env.router, http.MethodDelete, "/api/keys/binance", "pw", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "credentials not found", decodeError(t, rec))

	rec = doRequest(t, env.router, http.MethodDelete, "/api/keys/ftx", "pw", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStatus_RequirePassword(t *testing.T) {
	env := setupTestEnv(t, true, nil)

	rec := doRequest(t, env.router, http.MethodGet, "/api/keys", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, env.router, http.MethodGet, "/api/keys", "anything", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStorageUnavailable(t *testing.T) {
	env := setupTestEnv(t, false, nil)
	env.store.err = errors.New("database is locked: SQLITE_BUSY /var/lib/vault.db")

	rec := doRequest(t, env.router, http.MethodGet, "/api/keys", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage unavailable", decodeError(t, rec), "store details must not leak")

	rec = doRequest(t, env.router, http.MethodPost, "/api/keys", "pw",
		`{"exchange":"mexc","keys":{"api_key":"A","secret_key":"B"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, env.router, http.MethodDelete, "/api/keys/mexc", "pw", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequirements(t *testing.T) {
	env := setupTestEnv(t, false, nil)

	rec := doRequest(t, env.router, http.MethodGet, "/api/keys/requirements/okx", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.ExchangeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "okx", resp.ID)
	assert.Equal(t, "OKX", resp.DisplayName)
	assert.True(t, resp.RequiresPassphrase)
	assert.Equal(t, []string{"api_key", "secret_key", "passphrase"}, resp.RequiredKeys)

	rec = doRequest(t, env.router, http.MethodGet, "/api/keys/requirements/ftx", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListExchanges(t *testing.T) {
	env := setupTestEnv(t, false, nil)

	rec := doRequest(t, env.router, http.MethodGet, "/api/exchanges", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.ExchangesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.CatalogVersion, resp.CatalogVersion)
	require.Len(t, resp.Exchanges, 10)
	assert.Equal(t, "binance", resp.Exchanges[0].ID)
	assert.Equal(t, []string{"api_key", "secret_key"}, resp.Exchanges[0].RequiredKeys)
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, false, nil)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp httphandler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	_, err := time.Parse(time.RFC3339, resp.Time)
	assert.NoError(t, err)
}

func TestRequestID(t *testing.T) {
	env := setupTestEnv(t, false, nil)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/health", "", "")
	assert.NotEmpty(t, rec.Header().Get(httphandler.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(httphandler.RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(httphandler.RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	limiter := httphandler.NewRateLimiter(ctx, 1, 2, slog.Default())
	env := setupTestEnv(t, false, limiter)

	for range 2 {
		rec := doRequest(t, env.router, http.MethodGet, "/api/keys", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, env.router, http.MethodGet, "/api/keys", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health is outside the limited group.
	rec = doRequest(t, env.router, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t, false, nil)

	rec := doRequest(t, env.router, http.MethodPut, "/api/keys", "pw", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
