package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/exchangevault/internal/application"
)

// PasswordHeader carries the encryption password on every request that needs
// one. It is read per request and never stored.
const PasswordHeader = "X-Encryption-Password"

// maxBodyBytes caps save request bodies.
const maxBodyBytes = 64 << 10

// Handler is the HTTP driving adapter that serves the credential vault API.
type Handler struct {
	vault                    *application.VaultService
	requirePasswordForStatus bool
	logger                   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. When
// requirePasswordForStatus is set, the status listing also demands the
// password header.
func NewHandler(vault *application.VaultService, requirePasswordForStatus bool, logger *slog.Logger) *Handler {
	return &Handler{
		vault:                    vault,
		requirePasswordForStatus: requirePasswordForStatus,
		logger:                   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. Credential routes additionally pass
// through limiter, which may be nil.
func NewServeMux(h *Handler, limiter *RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	limited := func(fn http.HandlerFunc) http.Handler {
		return rateLimitMiddleware(limiter, fn)
	}

	mux.Handle("GET /api/keys", limited(h.ListStatus))
	mux.Handle("POST /api/keys", limited(h.SaveKeys))
	mux.Handle("DELETE /api/keys/{exchange}", limited(h.RemoveKeys))
	mux.Handle("GET /api/keys/requirements/{exchange}", limited(h.Requirements))
	mux.HandleFunc("GET /api/exchanges", h.ListExchanges)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListStatus returns, for every supported exchange, whether credentials are stored.
func (h *Handler) ListStatus(w http.ResponseWriter, r *http.Request) {
	if h.requirePasswordForStatus && r.Header.Get(PasswordHeader) == "" {
		writeError(w, http.StatusUnauthorized, "encryption password required")
		return
	}

	status, err := h.vault.ListStatus(r.Context())
	if err != nil {
		h.writeServiceError(w, "list status", err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// SaveKeys encrypts and stores credentials for one exchange.
func (h *Handler) SaveKeys(w http.ResponseWriter, r *http.Request) {
	var req SaveKeysRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	password := r.Header.Get(PasswordHeader)
	if err := h.vault.SaveCredentials(r.Context(), password, req.Exchange, req.Keys.toCredentials()); err != nil {
		h.writeServiceError(w, "save keys", err)
		return
	}

	writeJSON(w, http.StatusOK, success)
}

// RemoveKeys deletes the stored credentials for the exchange in the path.
func (h *Handler) RemoveKeys(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(PasswordHeader) == "" {
		writeError(w, http.StatusUnauthorized, "encryption password required")
		return
	}

	if err := h.vault.RemoveCredentials(r.Context(), r.PathValue("exchange")); err != nil {
		h.writeServiceError(w, "remove keys", err)
		return
	}

	writeJSON(w, http.StatusOK, success)
}

// Requirements describes which credential fields an exchange needs.
func (h *Handler) Requirements(w http.ResponseWriter, r *http.Request) {
	def, err := h.vault.Requirements(r.PathValue("exchange"))
	if err != nil {
		writeError(w, http.StatusNotFound, "exchange not supported")
		return
	}

	writeJSON(w, http.StatusOK, toExchangeResponse(def))
}

// ListExchanges returns the supported exchange catalog.
func (h *Handler) ListExchanges(w http.ResponseWriter, _ *http.Request) {
	defs := h.vault.Exchanges()

	resp := ExchangesResponse{
		CatalogVersion: h.vault.CatalogVersion(),
		Exchanges:      make([]ExchangeResponse, 0, len(defs)),
	}
	for _, def := range defs {
		resp.Exchanges = append(resp.Exchanges, toExchangeResponse(def))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps vault errors to HTTP status codes. Validation
// messages are safe to echo; storage and unexpected failures are not.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, application.ErrUnknownExchange),
		errors.Is(err, application.ErrMissingField),
		errors.Is(err, application.ErrUnexpectedField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrEmptyPassword):
		writeError(w, http.StatusUnauthorized, "encryption password required")
	case errors.Is(err, application.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, "credentials not found")
	case errors.Is(err, application.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
