package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// successResponse is returned by mutating endpoints.
type successResponse struct {
	Status string `json:"status"`
}

var success = successResponse{Status: "success"}

// KeysPayload carries the credential fields of a save request.
type KeysPayload struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase,omitempty"`
}

// SaveKeysRequest is the JSON body for the save credentials endpoint.
type SaveKeysRequest struct {
	Exchange string      `json:"exchange"`
	Keys     KeysPayload `json:"keys"`
}

// ExchangeResponse is the JSON representation of a catalog entry.
type ExchangeResponse struct {
	ID                 string   `json:"exchange"`
	DisplayName        string   `json:"display_name"`
	RequiresPassphrase bool     `json:"requires_passphrase"`
	RequiredKeys       []string `json:"required_keys"`
}

// ExchangesResponse is the JSON representation of the whole catalog.
type ExchangesResponse struct {
	CatalogVersion int                `json:"catalog_version"`
	Exchanges      []ExchangeResponse `json:"exchanges"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toExchangeResponse(def model.ExchangeDefinition) ExchangeResponse {
	return ExchangeResponse{
		ID:                 def.ID,
		DisplayName:        def.DisplayName,
		RequiresPassphrase: def.RequiresPassphrase,
		RequiredKeys:       def.RequiredFields(),
	}
}

func (p KeysPayload) toCredentials() model.Credentials {
	return model.Credentials{
		APIKey:     p.APIKey,
		SecretKey:  p.SecretKey,
		Passphrase: p.Passphrase,
	}
}
