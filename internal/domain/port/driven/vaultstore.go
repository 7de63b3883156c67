// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
)

// ErrCredentialNotFound is returned by VaultStore implementations when no
// record exists for the requested exchange id.
var ErrCredentialNotFound = errors.New("credential not found")

// VaultStore defines the driven port for encrypted credential persistence.
// Implementations only ever see sealed records; they never encrypt, decrypt,
// or observe a password.
type VaultStore interface {
	// Put stores record, replacing any existing record for the same exchange
	// id in full. The replacement must be atomic: concurrent readers observe
	// either the previous record or the new one.
	Put(ctx context.Context, record model.CredentialRecord) error

	// Get returns the record for exchangeID, or ErrCredentialNotFound.
	Get(ctx context.Context, exchangeID string) (model.CredentialRecord, error)

	// Delete removes the record for exchangeID. Returns ErrCredentialNotFound
	// if no record existed.
	Delete(ctx context.Context, exchangeID string) error

	// ListConfigured returns the ids of all exchanges with a stored record,
	// ordered alphabetically.
	ListConfigured(ctx context.Context) ([]string, error)
}
