package driven

import (
	"errors"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
)

// ErrAuthentication is returned by CredentialCodec.Open when a record cannot
// be authenticated. A wrong password and a corrupted record are
// indistinguishable through this error; wrapped detail is for logs only.
var ErrAuthentication = errors.New("credential authentication failed")

// CredentialCodec seals and opens credential records with a password-derived key.
// Implementations must be safe for concurrent use.
type CredentialCodec interface {
	// Seal encrypts creds for exchangeID under password with a fresh salt and nonce.
	Seal(password, exchangeID string, creds model.Credentials) (model.CredentialRecord, error)

	// Open decrypts record with password. Returns an error wrapping
	// ErrAuthentication if the record does not authenticate.
	Open(password string, record model.CredentialRecord) (model.Credentials, error)
}
