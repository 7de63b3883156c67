package model

import (
	"strings"
	"time"
)

// Credentials is the plaintext form of an exchange API credential set. It is
// transient: only its sealed form (CredentialRecord) is ever persisted.
// An empty or all-whitespace Passphrase means "not supplied".
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// HasPassphrase reports whether a passphrase was supplied.
func (c Credentials) HasPassphrase() bool {
	return strings.TrimSpace(c.Passphrase) != ""
}

// KDFParams is the Argon2id work factor a record was sealed with.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// CredentialRecord is the encrypted-at-rest representation of one exchange's
// credentials. Salt and Nonce are fresh random bytes for every seal.
type CredentialRecord struct {
	ExchangeID string
	Ciphertext []byte
	Salt       []byte
	Nonce      []byte
	KDF        KDFParams
	UpdatedAt  time.Time
}
