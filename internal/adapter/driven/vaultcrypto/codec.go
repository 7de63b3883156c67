// Package vaultcrypto implements the CredentialCodec port with Argon2id key
// derivation and AES-256-GCM authenticated encryption.
package vaultcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
	"github.com/ericfisherdev/exchangevault/internal/domain/port/driven"
)

const (
	keyLen   = 32 // AES-256
	saltLen  = 16
	nonceLen = 12 // standard GCM nonce

	// Upper bounds accepted when opening a stored record. A tampered record
	// must not be able to make the server burn unbounded CPU or memory.
	maxTime      = 16
	maxMemoryKiB = 1 << 20 // 1 GiB
	maxThreads   = 64
)

// DefaultKDFParams returns the Argon2id work factor used for new records,
// roughly 100ms per derivation on commodity hardware.
func DefaultKDFParams() model.KDFParams {
	return model.KDFParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// ErrInvalidParams is returned by NewCodec for an out-of-range work factor.
var ErrInvalidParams = errors.New("invalid kdf parameters")

// Compile-time interface satisfaction check.
var _ driven.CredentialCodec = (*Codec)(nil)

// Codec seals credential records. It holds only immutable parameters and is
// safe for concurrent use.
type Codec struct {
	params model.KDFParams
	rand   io.Reader
}

// NewCodec creates a Codec that seals new records with params.
func NewCodec(params model.KDFParams) (*Codec, error) {
	if err := validateParams(params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return &Codec{params: params, rand: rand.Reader}, nil
}

// Params returns the work factor used for newly sealed records.
func (c *Codec) Params() model.KDFParams {
	return c.params
}

// payload is the canonical plaintext layout. Field order is fixed by the
// struct declaration order.
type payload struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Seal encrypts creds under a key derived from password and a fresh salt.
// The exchange id is bound as additional authenticated data, so a record
// cannot be opened under a different exchange id.
func (c *Codec) Seal(password, exchangeID string, creds model.Credentials) (model.CredentialRecord, error) {
	plaintext, err := json.Marshal(payload{
		APIKey:     creds.APIKey,
		SecretKey:  creds.SecretKey,
		Passphrase: creds.Passphrase,
	})
	if err != nil {
		return model.CredentialRecord{}, fmt.Errorf("encode credentials: %w", err)
	}
	defer wipe(plaintext)

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return model.CredentialRecord{}, fmt.Errorf("rand salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return model.CredentialRecord{}, fmt.Errorf("rand nonce: %w", err)
	}

	gcm, err := newGCM(deriveKey(password, salt, c.params))
	if err != nil {
		return model.CredentialRecord{}, err
	}

	return model.CredentialRecord{
		ExchangeID: exchangeID,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, []byte(exchangeID)),
		Salt:       salt,
		Nonce:      nonce,
		KDF:        c.params,
	}, nil
}

// Open decrypts record using the work factor stored alongside it.
func (c *Codec) Open(password string, record model.CredentialRecord) (model.Credentials, error) {
	if len(record.Salt) != saltLen {
		return model.Credentials{}, fmt.Errorf("%w: salt length %d", driven.ErrAuthentication, len(record.Salt))
	}
	if len(record.Nonce) != nonceLen {
		return model.Credentials{}, fmt.Errorf("%w: nonce length %d", driven.ErrAuthentication, len(record.Nonce))
	}
	if err := validateParams(record.KDF); err != nil {
		return model.Credentials{}, fmt.Errorf("%w: %v", driven.ErrAuthentication, err)
	}

	gcm, err := newGCM(deriveKey(password, record.Salt, record.KDF))
	if err != nil {
		return model.Credentials{}, err
	}

	plaintext, err := gcm.Open(nil, record.Nonce, record.Ciphertext, []byte(record.ExchangeID))
	if err != nil {
		return model.Credentials{}, fmt.Errorf("%w: gcm.Open: %v", driven.ErrAuthentication, err)
	}
	defer wipe(plaintext)

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return model.Credentials{}, fmt.Errorf("%w: decode payload: %v", driven.ErrAuthentication, err)
	}

	return model.Credentials{
		APIKey:     p.APIKey,
		SecretKey:  p.SecretKey,
		Passphrase: p.Passphrase,
	}, nil
}

func deriveKey(password string, salt []byte, p model.KDFParams) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, keyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

func validateParams(p model.KDFParams) error {
	switch {
	case p.Time == 0 || p.Time > maxTime:
		return fmt.Errorf("kdf time %d out of range [1, %d]", p.Time, maxTime)
	case p.Threads == 0 || p.Threads > maxThreads:
		return fmt.Errorf("kdf threads %d out of range [1, %d]", p.Threads, maxThreads)
	case p.MemoryKiB < 8*uint32(p.Threads) || p.MemoryKiB > maxMemoryKiB:
		return fmt.Errorf("kdf memory %d KiB out of range [%d, %d]", p.MemoryKiB, 8*uint32(p.Threads), maxMemoryKiB)
	}
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
