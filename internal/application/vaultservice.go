// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
	"github.com/ericfisherdev/exchangevault/internal/domain/port/driven"
)

// DefaultStoreTimeout bounds every VaultStore call when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// VaultService is the externally callable surface of the credential vault. It
// validates requests against the exchange registry, enforces the password
// gate, seals and opens records through the codec, and persists them through
// the store. It depends only on port interfaces.
//
// The password is a per-call argument and is never retained.
type VaultService struct {
	registry     *model.Registry
	codec        driven.CredentialCodec
	store        driven.VaultStore
	locks        *keyLock
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewVaultService creates a new VaultService with the required dependencies.
// A non-positive storeTimeout selects DefaultStoreTimeout.
func NewVaultService(
	registry *model.Registry,
	codec driven.CredentialCodec,
	store driven.VaultStore,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *VaultService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultService{
		registry:     registry,
		codec:        codec,
		store:        store,
		locks:        newKeyLock(),
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// SaveCredentials validates creds for exchangeID, seals them under password,
// and replaces any stored record for that exchange in full.
//
// Validation order: ErrUnknownExchange, then field errors (*FieldError
// wrapping ErrMissingField or ErrUnexpectedField), then ErrEmptyPassword.
// Nothing is written unless sealing and the store upsert both succeed.
func (s *VaultService) SaveCredentials(ctx context.Context, password, exchangeID string, creds model.Credentials) error {
	def, err := s.resolve(exchangeID)
	if err != nil {
		return err
	}

	if err := validateFields(def, creds); err != nil {
		return err
	}
	if !def.RequiresPassphrase {
		creds.Passphrase = ""
	}

	if password == "" {
		return ErrEmptyPassword
	}

	// Key derivation is the slow part; keep it outside the per-exchange lock.
	record, err := s.codec.Seal(password, def.ID, creds)
	if err != nil {
		return fmt.Errorf("seal credentials for %q: %w", def.ID, err)
	}

	unlock := s.locks.Lock(def.ID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.store.Put(ctx, record); err != nil {
		return s.storeError("put", def.ID, err)
	}

	s.logger.Info("credentials saved", "exchange", def.ID)
	return nil
}

// LoadCredentials returns the plaintext credentials stored for exchangeID.
// Returns ErrNotFound when nothing is stored and ErrAuthentication when the
// password is wrong or the record is corrupted; the two causes are only
// distinguished in server logs.
func (s *VaultService) LoadCredentials(ctx context.Context, password, exchangeID string) (model.Credentials, error) {
	def, err := s.resolve(exchangeID)
	if err != nil {
		return model.Credentials{}, err
	}
	if password == "" {
		return model.Credentials{}, ErrEmptyPassword
	}

	record, err := s.get(ctx, def.ID)
	if err != nil {
		return model.Credentials{}, err
	}

	creds, err := s.codec.Open(password, record)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			s.logger.Warn("credential authentication failed", "exchange", def.ID, "detail", err.Error())
			return model.Credentials{}, fmt.Errorf("open credentials for %q: %w", def.ID, ErrAuthentication)
		}
		return model.Credentials{}, fmt.Errorf("open credentials for %q: %w", def.ID, err)
	}

	return creds, nil
}

// RemoveCredentials permanently deletes the record for exchangeID.
// Returns ErrNotFound if the exchange had no stored credentials; state is
// left untouched in that case.
func (s *VaultService) RemoveCredentials(ctx context.Context, exchangeID string) error {
	def, err := s.resolve(exchangeID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(def.ID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.store.Delete(ctx, def.ID); err != nil {
		return s.storeError("delete", def.ID, err)
	}

	s.logger.Info("credentials removed", "exchange", def.ID)
	return nil
}

// ListStatus reports, for every exchange in the registry, whether credentials
// are stored. It needs no password and never reads record contents.
func (s *VaultService) ListStatus(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	ids, err := s.store.ListConfigured(ctx)
	if err != nil {
		return nil, s.storeError("list", "", err)
	}

	status := make(map[string]bool, len(s.registry.IDs()))
	for _, id := range s.registry.IDs() {
		status[id] = false
	}
	for _, id := range ids {
		if _, known := status[id]; known {
			status[id] = true
		} else {
			s.logger.Debug("stored credentials for exchange outside catalog", "exchange", id)
		}
	}

	return status, nil
}

// Requirements returns the definition of exchangeID, including which
// credential fields it requires.
func (s *VaultService) Requirements(exchangeID string) (model.ExchangeDefinition, error) {
	return s.resolve(exchangeID)
}

// Exchanges returns the supported exchange catalog in catalog order.
func (s *VaultService) Exchanges() []model.ExchangeDefinition {
	return s.registry.All()
}

// CatalogVersion returns the revision of the exchange catalog in use.
func (s *VaultService) CatalogVersion() int {
	return s.registry.Version()
}

func (s *VaultService) resolve(exchangeID string) (model.ExchangeDefinition, error) {
	def, ok := s.registry.Lookup(exchangeID)
	if !ok {
		return model.ExchangeDefinition{}, fmt.Errorf("%w: %q", ErrUnknownExchange, exchangeID)
	}
	return def, nil
}

func (s *VaultService) get(ctx context.Context, exchangeID string) (model.CredentialRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.store.Get(ctx, exchangeID)
	if err != nil {
		return model.CredentialRecord{}, s.storeError("get", exchangeID, err)
	}
	return record, nil
}

// storeError translates a store failure into the service error taxonomy.
func (s *VaultService) storeError(op, exchangeID string, err error) error {
	if errors.Is(err, driven.ErrCredentialNotFound) {
		return fmt.Errorf("credentials for %q: %w", exchangeID, ErrNotFound)
	}

	s.logger.Error("vault store failure", "op", op, "exchange", exchangeID, "error", err)
	if exchangeID == "" {
		return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s %q: %w", ErrStorageUnavailable, op, exchangeID, err)
}

// validateFields checks creds against the fields def requires. Values made
// only of whitespace count as absent.
func validateFields(def model.ExchangeDefinition, creds model.Credentials) error {
	missing := func(field string) error {
		return &FieldError{Exchange: def.ID, Field: field, Err: ErrMissingField}
	}

	if strings.TrimSpace(creds.APIKey) == "" {
		return missing(model.FieldAPIKey)
	}
	if strings.TrimSpace(creds.SecretKey) == "" {
		return missing(model.FieldSecretKey)
	}

	hasPassphrase := creds.HasPassphrase()
	switch {
	case def.RequiresPassphrase && !hasPassphrase:
		return missing(model.FieldPassphrase)
	case !def.RequiresPassphrase && hasPassphrase:
		return &FieldError{Exchange: def.ID, Field: model.FieldPassphrase, Err: ErrUnexpectedField}
	}

	return nil
}
