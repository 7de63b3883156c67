package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
	"github.com/ericfisherdev/exchangevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VaultStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the VaultStore port interface.
// It stores sealed records as opaque blobs; it never sees plaintext.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Put stores or replaces the sealed record for record.ExchangeID. The upsert is
// a single statement, so readers never observe a partially written row.
func (r *CredentialRepo) Put(ctx context.Context, record model.CredentialRecord) error {
	const query = `
		INSERT INTO credentials (exchange_id, ciphertext, salt, nonce, kdf_time, kdf_memory_kib, kdf_threads, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(exchange_id) DO UPDATE SET
			ciphertext     = excluded.ciphertext,
			salt           = excluded.salt,
			nonce          = excluded.nonce,
			kdf_time       = excluded.kdf_time,
			kdf_memory_kib = excluded.kdf_memory_kib,
			kdf_threads    = excluded.kdf_threads,
			updated_at     = CURRENT_TIMESTAMP`

	_, err := r.db.Writer.ExecContext(ctx, query,
		record.ExchangeID,
		record.Ciphertext,
		record.Salt,
		record.Nonce,
		int64(record.KDF.Time),
		int64(record.KDF.MemoryKiB),
		int64(record.KDF.Threads),
	)
	if err != nil {
		return fmt.Errorf("put credential %q: %w", record.ExchangeID, err)
	}
	return nil
}

// Get retrieves the sealed record for exchangeID.
// Returns driven.ErrCredentialNotFound if no record exists.
func (r *CredentialRepo) Get(ctx context.Context, exchangeID string) (model.CredentialRecord, error) {
	const query = `
		SELECT exchange_id, ciphertext, salt, nonce, kdf_time, kdf_memory_kib, kdf_threads, updated_at
		FROM credentials WHERE exchange_id = ?`

	var (
		rec                       model.CredentialRecord
		kdfTime, kdfMem, kdfThrds int64
		updatedAt                 string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, exchangeID).Scan(
		&rec.ExchangeID,
		&rec.Ciphertext,
		&rec.Salt,
		&rec.Nonce,
		&kdfTime,
		&kdfMem,
		&kdfThrds,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CredentialRecord{}, driven.ErrCredentialNotFound
	}
	if err != nil {
		return model.CredentialRecord{}, fmt.Errorf("get credential %q: %w", exchangeID, err)
	}

	// Out-of-range values are left for the codec to reject as corrupted.
	rec.KDF = model.KDFParams{
		Time:      clampUint32(kdfTime),
		MemoryKiB: clampUint32(kdfMem),
		Threads:   clampUint8(kdfThrds),
	}

	rec.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.CredentialRecord{}, fmt.Errorf("parse updated_at for credential %q: %w", exchangeID, err)
	}

	return rec, nil
}

// Delete removes the sealed record for exchangeID.
// Returns driven.ErrCredentialNotFound if no record existed.
func (r *CredentialRepo) Delete(ctx context.Context, exchangeID string) error {
	const query = `DELETE FROM credentials WHERE exchange_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, exchangeID)
	if err != nil {
		return fmt.Errorf("delete credential %q: %w", exchangeID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return driven.ErrCredentialNotFound
	}

	return nil
}

// ListConfigured returns the ids of all exchanges with a stored record, ordered
// alphabetically. Only ids are read; sealed blobs never leave the table here.
func (r *CredentialRepo) ListConfigured(ctx context.Context) ([]string, error) {
	const query = `SELECT exchange_id FROM credentials ORDER BY exchange_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan exchange id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return ids, nil
}

// parseTime parses a datetime string from SQLite, which may be in various formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

func clampUint32(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

func clampUint8(v int64) uint8 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(v)
}
