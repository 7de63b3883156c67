package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
	"github.com/ericfisherdev/exchangevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VaultStore = (*CredentialRepo)(nil)

// CredentialRepo is the PostgreSQL implementation of the VaultStore port interface.
type CredentialRepo struct {
	db *sql.DB
}

// NewCredentialRepo creates a new CredentialRepo backed by db.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Put upserts the sealed record in a single statement.
func (r *CredentialRepo) Put(ctx context.Context, record model.CredentialRecord) error {
	const query = `
		INSERT INTO credentials (exchange_id, ciphertext, salt, nonce, kdf_time, kdf_memory_kib, kdf_threads, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (exchange_id) DO UPDATE SET
			ciphertext     = EXCLUDED.ciphertext,
			salt           = EXCLUDED.salt,
			nonce          = EXCLUDED.nonce,
			kdf_time       = EXCLUDED.kdf_time,
			kdf_memory_kib = EXCLUDED.kdf_memory_kib,
			kdf_threads    = EXCLUDED.kdf_threads,
			updated_at     = NOW()`

	_, err := r.db.ExecContext(ctx, query,
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

// Get returns the sealed record for exchangeID or driven.ErrCredentialNotFound.
func (r *CredentialRepo) Get(ctx context.Context, exchangeID string) (model.CredentialRecord, error) {
	const query = `
		SELECT exchange_id, ciphertext, salt, nonce, kdf_time, kdf_memory_kib, kdf_threads, updated_at
		FROM credentials WHERE exchange_id = $1`

	var (
		rec                       model.CredentialRecord
		kdfTime, kdfMem, kdfThrds int64
	)
	err := r.db.QueryRowContext(ctx, query, exchangeID).Scan(
		&rec.ExchangeID,
		&rec.Ciphertext,
		&rec.Salt,
		&rec.Nonce,
		&kdfTime,
		&kdfMem,
		&kdfThrds,
		&rec.UpdatedAt,
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
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	return rec, nil
}

// Delete removes the record for exchangeID or returns driven.ErrCredentialNotFound.
func (r *CredentialRepo) Delete(ctx context.Context, exchangeID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE exchange_id = $1`, exchangeID)
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

// ListConfigured returns stored exchange ids in alphabetical order.
func (r *CredentialRepo) ListConfigured(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT exchange_id FROM credentials ORDER BY exchange_id`)
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

func clampUint32(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(v)
}

func clampUint8(v int64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
