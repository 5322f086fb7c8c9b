package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Criptoruim/jackalmultibuy/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const purchaseSchema = `
CREATE TABLE IF NOT EXISTS purchases (
	batch_id         TEXT PRIMARY KEY,
	requested_by     TEXT NOT NULL DEFAULT '',
	connected_wallet TEXT NOT NULL DEFAULT '',
	capacity_gb      INTEGER NOT NULL,
	months           INTEGER NOT NULL,
	days             INTEGER NOT NULL,
	referral_code    TEXT NOT NULL DEFAULT '',
	outcomes         JSONB NOT NULL,
	succeeded        INTEGER NOT NULL,
	failed           INTEGER NOT NULL,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS purchases_requested_by_created_at ON purchases (requested_by, created_at DESC);
`

// PostgresPurchaseRepository keeps purchase records in Postgres
type PostgresPurchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPurchaseRepository opens a pool for dsn
func NewPostgresPurchaseRepository(ctx context.Context, dsn string) (*PostgresPurchaseRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresPurchaseRepository{pool: pool}, nil
}

// Migrate creates the purchases table if needed
func (r *PostgresPurchaseRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, purchaseSchema); err != nil {
		return fmt.Errorf("migrate purchases table: %w", err)
	}
	return nil
}

// Ping checks the pool
func (r *PostgresPurchaseRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool
func (r *PostgresPurchaseRepository) Close() {
	r.pool.Close()
}

// SavePurchase inserts or replaces the record for its batch
func (r *PostgresPurchaseRepository) SavePurchase(ctx context.Context, record *models.PurchaseRecord) error {
	outcomes, err := json.Marshal(record.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO purchases (batch_id, requested_by, connected_wallet, capacity_gb, months, days,
			referral_code, outcomes, succeeded, failed, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (batch_id) DO UPDATE SET
			outcomes = EXCLUDED.outcomes,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			status = EXCLUDED.status`,
		record.BatchID, record.RequestedBy, record.ConnectedWallet, record.CapacityGB,
		record.Months, record.Days, record.ReferralCode, outcomes,
		record.Succeeded, record.Failed, string(record.Status), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save purchase %s: %w", record.BatchID, err)
	}
	return nil
}

// GetPurchase loads the record of a batch
func (r *PostgresPurchaseRepository) GetPurchase(ctx context.Context, batchID string) (*models.PurchaseRecord, error) {
	var (
		record   models.PurchaseRecord
		outcomes []byte
		status   string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT batch_id, requested_by, connected_wallet, capacity_gb, months, days,
			referral_code, outcomes, succeeded, failed, status, created_at
		FROM purchases WHERE batch_id = $1`, batchID,
	).Scan(
		&record.BatchID, &record.RequestedBy, &record.ConnectedWallet, &record.CapacityGB,
		&record.Months, &record.Days, &record.ReferralCode, &outcomes,
		&record.Succeeded, &record.Failed, &status, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("get purchase %s: %w", batchID, err)
	}

	if err := json.Unmarshal(outcomes, &record.Outcomes); err != nil {
		return nil, fmt.Errorf("decode outcomes: %w", err)
	}
	record.Status = models.BatchStatus(status)
	return &record, nil
}
