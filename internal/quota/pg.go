package quota

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGGate is the Postgres-backed Gate. The quota_consumptions table is the
// idempotency ledger; the decrement is guarded by `remaining >= n` inside
// the same transaction, so capacity can never go negative.
type PGGate struct {
	pool     *pgxpool.Pool
	tenantID string
	logger   *slog.Logger
}

func NewPGGate(pool *pgxpool.Pool, tenantID string, logger *slog.Logger) *PGGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGGate{pool: pool, tenantID: tenantID, logger: logger}
}

func (g *PGGate) HasCapacity(ctx context.Context, n int) (bool, error) {
	var ok bool
	err := g.pool.QueryRow(ctx,
		`SELECT remaining >= $2 AND (expires_at IS NULL OR expires_at > now())
		   FROM quotas WHERE tenant_id = $1`,
		g.tenantID, n,
	).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		g.logger.Error("quota capacity check failed", "tenant_id", g.tenantID, "error", err)
		return false, err
	}
	return ok, nil
}

func (g *PGGate) Consume(ctx context.Context, documentID uuid.UUID, n int) (bool, error) {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency: a repeat consume for the same document bills nothing.
	ct, err := tx.Exec(ctx,
		`INSERT INTO quota_consumptions (document_id, tenant_id, units, consumed_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (document_id) DO NOTHING`,
		documentID, g.tenantID, n,
	)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return true, tx.Commit(ctx)
	}

	ct, err = tx.Exec(ctx,
		`UPDATE quotas SET remaining = remaining - $2
		  WHERE tenant_id = $1 AND remaining >= $2
		    AND (expires_at IS NULL OR expires_at > now())`,
		g.tenantID, n,
	)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		// Exhausted or expired: roll the ledger row back too.
		return false, nil
	}
	return true, tx.Commit(ctx)
}

func (g *PGGate) Release(ctx context.Context, documentID uuid.UUID) error {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var units int
	err = tx.QueryRow(ctx,
		`DELETE FROM quota_consumptions WHERE document_id = $1 RETURNING units`,
		documentID,
	).Scan(&units)
	if errors.Is(err, pgx.ErrNoRows) {
		return tx.Commit(ctx)
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE quotas SET remaining = remaining + $2 WHERE tenant_id = $1`,
		g.tenantID, units,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (g *PGGate) Status(ctx context.Context) (Status, error) {
	var s Status
	err := g.pool.QueryRow(ctx,
		`SELECT total, remaining, COALESCE(expires_at, 'epoch'::timestamptz)
		   FROM quotas WHERE tenant_id = $1`,
		g.tenantID,
	).Scan(&s.Total, &s.Remaining, &s.ExpiresAt)
	if err != nil {
		return Status{}, err
	}
	return s, nil
}
