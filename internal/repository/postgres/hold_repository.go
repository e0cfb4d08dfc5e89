package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"cash-settlement-service/internal/models"
)

type holdRepository struct {
	q querier
}

const holdColumns = `id, user_id, transaction_id, amount, reason, status, expires_at, created_at, released_at, release_reason`

func (r *holdRepository) Create(ctx context.Context, h *models.TrustHold) error {
	query := `INSERT INTO trust_holds (` + holdColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		h.ID, h.UserID, h.TransactionID, h.Amount, h.Reason, string(h.Status),
		h.ExpiresAt, h.CreatedAt, h.ReleasedAt, h.ReleaseReason,
	)
	return translate(err, "insert trust hold")
}

func (r *holdRepository) GetActiveByTransaction(ctx context.Context, transactionID string) (*models.TrustHold, error) {
	query := `SELECT ` + holdColumns + ` FROM trust_holds WHERE transaction_id = $1 AND status = 'active'`
	h, err := scanHold(r.q.QueryRow(ctx, query, transactionID))
	if err != nil {
		return nil, translate(err, "get trust hold")
	}
	return h, nil
}

// Release flips the active hold in one statement, so two releases can never
// both succeed.
func (r *holdRepository) Release(ctx context.Context, transactionID, reason string, at time.Time) (*models.TrustHold, error) {
	query := `
		UPDATE trust_holds SET status = 'released', released_at = $2, release_reason = $3
		WHERE transaction_id = $1 AND status = 'active'
		RETURNING ` + holdColumns

	h, err := scanHold(r.q.QueryRow(ctx, query, transactionID, at, reason))
	if err != nil {
		return nil, translate(err, "release trust hold")
	}
	return h, nil
}

func scanHold(row pgx.Row) (*models.TrustHold, error) {
	var (
		h      models.TrustHold
		status string
	)
	err := row.Scan(&h.ID, &h.UserID, &h.TransactionID, &h.Amount, &h.Reason, &status,
		&h.ExpiresAt, &h.CreatedAt, &h.ReleasedAt, &h.ReleaseReason)
	if err != nil {
		return nil, err
	}
	h.Status = models.HoldStatus(status)
	return &h, nil
}
