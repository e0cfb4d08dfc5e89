package postgres

import (
	"context"

	"cash-settlement-service/internal/models"
)

type disputeRepository struct {
	q querier
}

func (r *disputeRepository) Create(ctx context.Context, d *models.CashDispute) error {
	query := `
		INSERT INTO cash_disputes (id, transaction_id, reporter_id, reporter_role, reason,
			description, evidence, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	evidence := d.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	_, err := r.q.Exec(ctx, query,
		d.ID, d.TransactionID, d.ReporterID, string(d.ReporterRole), d.Reason,
		d.Description, evidence, d.Priority, string(d.Status), d.CreatedAt,
	)
	return translate(err, "insert cash dispute")
}

func (r *disputeRepository) GetByID(ctx context.Context, id string) (*models.CashDispute, error) {
	query := `
		SELECT id, transaction_id, reporter_id, reporter_role, reason,
			description, evidence, priority, status, created_at
		FROM cash_disputes WHERE id = $1`

	var (
		d            models.CashDispute
		role, status string
	)
	err := r.q.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.TransactionID, &d.ReporterID, &role, &d.Reason,
		&d.Description, &d.Evidence, &d.Priority, &status, &d.CreatedAt,
	)
	if err != nil {
		return nil, translate(err, "get cash dispute")
	}
	d.ReporterRole = models.PartyRole(role)
	d.Status = models.DisputeStatus(status)
	return &d, nil
}
