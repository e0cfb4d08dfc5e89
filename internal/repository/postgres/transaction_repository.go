package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"
)

type transactionRepository struct {
	q querier
}

const transactionColumns = `
	id, booking_id, rider_id, driver_id,
	amount, expected_amount, actual_amount_claimed, platform_fee, currency,
	status, rider_code, driver_code, rider_confirmed_at, driver_confirmed_at,
	gps_location_confirmed, transaction_location, risk_score, fraud_flags,
	expires_at, completed_at, dispute_reason, metadata, created_at, updated_at`

func (r *transactionRepository) Create(ctx context.Context, tx *models.CashTransaction) error {
	riderCode, err := json.Marshal(tx.RiderCode)
	if err != nil {
		return fmt.Errorf("failed to encode rider code: %w", err)
	}
	driverCode, err := json.Marshal(tx.DriverCode)
	if err != nil {
		return fmt.Errorf("failed to encode driver code: %w", err)
	}
	location, metadata, err := encodeMutable(tx)
	if err != nil {
		return err
	}

	query := `INSERT INTO cash_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)`

	_, err = r.q.Exec(ctx, query,
		tx.ID, tx.BookingID, tx.RiderID, tx.DriverID,
		tx.Amount, tx.ExpectedAmount, nullDecimal(tx.ActualAmountClaimed), tx.PlatformFee, tx.Currency,
		string(tx.Status), riderCode, driverCode, tx.RiderConfirmedAt, tx.DriverConfirmedAt,
		tx.GPSLocationConfirmed, location, tx.RiskScore, flagStrings(tx.FraudFlags),
		tx.ExpiresAt, tx.CompletedAt, tx.DisputeReason, metadata, tx.CreatedAt, tx.UpdatedAt,
	)
	return translate(err, "insert cash transaction")
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*models.CashTransaction, error) {
	return r.get(ctx, `SELECT `+transactionColumns+` FROM cash_transactions WHERE id = $1`, id)
}

func (r *transactionRepository) GetForUpdate(ctx context.Context, id string) (*models.CashTransaction, error) {
	return r.get(ctx, `SELECT `+transactionColumns+` FROM cash_transactions WHERE id = $1 FOR UPDATE`, id)
}

func (r *transactionRepository) get(ctx context.Context, query, id string) (*models.CashTransaction, error) {
	tx, err := scanTransaction(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err, "get cash transaction")
	}
	return tx, nil
}

// Update writes the mutable columns only.
func (r *transactionRepository) Update(ctx context.Context, tx *models.CashTransaction) error {
	location, metadata, err := encodeMutable(tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE cash_transactions SET
			actual_amount_claimed = $2, platform_fee = $3, status = $4,
			rider_confirmed_at = $5, driver_confirmed_at = $6,
			gps_location_confirmed = $7, transaction_location = $8,
			risk_score = $9, fraud_flags = $10, completed_at = $11,
			dispute_reason = $12, metadata = $13, updated_at = $14
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query,
		tx.ID, nullDecimal(tx.ActualAmountClaimed), tx.PlatformFee, string(tx.Status),
		tx.RiderConfirmedAt, tx.DriverConfirmedAt,
		tx.GPSLocationConfirmed, location,
		tx.RiskScore, flagStrings(tx.FraudFlags), tx.CompletedAt,
		tx.DisputeReason, metadata, tx.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update cash transaction")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *transactionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM cash_transactions
		WHERE status IN ('pending_verification', 'driver_confirmed', 'rider_confirmed')
			AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, translate(err, "list expired cash transactions")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate(err, "scan expired cash transactions")
	}
	return ids, nil
}

func scanTransaction(row pgx.Row) (*models.CashTransaction, error) {
	var (
		tx                     models.CashTransaction
		status                 string
		actual                 decimal.NullDecimal
		riderCode, driverCode  []byte
		location, metadataJSON []byte
		flags                  []string
	)

	err := row.Scan(
		&tx.ID, &tx.BookingID, &tx.RiderID, &tx.DriverID,
		&tx.Amount, &tx.ExpectedAmount, &actual, &tx.PlatformFee, &tx.Currency,
		&status, &riderCode, &driverCode, &tx.RiderConfirmedAt, &tx.DriverConfirmedAt,
		&tx.GPSLocationConfirmed, &location, &tx.RiskScore, &flags,
		&tx.ExpiresAt, &tx.CompletedAt, &tx.DisputeReason, &metadataJSON, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Status = models.TransactionStatus(status)
	if actual.Valid {
		v := actual.Decimal
		tx.ActualAmountClaimed = &v
	}
	for _, f := range flags {
		tx.FraudFlags = append(tx.FraudFlags, models.FraudFlag(f))
	}
	if err := json.Unmarshal(riderCode, &tx.RiderCode); err != nil {
		return nil, fmt.Errorf("decode rider code: %w", err)
	}
	if err := json.Unmarshal(driverCode, &tx.DriverCode); err != nil {
		return nil, fmt.Errorf("decode driver code: %w", err)
	}
	if len(location) > 0 {
		tx.Location = &models.TransactionLocation{}
		if err := json.Unmarshal(location, tx.Location); err != nil {
			return nil, fmt.Errorf("decode transaction location: %w", err)
		}
	}
	if err := json.Unmarshal(metadataJSON, &tx.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &tx, nil
}

func encodeMutable(tx *models.CashTransaction) (location, metadata []byte, err error) {
	if tx.Location != nil {
		if location, err = json.Marshal(tx.Location); err != nil {
			return nil, nil, fmt.Errorf("failed to encode transaction location: %w", err)
		}
	}
	if metadata, err = json.Marshal(tx.Metadata); err != nil {
		return nil, nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return location, metadata, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func flagStrings(flags []models.FraudFlag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
