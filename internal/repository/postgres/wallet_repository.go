package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"
)

type walletRepository struct {
	q querier
}

const walletColumns = `
	user_id, trust_score, verification_level, phone_verified, id_verified, address_verified,
	completed_cash_transactions, successful_transactions, disputed_transactions, total_transaction_value,
	daily_cash_limit, daily_cash_used, weekly_cash_limit, weekly_cash_used,
	monthly_cash_limit, monthly_cash_used, week_starts_on, last_reset_date,
	is_suspended, suspension_reason, created_at, updated_at`

func (r *walletRepository) Get(ctx context.Context, userID string) (*models.UserWallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM user_wallets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, translate(err, "get wallet")
	}
	return w, nil
}

func (r *walletRepository) EnsureForUpdate(ctx context.Context, fresh *models.UserWallet) (*models.UserWallet, error) {
	query := `INSERT INTO user_wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.q.Exec(ctx, query, walletArgs(fresh)...); err != nil {
		return nil, translate(err, "create wallet")
	}

	w, err := scanWallet(r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM user_wallets WHERE user_id = $1 FOR UPDATE`, fresh.UserID))
	if err != nil {
		return nil, translate(err, "lock wallet")
	}
	return w, nil
}

func (r *walletRepository) Update(ctx context.Context, w *models.UserWallet) error {
	query := `
		UPDATE user_wallets SET
			trust_score = $2, verification_level = $3, phone_verified = $4, id_verified = $5, address_verified = $6,
			completed_cash_transactions = $7, successful_transactions = $8, disputed_transactions = $9,
			total_transaction_value = $10, daily_cash_limit = $11, daily_cash_used = $12,
			weekly_cash_limit = $13, weekly_cash_used = $14, monthly_cash_limit = $15, monthly_cash_used = $16,
			week_starts_on = $17, last_reset_date = $18, is_suspended = $19, suspension_reason = $20,
			updated_at = $21
		WHERE user_id = $1`

	tag, err := r.q.Exec(ctx, query,
		w.UserID, w.TrustScore, string(w.VerificationLevel), w.PhoneVerified, w.IDVerified, w.AddressVerified,
		w.CompletedCashTransactions, w.SuccessfulTransactions, w.DisputedTransactions,
		w.TotalTransactionValue, w.DailyCashLimit, w.DailyCashUsed,
		w.WeeklyCashLimit, w.WeeklyCashUsed, w.MonthlyCashLimit, w.MonthlyCashUsed,
		int16(w.WeekStartsOn), w.LastResetDate, w.IsSuspended, w.SuspensionReason,
		w.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update wallet")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// walletArgs follows walletColumns order for inserts.
func walletArgs(w *models.UserWallet) []any {
	return []any{
		w.UserID, w.TrustScore, string(w.VerificationLevel), w.PhoneVerified, w.IDVerified, w.AddressVerified,
		w.CompletedCashTransactions, w.SuccessfulTransactions, w.DisputedTransactions, w.TotalTransactionValue,
		w.DailyCashLimit, w.DailyCashUsed, w.WeeklyCashLimit, w.WeeklyCashUsed,
		w.MonthlyCashLimit, w.MonthlyCashUsed, int16(w.WeekStartsOn), w.LastResetDate,
		w.IsSuspended, w.SuspensionReason, w.CreatedAt, w.UpdatedAt,
	}
}

func scanWallet(row pgx.Row) (*models.UserWallet, error) {
	var (
		w         models.UserWallet
		level     string
		weekStart int16
	)
	err := row.Scan(
		&w.UserID, &w.TrustScore, &level, &w.PhoneVerified, &w.IDVerified, &w.AddressVerified,
		&w.CompletedCashTransactions, &w.SuccessfulTransactions, &w.DisputedTransactions, &w.TotalTransactionValue,
		&w.DailyCashLimit, &w.DailyCashUsed, &w.WeeklyCashLimit, &w.WeeklyCashUsed,
		&w.MonthlyCashLimit, &w.MonthlyCashUsed, &weekStart, &w.LastResetDate,
		&w.IsSuspended, &w.SuspensionReason, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.VerificationLevel = models.VerificationLevel(level)
	w.WeekStartsOn = time.Weekday(weekStart)
	return &w, nil
}
