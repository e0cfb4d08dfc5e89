package repository

import (
	"context"
	"errors"
	"time"

	"cash-settlement-service/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// CashTransactionRepository persists settlement transactions. Update never
// rewrites amounts or confirmation codes.
type CashTransactionRepository interface {
	Create(ctx context.Context, tx *models.CashTransaction) error
	GetByID(ctx context.Context, id string) (*models.CashTransaction, error)
	GetForUpdate(ctx context.Context, id string) (*models.CashTransaction, error)
	Update(ctx context.Context, tx *models.CashTransaction) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type WalletRepository interface {
	Get(ctx context.Context, userID string) (*models.UserWallet, error)
	// EnsureForUpdate inserts fresh when the user has no wallet yet, then
	// locks and returns the stored wallet.
	EnsureForUpdate(ctx context.Context, fresh *models.UserWallet) (*models.UserWallet, error)
	Update(ctx context.Context, w *models.UserWallet) error
}

type HoldRepository interface {
	Create(ctx context.Context, h *models.TrustHold) error
	GetActiveByTransaction(ctx context.Context, transactionID string) (*models.TrustHold, error)
	// Release marks the active hold released. ErrNotFound when none is active.
	Release(ctx context.Context, transactionID, reason string, at time.Time) (*models.TrustHold, error)
}

type DisputeRepository interface {
	Create(ctx context.Context, d *models.CashDispute) error
	GetByID(ctx context.Context, id string) (*models.CashDispute, error)
}

type BookingRepository interface {
	FindBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdatePaymentReference(ctx context.Context, id, transactionID string) error
	MarkPaymentCompleted(ctx context.Context, id string) error
}

// Repositories is the set of entity repositories bound to one unit of work.
type Repositories struct {
	Transactions CashTransactionRepository
	Wallets      WalletRepository
	Holds        HoldRepository
	Disputes     DisputeRepository
	Bookings     BookingRepository
}

// Store is the transactional store. WithinTx commits when fn returns nil and
// rolls back every mutation otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Repositories() Repositories
	HealthCheck(ctx context.Context) error
	Close()
}

// TransactionEventRepository keeps the append-only status timeline.
type TransactionEventRepository interface {
	Append(ctx context.Context, event *models.TransactionEvent) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*models.TransactionEvent, error)
}

// ConfirmationAttemptRepository throttles failed confirmation attempts per
// transaction and user.
type ConfirmationAttemptRepository interface {
	IsLocked(ctx context.Context, transactionID, userID string) (bool, error)
	RecordFailure(ctx context.Context, transactionID, userID string) (int, error)
	Reset(ctx context.Context, transactionID, userID string) error
}

// DisputeIndexRepository feeds the dispute review tooling.
type DisputeIndexRepository interface {
	IndexDispute(ctx context.Context, d *models.CashDispute, tx *models.CashTransaction) error
}
