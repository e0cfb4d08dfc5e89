package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"
)

// Store is an in-process transactional store. WithinTx holds a single lock for
// the whole unit of work, which serializes writers the way row locks do, and
// restores a snapshot when the callback fails.
type Store struct {
	mu sync.Mutex

	transactions map[string]models.CashTransaction
	wallets      map[string]models.UserWallet
	holds        map[string]models.TrustHold
	disputes     map[string]models.CashDispute
	bookings     map[string]models.Booking
}

func NewStore() *Store {
	return &Store{
		transactions: make(map[string]models.CashTransaction),
		wallets:      make(map[string]models.UserWallet),
		holds:        make(map[string]models.TrustHold),
		disputes:     make(map[string]models.CashDispute),
		bookings:     make(map[string]models.Booking),
	}
}

type snapshot struct {
	transactions map[string]models.CashTransaction
	wallets      map[string]models.UserWallet
	holds        map[string]models.TrustHold
	disputes     map[string]models.CashDispute
	bookings     map[string]models.Booking
}

// Stored values are never mutated in place, so copying the maps is enough.
func (s *Store) snapshot() snapshot {
	return snapshot{
		transactions: copyMap(s.transactions),
		wallets:      copyMap(s.wallets),
		holds:        copyMap(s.holds),
		disputes:     copyMap(s.disputes),
		bookings:     copyMap(s.bookings),
	}
}

func (s *Store) restore(snap snapshot) {
	s.transactions = snap.transactions
	s.wallets = snap.wallets
	s.holds = snap.holds
	s.disputes = snap.disputes
	s.bookings = snap.bookings
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s.repos(true))
}

func (s *Store) Repositories() repository.Repositories {
	return s.repos(false)
}

func (s *Store) repos(inTx bool) repository.Repositories {
	return repository.Repositories{
		Transactions: &transactionRepo{s: s, inTx: inTx},
		Wallets:      &walletRepo{s: s, inTx: inTx},
		Holds:        &holdRepo{s: s, inTx: inTx},
		Disputes:     &disputeRepo{s: s, inTx: inTx},
		Bookings:     &bookingRepo{s: s, inTx: inTx},
	}
}

func (s *Store) HealthCheck(ctx context.Context) error { return nil }

func (s *Store) Close() {}

// PutBooking seeds a booking. Bookings belong to another service, so the
// store only ever updates them.
func (s *Store) PutBooking(b models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// lock is a no-op inside WithinTx, which already holds the store lock.
func (s *Store) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type transactionRepo struct {
	s    *Store
	inTx bool
}

func (r *transactionRepo) Create(ctx context.Context, tx *models.CashTransaction) error {
	defer r.s.lock(r.inTx)()
	if _, ok := r.s.transactions[tx.ID]; ok {
		return repository.ErrAlreadyExists
	}
	r.s.transactions[tx.ID] = cloneTransaction(*tx)
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*models.CashTransaction, error) {
	defer r.s.lock(r.inTx)()
	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTransaction(tx)
	return &out, nil
}

func (r *transactionRepo) GetForUpdate(ctx context.Context, id string) (*models.CashTransaction, error) {
	return r.GetByID(ctx, id)
}

func (r *transactionRepo) Update(ctx context.Context, tx *models.CashTransaction) error {
	defer r.s.lock(r.inTx)()
	current, ok := r.s.transactions[tx.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := cloneTransaction(*tx)
	next.Amount = current.Amount
	next.ExpectedAmount = current.ExpectedAmount
	next.RiderCode = current.RiderCode
	next.DriverCode = current.DriverCode
	next.CreatedAt = current.CreatedAt
	r.s.transactions[tx.ID] = next
	return nil
}

func (r *transactionRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	defer r.s.lock(r.inTx)()
	var due []models.CashTransaction
	for _, tx := range r.s.transactions {
		switch tx.Status {
		case models.StatusPendingVerification, models.StatusDriverConfirmed, models.StatusRiderConfirmed:
			if !now.Before(tx.ExpiresAt) {
				due = append(due, tx)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i, tx := range due {
		ids[i] = tx.ID
	}
	return ids, nil
}

type walletRepo struct {
	s    *Store
	inTx bool
}

func (r *walletRepo) Get(ctx context.Context, userID string) (*models.UserWallet, error) {
	defer r.s.lock(r.inTx)()
	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (r *walletRepo) EnsureForUpdate(ctx context.Context, fresh *models.UserWallet) (*models.UserWallet, error) {
	defer r.s.lock(r.inTx)()
	w, ok := r.s.wallets[fresh.UserID]
	if !ok {
		w = *fresh
		r.s.wallets[w.UserID] = w
	}
	return &w, nil
}

func (r *walletRepo) Update(ctx context.Context, w *models.UserWallet) error {
	defer r.s.lock(r.inTx)()
	if _, ok := r.s.wallets[w.UserID]; !ok {
		return repository.ErrNotFound
	}
	r.s.wallets[w.UserID] = *w
	return nil
}

type holdRepo struct {
	s    *Store
	inTx bool
}

func (r *holdRepo) Create(ctx context.Context, h *models.TrustHold) error {
	defer r.s.lock(r.inTx)()
	for _, existing := range r.s.holds {
		if existing.TransactionID == h.TransactionID && existing.Status == models.HoldStatusActive {
			return repository.ErrAlreadyExists
		}
	}
	r.s.holds[h.ID] = cloneHold(*h)
	return nil
}

func (r *holdRepo) GetActiveByTransaction(ctx context.Context, transactionID string) (*models.TrustHold, error) {
	defer r.s.lock(r.inTx)()
	h, ok := r.s.activeHold(transactionID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &h, nil
}

func (r *holdRepo) Release(ctx context.Context, transactionID, reason string, at time.Time) (*models.TrustHold, error) {
	defer r.s.lock(r.inTx)()
	h, ok := r.s.activeHold(transactionID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	h.Status = models.HoldStatusReleased
	h.ReleasedAt = &at
	h.ReleaseReason = reason
	r.s.holds[h.ID] = h
	out := cloneHold(h)
	return &out, nil
}

func (s *Store) activeHold(transactionID string) (models.TrustHold, bool) {
	for _, h := range s.holds {
		if h.TransactionID == transactionID && h.Status == models.HoldStatusActive {
			return cloneHold(h), true
		}
	}
	return models.TrustHold{}, false
}

type disputeRepo struct {
	s    *Store
	inTx bool
}

func (r *disputeRepo) Create(ctx context.Context, d *models.CashDispute) error {
	defer r.s.lock(r.inTx)()
	if _, ok := r.s.disputes[d.ID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *d
	cp.Evidence = append([]string(nil), d.Evidence...)
	r.s.disputes[d.ID] = cp
	return nil
}

func (r *disputeRepo) GetByID(ctx context.Context, id string) (*models.CashDispute, error) {
	defer r.s.lock(r.inTx)()
	d, ok := r.s.disputes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d.Evidence = append([]string(nil), d.Evidence...)
	return &d, nil
}

type bookingRepo struct {
	s    *Store
	inTx bool
}

func (r *bookingRepo) FindBooking(ctx context.Context, id string) (*models.Booking, error) {
	defer r.s.lock(r.inTx)()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r *bookingRepo) UpdatePaymentReference(ctx context.Context, id, transactionID string) error {
	defer r.s.lock(r.inTx)()
	b, ok := r.s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.PaymentReference = transactionID
	b.PaymentMethod = "cash"
	r.s.bookings[id] = b
	return nil
}

func (r *bookingRepo) MarkPaymentCompleted(ctx context.Context, id string) error {
	defer r.s.lock(r.inTx)()
	b, ok := r.s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.PaymentStatus = models.BookingPaymentCompleted
	r.s.bookings[id] = b
	return nil
}

func cloneTransaction(tx models.CashTransaction) models.CashTransaction {
	if tx.ActualAmountClaimed != nil {
		v := *tx.ActualAmountClaimed
		tx.ActualAmountClaimed = &v
	}
	if tx.Location != nil {
		v := *tx.Location
		tx.Location = &v
	}
	tx.RiderConfirmedAt = cloneTime(tx.RiderConfirmedAt)
	tx.DriverConfirmedAt = cloneTime(tx.DriverConfirmedAt)
	tx.CompletedAt = cloneTime(tx.CompletedAt)
	tx.FraudFlags = append([]models.FraudFlag(nil), tx.FraudFlags...)
	tx.Metadata.Entries = append([]models.MetadataEntry(nil), tx.Metadata.Entries...)
	return tx
}

func cloneHold(h models.TrustHold) models.TrustHold {
	h.ReleasedAt = cloneTime(h.ReleasedAt)
	return h
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
