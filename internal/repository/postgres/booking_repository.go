package postgres

import (
	"context"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"
)

// bookingRepository touches only the payment columns of the bookings table.
type bookingRepository struct {
	q querier
}

func (r *bookingRepository) FindBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `
		SELECT id, rider_id, driver_id, fare_amount, payment_method, payment_status, payment_reference
		FROM bookings WHERE id = $1 FOR UPDATE`

	var (
		b      models.Booking
		status string
	)
	err := r.q.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.RiderID, &b.DriverID, &b.FareAmount, &b.PaymentMethod, &status, &b.PaymentReference,
	)
	if err != nil {
		return nil, translate(err, "get booking")
	}
	b.PaymentStatus = models.BookingPaymentStatus(status)
	return &b, nil
}

func (r *bookingRepository) UpdatePaymentReference(ctx context.Context, id, transactionID string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE bookings SET payment_method = 'cash', payment_reference = $2 WHERE id = $1`,
		id, transactionID)
	if err != nil {
		return translate(err, "update booking payment reference")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *bookingRepository) MarkPaymentCompleted(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE bookings SET payment_status = 'completed' WHERE id = $1`, id)
	if err != nil {
		return translate(err, "mark booking payment completed")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
