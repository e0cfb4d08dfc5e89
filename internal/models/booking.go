package models

import "github.com/shopspring/decimal"

type BookingPaymentStatus string

const (
	BookingPaymentPending   BookingPaymentStatus = "pending"
	BookingPaymentCompleted BookingPaymentStatus = "completed"
)

// Booking is the slice of a ride booking this service reads and updates.
type Booking struct {
	ID               string               `db:"id"`
	RiderID          string               `db:"rider_id"`
	DriverID         string               `db:"driver_id"`
	FareAmount       decimal.Decimal      `db:"fare_amount"`
	PaymentMethod    string               `db:"payment_method"`
	PaymentStatus    BookingPaymentStatus `db:"payment_status"`
	PaymentReference string               `db:"payment_reference"`
}
