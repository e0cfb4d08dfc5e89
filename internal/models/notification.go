package models

type NotificationType string

const (
	NotifyCashPaymentCreated   NotificationType = "cash_payment_created"
	NotifyCashPaymentExpected  NotificationType = "cash_payment_expected"
	NotifyConfirmationRequired NotificationType = "cash_confirmation_required"
	NotifyCashPaymentCompleted NotificationType = "cash_payment_completed"
	NotifyCashPaymentExpired   NotificationType = "cash_payment_expired"
	NotifyCashPaymentDisputed  NotificationType = "cash_payment_disputed"
)

// Notification mirrors the push payload the mobile apps consume: title, body,
// type and a flat string data map.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Type  NotificationType  `json:"type"`
	Data  map[string]string `json:"data,omitempty"`
}
