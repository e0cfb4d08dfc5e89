package service

import (
	"fmt"

	"cash-settlement-service/internal/models"
)

func txData(tx *models.CashTransaction) map[string]string {
	return map[string]string{
		"transaction_id": tx.ID,
		"booking_id":     tx.BookingID,
		"amount":         tx.Amount.StringFixed(moneyPlaces),
		"currency":       tx.Currency,
	}
}

// notifyCreated sends the rider their code and the driver only the amount to
// collect.
func (s *CashPaymentService) notifyCreated(tx *models.CashTransaction, riderCode string) {
	riderData := txData(tx)
	riderData["confirmation_code"] = riderCode
	s.dispatcher.Dispatch(tx.RiderID, models.Notification{
		Title: "Cash payment ready",
		Body:  fmt.Sprintf("Pay %s %s to your driver and confirm with code %s.", tx.Amount.StringFixed(moneyPlaces), tx.Currency, riderCode),
		Type:  models.NotifyCashPaymentCreated,
		Data:  riderData,
	})

	s.dispatcher.Dispatch(tx.DriverID, models.Notification{
		Title: "Cash payment expected",
		Body:  fmt.Sprintf("Collect %s %s in cash from your rider.", tx.Amount.StringFixed(moneyPlaces), tx.Currency),
		Type:  models.NotifyCashPaymentExpected,
		Data:  txData(tx),
	})
}

func (s *CashPaymentService) notifyConfirmationRequired(tx *models.CashTransaction, userID string, confirmedBy models.PartyRole) {
	body := "Your driver confirmed receiving the cash. Please confirm your payment."
	if confirmedBy == models.RoleRider {
		body = "Your rider confirmed paying in cash. Please confirm the amount you received."
	}
	s.dispatcher.Dispatch(userID, models.Notification{
		Title: "Confirm cash payment",
		Body:  body,
		Type:  models.NotifyConfirmationRequired,
		Data:  txData(tx),
	})
}

func (s *CashPaymentService) notifyBoth(tx *models.CashTransaction, title, body string, typ models.NotificationType) {
	for _, userID := range []string{tx.RiderID, tx.DriverID} {
		s.dispatcher.Dispatch(userID, models.Notification{
			Title: title,
			Body:  body,
			Type:  typ,
			Data:  txData(tx),
		})
	}
}

func (s *CashPaymentService) notifyCompleted(tx *models.CashTransaction) {
	s.notifyBoth(tx, "Cash payment completed",
		fmt.Sprintf("The cash payment of %s %s is settled.", tx.Amount.StringFixed(moneyPlaces), tx.Currency),
		models.NotifyCashPaymentCompleted)
}

func (s *CashPaymentService) notifyExpired(tx *models.CashTransaction) {
	s.notifyBoth(tx, "Cash payment expired",
		"The cash payment was not confirmed by both parties in time.",
		models.NotifyCashPaymentExpired)
}

func (s *CashPaymentService) notifyDisputed(tx *models.CashTransaction, reporter models.PartyRole) {
	data := txData(tx)
	data["reported_by"] = string(reporter)
	s.dispatcher.Dispatch(tx.Counterparty(reporter), models.Notification{
		Title: "Cash payment disputed",
		Body:  "A dispute was opened for this cash payment. Our team will review it.",
		Type:  models.NotifyCashPaymentDisputed,
		Data:  data,
	})
}
