package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/service"
	"cash-settlement-service/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	userIDHeader    = "X-User-ID"
	maxBodyBytes    = 64 << 10
	rejectedMessage = "confirmation rejected"
)

// CashPaymentAPI is the ledger contract the handler serves.
type CashPaymentAPI interface {
	CreateCashPayment(ctx context.Context, req service.CreateCashPaymentRequest) (*service.CreateCashPaymentResult, error)
	ConfirmCashReceived(ctx context.Context, req service.ConfirmReceivedRequest) (*service.ConfirmationResult, error)
	ConfirmCashPaid(ctx context.Context, req service.ConfirmPaidRequest) (*service.ConfirmationResult, error)
	GetTransaction(ctx context.Context, txID, requesterID string) (*service.TransactionView, error)
	GetTransactionTimeline(ctx context.Context, txID, requesterID string) ([]*models.TransactionEvent, error)
	GetWalletInfo(ctx context.Context, userID string) (*service.WalletInfo, error)
	ReportDispute(ctx context.Context, req service.ReportDisputeRequest) (*service.ReportDisputeResult, error)
	ExpireTransaction(ctx context.Context, txID string, now time.Time) (*service.ExpireResult, error)
	ReleaseHold(ctx context.Context, txID string) error
	ExpireDueTransactions(ctx context.Context, now time.Time, limit int) (*service.SweepResult, error)
}

// CashPaymentHandler handles HTTP requests for cash settlements. The caller
// is identified by the X-User-ID header set by the gateway.
type CashPaymentHandler struct {
	payments CashPaymentAPI
	logger   *zap.Logger
	now      func() time.Time
}

func NewCashPaymentHandler(payments CashPaymentAPI, logger *zap.Logger) *CashPaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CashPaymentHandler{payments: payments, logger: logger, now: time.Now}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

// RegisterRoutes registers the party-facing routes
func (h *CashPaymentHandler) RegisterRoutes(router chi.Router) {
	router.Route("/cash-payments", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/", h.CreateCashPayment)
		r.Get("/{transactionID}", h.GetTransaction)
		r.Get("/{transactionID}/timeline", h.GetTimeline)
		r.Post("/{transactionID}/confirm-received", h.ConfirmCashReceived)
		r.Post("/{transactionID}/confirm-paid", h.ConfirmCashPaid)
		r.Post("/{transactionID}/disputes", h.ReportDispute)
	})
	router.With(requireUser).Get("/wallets/me", h.GetWallet)
}

// RegisterInternalRoutes registers the routes used by schedulers and review tooling
func (h *CashPaymentHandler) RegisterInternalRoutes(router chi.Router) {
	router.Route("/cash-payments", func(r chi.Router) {
		r.Post("/expire-due", h.ExpireDue)
		r.Post("/{transactionID}/expire", h.Expire)
		r.Post("/{transactionID}/release-hold", h.ReleaseHold)
	})
}

type createCashPaymentBody struct {
	BookingID string          `json:"booking_id"`
	DriverID  string          `json:"driver_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type confirmReceivedBody struct {
	ActualAmount *decimal.Decimal       `json:"actual_amount"`
	Location     *service.LocationInput `json:"location,omitempty"`
}

type confirmPaidBody struct {
	ConfirmationCode string `json:"confirmation_code"`
}

type reportDisputeBody struct {
	Reason      string   `json:"reason"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// CreateCashPayment opens a cash settlement for the calling rider
func (h *CashPaymentHandler) CreateCashPayment(w http.ResponseWriter, r *http.Request) {
	var body createCashPaymentBody
	if err := decodeBody(w, r, &body); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.payments.CreateCashPayment(r.Context(), service.CreateCashPaymentRequest{
		BookingID: body.BookingID,
		RiderID:   userID(r),
		DriverID:  body.DriverID,
		Amount:    body.Amount,
	})
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to create cash payment", false)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(result, "Cash payment created"))
}

// ConfirmCashReceived records the calling driver's confirmation
func (h *CashPaymentHandler) ConfirmCashReceived(w http.ResponseWriter, r *http.Request) {
	var body confirmReceivedBody
	if err := decodeBody(w, r, &body); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if body.ActualAmount == nil {
		h.respondWithError(w, http.StatusBadRequest, errors.New("actual_amount is required"), "Invalid request body")
		return
	}

	result, err := h.payments.ConfirmCashReceived(r.Context(), service.ConfirmReceivedRequest{
		TransactionID: chi.URLParam(r, "transactionID"),
		DriverID:      userID(r),
		ActualAmount:  *body.ActualAmount,
		Location:      body.Location,
	})
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to confirm cash received", true)
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Confirmation recorded"))
}

// ConfirmCashPaid records the calling rider's confirmation
func (h *CashPaymentHandler) ConfirmCashPaid(w http.ResponseWriter, r *http.Request) {
	var body confirmPaidBody
	if err := decodeBody(w, r, &body); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.payments.ConfirmCashPaid(r.Context(), service.ConfirmPaidRequest{
		TransactionID:    chi.URLParam(r, "transactionID"),
		RiderID:          userID(r),
		ConfirmationCode: strings.TrimSpace(body.ConfirmationCode),
	})
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to confirm cash paid", true)
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Confirmation recorded"))
}

func (h *CashPaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	view, err := h.payments.GetTransaction(r.Context(), chi.URLParam(r, "transactionID"), userID(r))
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get cash payment", false)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(view, ""))
}

func (h *CashPaymentHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.payments.GetTransactionTimeline(r.Context(), chi.URLParam(r, "transactionID"), userID(r))
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get timeline", false)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(events, ""))
}

func (h *CashPaymentHandler) ReportDispute(w http.ResponseWriter, r *http.Request) {
	var body reportDisputeBody
	if err := decodeBody(w, r, &body); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.payments.ReportDispute(r.Context(), service.ReportDisputeRequest{
		TransactionID: chi.URLParam(r, "transactionID"),
		UserID:        userID(r),
		Reason:        body.Reason,
		Description:   body.Description,
		Evidence:      body.Evidence,
	})
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to report dispute", false)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(result, "Dispute reported"))
}

func (h *CashPaymentHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	info, err := h.payments.GetWalletInfo(r.Context(), userID(r))
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get wallet", false)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(info, ""))
}

func (h *CashPaymentHandler) Expire(w http.ResponseWriter, r *http.Request) {
	result, err := h.payments.ExpireTransaction(r.Context(), chi.URLParam(r, "transactionID"), h.now())
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to expire cash payment", false)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Cash payment expired"))
}

func (h *CashPaymentHandler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.ReleaseHold(r.Context(), chi.URLParam(r, "transactionID")); err != nil {
		h.respondWithServiceError(w, err, "Failed to release hold", false)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Hold released"))
}

func (h *CashPaymentHandler) ExpireDue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondWithError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw), "Invalid limit")
			return
		}
		limit = n
	}

	result, err := h.payments.ExpireDueTransactions(r.Context(), h.now(), limit)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to expire due cash payments", false)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, ""))
}

// Helper Methods

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userIDHeader))
}

// requireUser rejects requests the gateway did not attribute to a user
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID(r) == "" {
			writeJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "missing user identity"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// respondWithJSON sends a JSON response
func (h *CashPaymentHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	if err := writeJSON(w, statusCode, data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *CashPaymentHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, Response{Success: false, Error: err.Error(), Message: message})
}

type ineligibleBody struct {
	Reason        string             `json:"reason"`
	TrustScore    float64            `json:"trust_score"`
	RequiredTrust float64            `json:"required_trust"`
	Period        models.LimitPeriod `json:"period,omitempty"`
	Limit         *decimal.Decimal   `json:"limit,omitempty"`
	Used          *decimal.Decimal   `json:"used,omitempty"`
	Amount        decimal.Decimal    `json:"amount"`
}

// respondWithServiceError maps the service error taxonomy onto HTTP. On
// confirmation routes a wrong party and a wrong code produce the same body.
func (h *CashPaymentHandler) respondWithServiceError(w http.ResponseWriter, err error, message string, confirmation bool) {
	var inel *service.IneligibleError
	switch {
	case errors.As(err, &inel):
		body := ineligibleBody{
			Reason:        inel.Reason,
			TrustScore:    inel.TrustScore,
			RequiredTrust: inel.RequiredTrust,
			Period:        inel.Period,
			Amount:        inel.Amount,
		}
		if inel.Period != "" {
			body.Limit, body.Used = &inel.Limit, &inel.Used
		}
		h.respondWithJSON(w, http.StatusUnprocessableEntity, Response{
			Success: false,
			Data:    body,
			Error:   inel.Message,
			Message: message,
		})
	case confirmation && (errors.Is(err, service.ErrUnauthorized) || errors.Is(err, service.ErrInvalidCode)):
		h.respondWithJSON(w, http.StatusForbidden, Response{Success: false, Error: rejectedMessage})
	case errors.Is(err, service.ErrTooManyAttempts):
		h.respondWithJSON(w, http.StatusTooManyRequests, Response{Success: false, Error: "too many attempts, try again later"})
	case errors.Is(err, service.ErrUnauthorized):
		h.respondWithJSON(w, http.StatusForbidden, Response{Success: false, Error: "forbidden"})
	case errors.Is(err, service.ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, err, message)
	case errors.Is(err, service.ErrInvalidInput):
		h.respondWithError(w, http.StatusBadRequest, err, message)
	case errors.Is(err, service.ErrInvalidState):
		h.respondWithError(w, http.StatusConflict, err, message)
	default:
		h.logger.Error("Unhandled service error", util.ErrorField(err), util.String("message", message))
		h.respondWithJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "internal error", Message: message})
	}
}
