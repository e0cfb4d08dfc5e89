package service

import (
	"context"
	"fmt"
	"strings"

	"cash-settlement-service/internal/fraud"
	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"
	"cash-settlement-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxReasonLength      = 64
	maxDescriptionLength = 2000
	maxEvidenceItems     = 10
	maxEvidenceLength    = 512
)

type ReportDisputeRequest struct {
	TransactionID string
	UserID        string
	Reason        string
	Description   string
	Evidence      []string
}

type ReportDisputeResult struct {
	DisputeID     string                   `json:"dispute_id"`
	TransactionID string                   `json:"transaction_id"`
	Priority      int                      `json:"priority"`
	Status        models.TransactionStatus `json:"status"`
}

func normalizeReason(reason string) string {
	r := strings.ToLower(strings.TrimSpace(reason))
	r = strings.Join(strings.Fields(r), "_")
	return util.SanitizeLimited(r, maxReasonLength)
}

// ReportDispute moves a non-terminal transaction to DISPUTED. Wallets are not
// touched; the hold stays active until review releases it.
func (s *CashPaymentService) ReportDispute(ctx context.Context, req ReportDisputeRequest) (*ReportDisputeResult, error) {
	reason := normalizeReason(req.Reason)
	if req.TransactionID == "" || req.UserID == "" || reason == "" {
		return nil, fmt.Errorf("%w: transaction, user and reason are required", ErrInvalidInput)
	}
	if len(req.Evidence) > maxEvidenceItems {
		return nil, fmt.Errorf("%w: at most %d evidence items", ErrInvalidInput, maxEvidenceItems)
	}

	if util.ContainsSuspicious(req.Description) || util.ContainsSuspicious(req.Reason) {
		s.recorder.Record(ctx, req.UserID, req.TransactionID, models.ActionReportDispute, models.SuspicionScriptPayload, nil)
	}

	evidence := make([]string, 0, len(req.Evidence))
	for _, e := range req.Evidence {
		if e = util.SanitizeLimited(e, maxEvidenceLength); e != "" {
			evidence = append(evidence, e)
		}
	}

	now := s.now()
	var (
		tx         *models.CashTransaction
		dispute    *models.CashDispute
		from       models.TransactionStatus
		wrongParty bool
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		tx, err = repos.Transactions.GetForUpdate(ctx, req.TransactionID)
		if err != nil {
			return classify(err, "cash transaction")
		}

		role := tx.RoleOf(req.UserID)
		if role == models.RoleNone {
			wrongParty = true
			return fmt.Errorf("%w: not a party to this transaction", ErrUnauthorized)
		}
		if tx.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot dispute a transaction in status %s", ErrInvalidState, tx.Status)
		}

		dispute = &models.CashDispute{
			ID:            uuid.NewString(),
			TransactionID: tx.ID,
			ReporterID:    req.UserID,
			ReporterRole:  role,
			Reason:        reason,
			Description:   util.SanitizeLimited(req.Description, maxDescriptionLength),
			Evidence:      evidence,
			Priority:      fraud.DisputePriority(reason, tx.Amount),
			Status:        models.DisputeStatusOpen,
			CreatedAt:     now,
		}
		if err := repos.Disputes.Create(ctx, dispute); err != nil {
			return classify(err, "dispute")
		}

		from = tx.Status
		if err := tx.Advance(models.StatusDisputed, now); err != nil {
			return classify(err, "cash transaction")
		}
		tx.DisputeReason = reason
		return classify(repos.Transactions.Update(ctx, tx), "cash transaction")
	})

	if wrongParty {
		s.recorder.Record(ctx, req.UserID, req.TransactionID, models.ActionReportDispute, models.SuspicionWrongParty, nil)
	}
	if err != nil {
		return nil, s.fail("report dispute", err, zap.String("transaction_id", req.TransactionID))
	}

	s.logger.Info("Cash payment disputed",
		zap.String("transaction_id", tx.ID),
		zap.String("dispute_id", dispute.ID),
		zap.String("reason", reason),
		zap.Int("priority", dispute.Priority),
	)

	s.recordEvents(ctx, []models.TransactionEvent{
		newEvent(tx.ID, from, models.StatusDisputed, req.UserID, reason, now),
	})
	if s.disputeIndex != nil {
		if err := s.disputeIndex.IndexDispute(context.WithoutCancel(ctx), dispute, tx); err != nil {
			s.logger.Warn("Failed to index dispute",
				zap.String("dispute_id", dispute.ID),
				zap.Error(err),
			)
		}
	}
	s.notifyDisputed(tx, dispute.ReporterRole)

	return &ReportDisputeResult{
		DisputeID:     dispute.ID,
		TransactionID: tx.ID,
		Priority:      dispute.Priority,
		Status:        tx.Status,
	}, nil
}
