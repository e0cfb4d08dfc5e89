package elasticsearch

import (
	"context"
	"fmt"
	"time"

	"cash-settlement-service/internal/models"
)

const disputeMapping = `{
  "mappings": {
    "properties": {
      "dispute_id":     {"type": "keyword"},
      "transaction_id": {"type": "keyword"},
      "booking_id":     {"type": "keyword"},
      "reporter_id":    {"type": "keyword"},
      "reporter_role":  {"type": "keyword"},
      "reason":         {"type": "keyword"},
      "description":    {"type": "text"},
      "evidence":       {"type": "keyword"},
      "priority":       {"type": "integer"},
      "status":         {"type": "keyword"},
      "amount":         {"type": "scaled_float", "scaling_factor": 100},
      "currency":       {"type": "keyword"},
      "risk_score":     {"type": "integer"},
      "fraud_flags":    {"type": "keyword"},
      "created_at":     {"type": "date"}
    }
  }
}`

// documentIndexer is the part of client.ESClient the index uses.
type documentIndexer interface {
	EnsureIndex(ctx context.Context, index, mapping string) error
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

// DisputeIndex publishes disputes to the review tooling's search index.
type DisputeIndex struct {
	client documentIndexer
	index  string
}

func NewDisputeIndex(client documentIndexer, index string) *DisputeIndex {
	if index == "" {
		index = "cash-disputes"
	}
	return &DisputeIndex{client: client, index: index}
}

func (d *DisputeIndex) EnsureIndex(ctx context.Context) error {
	return d.client.EnsureIndex(ctx, d.index, disputeMapping)
}

type disputeDocument struct {
	DisputeID     string    `json:"dispute_id"`
	TransactionID string    `json:"transaction_id"`
	BookingID     string    `json:"booking_id"`
	ReporterID    string    `json:"reporter_id"`
	ReporterRole  string    `json:"reporter_role"`
	Reason        string    `json:"reason"`
	Description   string    `json:"description"`
	Evidence      []string  `json:"evidence"`
	Priority      int       `json:"priority"`
	Status        string    `json:"status"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	RiskScore     int       `json:"risk_score"`
	FraudFlags    []string  `json:"fraud_flags"`
	CreatedAt     time.Time `json:"created_at"`
}

func (d *DisputeIndex) IndexDispute(ctx context.Context, dispute *models.CashDispute, tx *models.CashTransaction) error {
	doc := disputeDocument{
		DisputeID:     dispute.ID,
		TransactionID: dispute.TransactionID,
		BookingID:     tx.BookingID,
		ReporterID:    dispute.ReporterID,
		ReporterRole:  string(dispute.ReporterRole),
		Reason:        dispute.Reason,
		Description:   dispute.Description,
		Evidence:      dispute.Evidence,
		Priority:      dispute.Priority,
		Status:        string(dispute.Status),
		Amount:        tx.Amount.InexactFloat64(),
		Currency:      tx.Currency,
		RiskScore:     tx.RiskScore,
		CreatedAt:     dispute.CreatedAt,
	}
	for _, f := range tx.FraudFlags {
		doc.FraudFlags = append(doc.FraudFlags, string(f))
	}

	if err := d.client.IndexDocument(ctx, d.index, dispute.ID, doc); err != nil {
		return fmt.Errorf("failed to index dispute %s: %w", dispute.ID, err)
	}
	return nil
}
