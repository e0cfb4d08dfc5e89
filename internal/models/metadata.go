package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MetadataVersion is bumped whenever an entry payload changes shape.
const MetadataVersion = 1

type MetadataKind string

const (
	KindSettlement   MetadataKind = "settlement"
	KindConfirmation MetadataKind = "confirmation"
	KindExpiry       MetadataKind = "expiry"
	KindOpaque       MetadataKind = "opaque"
)

type SettlementEntry struct {
	PaymentMethod string          `json:"payment_method"`
	Currency      string          `json:"currency"`
	FeeRate       decimal.Decimal `json:"fee_rate"`
	FeeCap        decimal.Decimal `json:"fee_cap"`
	RiderTrust    float64         `json:"rider_trust"`
	RequiredTrust float64         `json:"required_trust"`
}

type ConfirmationEntry struct {
	Role        PartyRole        `json:"role"`
	ActorID     string           `json:"actor_id"`
	At          time.Time        `json:"at"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Discrepancy *decimal.Decimal `json:"discrepancy,omitempty"`
	RiskDelta   int              `json:"risk_delta,omitempty"`
}

type ExpiryEntry struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// MetadataEntry is a tagged union. Exactly one payload is set, selected by Kind.
// Entries with a kind this build does not know are kept verbatim as opaque.
type MetadataEntry struct {
	Kind         MetadataKind
	Settlement   *SettlementEntry
	Confirmation *ConfirmationEntry
	Expiry       *ExpiryEntry
	Opaque       json.RawMessage
	rawKind      string
}

type Metadata struct {
	Version int             `json:"version"`
	Entries []MetadataEntry `json:"entries"`
}

func NewMetadata() Metadata {
	return Metadata{Version: MetadataVersion}
}

func (m *Metadata) Append(entry MetadataEntry) {
	if m.Version == 0 {
		m.Version = MetadataVersion
	}
	m.Entries = append(m.Entries, entry)
}

// Confirmations returns the confirmation entries in insertion order.
func (m Metadata) Confirmations() []ConfirmationEntry {
	var out []ConfirmationEntry
	for _, e := range m.Entries {
		if e.Kind == KindConfirmation && e.Confirmation != nil {
			out = append(out, *e.Confirmation)
		}
	}
	return out
}

type wireEntry struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (e MetadataEntry) MarshalJSON() ([]byte, error) {
	var (
		payload interface{}
		kind    = string(e.Kind)
	)
	switch e.Kind {
	case KindSettlement:
		payload = e.Settlement
	case KindConfirmation:
		payload = e.Confirmation
	case KindExpiry:
		payload = e.Expiry
	case KindOpaque:
		if e.rawKind != "" {
			kind = e.rawKind
		}
		data := e.Opaque
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return json.Marshal(wireEntry{Kind: kind, Data: data})
	default:
		return nil, fmt.Errorf("unknown metadata kind %q", e.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEntry{Kind: kind, Data: data})
}

func (e *MetadataEntry) UnmarshalJSON(b []byte) error {
	var w wireEntry
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*e = MetadataEntry{Kind: MetadataKind(w.Kind)}
	switch e.Kind {
	case KindSettlement:
		e.Settlement = &SettlementEntry{}
		return json.Unmarshal(w.Data, e.Settlement)
	case KindConfirmation:
		e.Confirmation = &ConfirmationEntry{}
		return json.Unmarshal(w.Data, e.Confirmation)
	case KindExpiry:
		e.Expiry = &ExpiryEntry{}
		return json.Unmarshal(w.Data, e.Expiry)
	default:
		e.Kind = KindOpaque
		e.rawKind = w.Kind
		e.Opaque = append(json.RawMessage(nil), w.Data...)
		return nil
	}
}

// OriginalKind is the kind as read from storage, which differs from Kind for opaque entries.
func (e MetadataEntry) OriginalKind() string {
	if e.rawKind != "" {
		return e.rawKind
	}
	return string(e.Kind)
}
