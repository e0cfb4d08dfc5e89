package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TransactionStatus
		ok       bool
	}{
		{StatusPendingVerification, StatusDriverConfirmed, true},
		{StatusPendingVerification, StatusRiderConfirmed, true},
		{StatusPendingVerification, StatusBothConfirmed, false},
		{StatusPendingVerification, StatusCompleted, false},
		{StatusDriverConfirmed, StatusBothConfirmed, true},
		{StatusDriverConfirmed, StatusRiderConfirmed, false},
		{StatusRiderConfirmed, StatusBothConfirmed, true},
		{StatusBothConfirmed, StatusCompleted, true},
		{StatusBothConfirmed, StatusExpired, false},
		{StatusRiderConfirmed, StatusExpired, true},
		{StatusCompleted, StatusDisputed, false},
		{StatusDisputed, StatusPendingVerification, false},
		{StatusExpired, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusDisputed.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, StatusPendingVerification.IsTerminal())
	assert.False(t, StatusBothConfirmed.IsTerminal())
	assert.False(t, TransactionStatus("bogus").IsTerminal())
}

func TestAdvanceRejectsBackwardMove(t *testing.T) {
	now := time.Now()
	tx := &CashTransaction{Status: StatusCompleted}

	err := tx.Advance(StatusPendingVerification, now)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCompleted, tx.Status)

	tx.Status = StatusRiderConfirmed
	require.NoError(t, tx.Advance(StatusBothConfirmed, now))
	assert.Equal(t, StatusBothConfirmed, tx.Status)
	assert.Equal(t, now, tx.UpdatedAt)
}

func TestFraudFlagsAndRisk(t *testing.T) {
	tx := &CashTransaction{}
	tx.AddFraudFlag(FlagAmountDiscrepancy)
	tx.AddFraudFlag(FlagAmountDiscrepancy)
	tx.AddFraudFlag(FlagLocationAnomaly)
	assert.Equal(t, []FraudFlag{FlagAmountDiscrepancy, FlagLocationAnomaly}, tx.FraudFlags)

	tx.RaiseRisk(80)
	tx.RaiseRisk(30)
	assert.Equal(t, MaxRiskScore, tx.RiskScore)
}

func TestRoleOf(t *testing.T) {
	tx := &CashTransaction{RiderID: "r1", DriverID: "d1"}
	assert.Equal(t, RoleRider, tx.RoleOf("r1"))
	assert.Equal(t, RoleDriver, tx.RoleOf("d1"))
	assert.Equal(t, RoleNone, tx.RoleOf("x"))
	assert.Equal(t, RoleNone, tx.RoleOf(""))
	assert.Equal(t, "d1", tx.Counterparty(RoleRider))
}

func TestMetadataRoundTripKeepsUnknownKinds(t *testing.T) {
	raw := `{"version":1,"entries":[
		{"kind":"expiry","data":{"at":"2026-01-02T03:04:05Z","reason":"ttl"}},
		{"kind":"promo","data":{"code":"X1"}}
	]}`

	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.Len(t, m.Entries, 2)
	assert.Equal(t, KindExpiry, m.Entries[0].Kind)
	assert.Equal(t, "ttl", m.Entries[0].Expiry.Reason)
	assert.Equal(t, KindOpaque, m.Entries[1].Kind)
	assert.Equal(t, "promo", m.Entries[1].OriginalKind())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"kind":"promo","data":{"code":"X1"}`)
}

func TestMetadataConfirmations(t *testing.T) {
	amount := decimal.RequireFromString("20.00")
	m := NewMetadata()
	m.Append(MetadataEntry{Kind: KindSettlement, Settlement: &SettlementEntry{PaymentMethod: "cash"}})
	m.Append(MetadataEntry{Kind: KindConfirmation, Confirmation: &ConfirmationEntry{Role: RoleDriver, ActorID: "d1", Amount: &amount}})

	confs := m.Confirmations()
	require.Len(t, confs, 1)
	assert.Equal(t, RoleDriver, confs[0].Role)
	assert.True(t, confs[0].Amount.Equal(amount))

	_, err := json.Marshal(MetadataEntry{Kind: "nope"})
	assert.Error(t, err)
}
