package fraud

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"cash-settlement-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRangeValidator(t *testing.T) {
	v := RangeValidator{}
	assert.True(t, v.IsPlausible(0, 0))
	assert.True(t, v.IsPlausible(-90, 180))
	assert.True(t, v.IsPlausible(6.5244, 3.3792))
	assert.False(t, v.IsPlausible(90.01, 0))
	assert.False(t, v.IsPlausible(0, -180.5))
	assert.False(t, v.IsPlausible(math.NaN(), 0))
	assert.False(t, v.IsPlausible(0, math.Inf(1)))
}

func TestAssessDriverConfirmation(t *testing.T) {
	a := NewAssessor(DefaultAmountTolerance, nil)

	t.Run("reported amount far from expected", func(t *testing.T) {
		got := a.AssessDriverConfirmation(dec("20.00"), dec("25.50"), nil)
		assert.Equal(t, []models.FraudFlag{models.FlagAmountDiscrepancy}, got.Flags)
		assert.Equal(t, 30, got.RiskDelta)
		assert.True(t, got.Discrepancy.Equal(dec("5.50")))
	})

	t.Run("within tolerance", func(t *testing.T) {
		got := a.AssessDriverConfirmation(dec("20.00"), dec("19.50"), nil)
		assert.Empty(t, got.Flags)
		assert.Zero(t, got.RiskDelta)
	})

	t.Run("impossible location", func(t *testing.T) {
		loc := &models.TransactionLocation{Latitude: 123, Longitude: 10}
		got := a.AssessDriverConfirmation(dec("20.00"), dec("20.00"), loc)
		assert.Equal(t, []models.FraudFlag{models.FlagLocationAnomaly}, got.Flags)
		assert.Equal(t, 20, got.RiskDelta)
	})

	t.Run("both", func(t *testing.T) {
		loc := &models.TransactionLocation{Latitude: 0, Longitude: 200}
		got := a.AssessDriverConfirmation(dec("20.00"), dec("10.00"), loc)
		assert.Len(t, got.Flags, 2)
		assert.Equal(t, 50, got.RiskDelta)
	})
}

func TestAssessmentApplyCapsRisk(t *testing.T) {
	tx := &models.CashTransaction{RiskScore: 90}
	Assessment{Flags: []models.FraudFlag{models.FlagAmountDiscrepancy}, RiskDelta: 30}.Apply(tx)
	assert.Equal(t, 100, tx.RiskScore)
	assert.True(t, tx.HasFraudFlag(models.FlagAmountDiscrepancy))
}

func TestDisputePriority(t *testing.T) {
	tests := []struct {
		reason string
		amount string
		want   int
	}{
		{"other", "20", 50},
		{"suspected_fraud", "20", 90},
		{"THEFT", "20", 90},
		{"wrong_amount", "20", 80},
		{"no_payment", "150", 90},
		{"driver_issue", "20", 70},
		{"rider_issue", "600", 90},
		{"other", "100", 50},
		{"other", "100.01", 60},
		{"other", "500.01", 70},
		{"fraud", "1000", 100},
	}

	for _, tt := range tests {
		t.Run(tt.reason+"/"+tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, DisputePriority(tt.reason, dec(tt.amount)))
		})
	}
}

func TestDisputePriorityMonotonicInAmount(t *testing.T) {
	for _, reason := range []string{"other", "driver_issue", "wrong_amount", "fraud"} {
		prev := -1
		for _, amount := range []string{"1", "100", "101", "500", "501", "5000"} {
			p := DisputePriority(reason, dec(amount))
			assert.GreaterOrEqual(t, p, prev)
			assert.LessOrEqual(t, p, 100)
			prev = p
		}
	}
}

type stubSink struct {
	events []*models.SuspiciousActivity
	err    error
}

func (s *stubSink) RecordSuspiciousActivity(_ context.Context, e *models.SuspiciousActivity) error {
	s.events = append(s.events, e)
	return s.err
}

func TestRecorderLogsAndForwards(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &stubSink{err: errors.New("clickhouse down")}
	r := NewRecorder(sink, zap.New(core))

	r.Record(context.Background(), "u1", "tx1", models.ActionConfirmPaid, models.SuspicionCodeMismatch, map[string]string{"attempt": "2"})

	require.Len(t, sink.events, 1)
	assert.Equal(t, "u1", sink.events[0].UserID)
	assert.Equal(t, models.ActionConfirmPaid, sink.events[0].Action)
	assert.NotEmpty(t, sink.events[0].EventID)

	warn := logs.FilterMessage("Suspicious activity").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "tx1", warn[0].ContextMap()["transaction_id"])
	assert.Len(t, logs.FilterMessage("Failed to store suspicious activity").All(), 1)
}

type slowSink struct {
	deadline bool
}

func (s *slowSink) RecordSuspiciousActivity(ctx context.Context, _ *models.SuspiciousActivity) error {
	_, s.deadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestRecorderBoundsSlowSink(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &slowSink{}
	r := NewRecorder(sink, zap.New(core))
	r.timeout = 20 * time.Millisecond

	start := time.Now()
	r.Record(context.Background(), "u1", "tx1", models.ActionConfirmReceived, models.SuspicionWrongParty, nil)

	assert.True(t, sink.deadline)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, logs.FilterMessage("Failed to store suspicious activity").All(), 1)
}
