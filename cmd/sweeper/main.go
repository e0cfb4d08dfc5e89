package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cash-settlement-service/internal/factory"
	"cash-settlement-service/internal/service"
	"cash-settlement-service/internal/util"
)

// The sweeper expires settlements whose confirmation window has passed and
// releases their holds. By default it runs a single pass for an external
// scheduler; a positive SWEEP_INTERVAL keeps it running.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := factory.NewFactory(ctx)
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	settlement := f.Config().Settlement
	payments := f.ServiceFactory().CashPaymentService()

	if settlement.SweepInterval <= 0 {
		if !sweep(ctx, payments, settlement.SweepBatchSize) {
			f.Close()
			os.Exit(1)
		}
		return
	}

	util.Info("Sweeper started",
		util.Duration("interval", settlement.SweepInterval),
		util.Int("batch_size", settlement.SweepBatchSize),
	)

	ticker := time.NewTicker(settlement.SweepInterval)
	defer ticker.Stop()

	for {
		sweep(ctx, payments, settlement.SweepBatchSize)
		select {
		case <-ctx.Done():
			util.Info("Sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}

// sweep drains every due settlement in batches and reports whether the pass
// finished without errors.
func sweep(ctx context.Context, payments *service.CashPaymentService, batch int) bool {
	start := time.Now()
	total, failed := 0, 0

	for ctx.Err() == nil {
		result, err := payments.ExpireDueTransactions(ctx, time.Now(), batch)
		if err != nil {
			util.Error("Sweep failed", util.ErrorField(err))
			return false
		}

		total += len(result.Expired)
		failed += len(result.Failed)
		for id, reason := range result.Failed {
			util.Warn("Failed to expire cash payment",
				util.String("transaction_id", id),
				util.String("reason", reason),
			)
		}

		// only a full batch of expirations can leave more due rows behind
		if len(result.Expired) == 0 || len(result.Expired) < batch {
			break
		}
	}

	util.Info("Sweep completed",
		util.Int("expired", total),
		util.Int("failed", failed),
		util.Duration("duration", time.Since(start)),
	)
	return failed == 0
}
