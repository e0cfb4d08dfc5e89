package notification

import (
	"context"
	"sync"
	"time"

	"cash-settlement-service/internal/models"

	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// Dispatcher sends notifications in the background. Callers never block on
// delivery and failures are only logged.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Dispatch(userID string, n models.Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Notification panicked",
					zap.String("user_id", userID),
					zap.String("type", string(n.Type)),
					zap.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, userID, n); err != nil {
			d.logger.Warn("Failed to send notification",
				zap.String("user_id", userID),
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every dispatched notification has finished. Called on
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
