package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/service"
)

// NotificationWorker owns the lifetime of assignment notifications.
type NotificationWorker struct {
	notifications *service.NotificationService
	logger        *zap.Logger
}

// StartNotificationWorker registers notification handlers and returns a
// worker whose Stop drains deliveries still in flight.
func StartNotificationWorker(notifications *service.NotificationService, logger *zap.Logger) *NotificationWorker {
	if notifications == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	notifications.RegisterHandlers()
	return &NotificationWorker{notifications: notifications, logger: logger}
}

// Stop waits for queued notifications until ctx is done.
func (w *NotificationWorker) Stop(ctx context.Context) {
	if w == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		w.notifications.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.logger.Info("notification worker drained")
	case <-ctx.Done():
		w.logger.Warn("notification worker stopped with deliveries pending", zap.Error(ctx.Err()))
	}
}
