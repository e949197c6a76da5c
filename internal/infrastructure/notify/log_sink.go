package notify

import (
	"context"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"go.uber.org/zap"
)

// LogSink records deliveries in the structured log. It is the default
// sink; transports live behind the same interface.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a logging sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver implements Sink
func (s *LogSink) Deliver(ctx context.Context, n port.Notification) error {
	s.logger.Info("Notification delivered",
		zap.String("event", n.Event),
		zap.Strings("recipients", n.RecipientIDs),
		zap.Any("payload", n.Payload))
	return nil
}

// Verify interface compliance
var _ Sink = (*LogSink)(nil)
