package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTempCode indicates a temporary verification code SMS.
	KindTempCode = "temp_code_sms"
)

// Message describes an out-of-band notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications through an external channel (SMS gateway in
// production). Delivery failures are the caller's to tolerate.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the
// logger. It stands in for the SMS gateway in development.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger. The body is elided so
// plaintext codes never reach log storage.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification dispatched", "kind", message.Kind, "destination", message.Destination)
	return nil
}
