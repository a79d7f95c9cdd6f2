package audit

import (
	"context"
)

// Logger is the interface for audit logging. Implementations must be
// safe for concurrent use; a Log failure never blocks the operation
// that produced the event.
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// NopLogger is a logger that discards every event. Used when audit
// logging is disabled.
type NopLogger struct{}

// NewNopLogger creates a no-op audit logger
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (l *NopLogger) Log(ctx context.Context, event *Event) error {
	return nil
}

func (l *NopLogger) Close() error {
	return nil
}
