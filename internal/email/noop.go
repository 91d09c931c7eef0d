package email

import (
	"context"

	"go.uber.org/zap"
)

// NoopSender logs notifications to zap instead of delivering them. Used in
// development and when SMTP is not configured; the integrity incident still
// lands in the structured logs.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a NoopSender backed by the given logger.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs the notification and returns nil.
func (n *NoopSender) Send(_ context.Context, to, subject, body string) error {
	n.logger.Info("incident email (noop, not sent)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
