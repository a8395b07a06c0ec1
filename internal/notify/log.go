package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes notifications to the logger. It is used when no bot token is configured.
type Log struct {
	l *zap.Logger
}

// NewLog creates a Log notifier.
func NewLog(l *zap.Logger) *Log {
	return &Log{l: l}
}

// Send logs the message.
func (n *Log) Send(_ context.Context, owner int64, text string, image []byte) error {
	n.l.Info("notification",
		zap.Int64("owner", owner),
		zap.String("text", text),
		zap.Int("image_bytes", len(image)))
	return nil
}
