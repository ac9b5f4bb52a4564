// Package email abstracts outbound mail behind a small Sender interface so
// the reminder worker does not care which backend is configured.
package email

import (
	"fmt"
	"log/slog"
)

// Sender delivers a message to one or many recipients. SendBulk returns the
// number of successful deliveries.
type Sender interface {
	Send(to, subject, body string) error
	SendBulk(to []string, subject, body string) int
}

// New selects a Sender by backend name. Only the log backend ships; an
// unknown name is a startup error rather than a silent fallback.
func New(backend string, logger *slog.Logger) (Sender, error) {
	switch backend {
	case "log":
		if logger == nil {
			logger = slog.Default()
		}
		return &LogSender{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported email backend: %q", backend)
	}
}

// LogSender writes every message to the log instead of delivering it.
type LogSender struct {
	logger *slog.Logger
}

// Send logs the message.
func (l *LogSender) Send(to, subject, body string) error {
	l.logger.Info("email sent",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("body_bytes", len(body)))
	return nil
}

// SendBulk logs each message and reports how many were delivered.
func (l *LogSender) SendBulk(to []string, subject, body string) int {
	sent := 0
	for _, addr := range to {
		if err := l.Send(addr, subject, body); err == nil {
			sent++
		}
	}
	return sent
}
