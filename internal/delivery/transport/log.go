package transport

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"ndaflow/internal/delivery/message"
)

// logRetention bounds how many sent messages Log keeps for inspection.
const logRetention = 500

// Log records messages instead of sending them. It is the development transport.
type Log struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Record
}

// Record is one message accepted by the Log transport.
type Record struct {
	Envelope message.Envelope
	Raw      []byte
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, env message.Envelope, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	l.sent = append(l.sent, Record{Envelope: env, Raw: append([]byte(nil), raw...)})
	if len(l.sent) > logRetention {
		l.sent = slices.Delete(l.sent, 0, len(l.sent)-logRetention)
	}
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "mail accepted by log transport",
		"message_id", env.MessageID,
		"from", env.From,
		"recipients", len(env.Recipients),
		"bytes", len(raw),
	)
	return env.MessageID, nil
}

// Sent returns a copy of the most recently sent messages, oldest first.
func (l *Log) Sent() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.sent...)
}
