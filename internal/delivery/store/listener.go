package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Listener turns NOTIFY delivery_jobs into wake-ups for workers in this process.
type Listener struct {
	listener *pq.Listener
	wake     chan struct{}
	logger   *slog.Logger
}

// NewListener connects a dedicated LISTEN session; dsn is a lib/pq connection string.
func NewListener(dsn string, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{wake: make(chan struct{}, 1), logger: logger}
	l.listener = pq.NewListener(dsn, time.Second, time.Minute, l.onEvent)
	if err := l.listener.Listen(NotifyChannel); err != nil {
		_ = l.listener.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	return l, nil
}

func (l *Listener) Wake() <-chan struct{} {
	return l.wake
}

// Run forwards notifications until ctx is cancelled. A reconnect also wakes
// workers, since notifications sent while disconnected are lost.
func (l *Listener) Run(ctx context.Context) error {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-l.listener.Notify:
			l.signal()
		case <-ping.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.logger.WarnContext(ctx, "delivery listener ping failed", "error", err)
				}
			}()
		case <-ctx.Done():
			if err := l.listener.Close(); err != nil {
				l.logger.WarnContext(ctx, "close delivery listener", "error", err)
			}
			return nil
		}
	}
}

func (l *Listener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Listener) onEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		l.logger.Warn("delivery listener connection problem", "error", err)
	case pq.ListenerEventReconnected:
		l.logger.Info("delivery listener reconnected")
		l.signal()
	}
}
