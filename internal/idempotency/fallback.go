package idempotency

import (
	"context"
	"log/slog"
	"time"

	"ndaflow/pkg/platform/circuit"
)

// Fallback uses the primary store and switches to the fallback store on
// primary errors. The breaker tracks health so the degraded state is reported
// once per transition rather than per request.
type Fallback struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallback(primary, fallback Store, breaker *circuit.Breaker, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

// Degraded reports whether the breaker is open.
func (f *Fallback) Degraded() bool {
	return f.breaker.IsOpen()
}

func (f *Fallback) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (Record, bool, error) {
	rec, reserved, err := f.primary.Reserve(ctx, key, fingerprint, ttl)
	if f.observe(ctx, err) {
		return rec, reserved, nil
	}
	return f.fallback.Reserve(ctx, key, fingerprint, ttl)
}

func (f *Fallback) Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	err := f.primary.Complete(ctx, key, rec, ttl)
	if f.observe(ctx, err) {
		// a reservation taken in the fallback while degraded must not linger there
		_ = f.fallback.Release(ctx, key)
		return nil
	}
	return f.fallback.Complete(ctx, key, rec, ttl)
}

func (f *Fallback) Release(ctx context.Context, key string) error {
	_ = f.fallback.Release(ctx, key)
	err := f.primary.Release(ctx, key)
	f.observe(ctx, err)
	return nil
}

// observe records the primary outcome and reports whether it succeeded.
func (f *Fallback) observe(ctx context.Context, err error) bool {
	if err == nil {
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "idempotency store recovered; circuit closed", "breaker", f.breaker.Name())
		}
		return true
	}
	if _, change := f.breaker.RecordFailure(); change.Opened {
		f.logger.WarnContext(ctx, "idempotency store failing; circuit opened, using in-memory fallback",
			"breaker", f.breaker.Name(),
			"error", err,
		)
	}
	return false
}
