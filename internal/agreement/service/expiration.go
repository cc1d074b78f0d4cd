package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ndaflow/internal/agreement/models"
	"ndaflow/pkg/requestcontext"
)

const expirationBatchSize = 100

// ExpireDue fires expiration_reached on every active agreement whose expiry is
// at or before now. It returns how many agreements moved to EXPIRED. Failures on
// one agreement are logged and do not stop the sweep.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListExpiring(ctx, now, expirationBatchSize)
	if err != nil {
		return 0, translateStoreErr(err)
	}
	actor := requestcontext.System("expiration")
	ctx = requestcontext.WithTime(ctx, now)

	expired := 0
	for _, agreementID := range due {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		_, applied, err := s.AttemptAutoTransition(ctx, agreementID, models.TriggerExpirationReached, actor)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to expire agreement",
				"agreement_id", agreementID.String(),
				"error", err,
			)
			continue
		}
		if applied {
			expired++
		}
	}
	if s.metrics != nil && expired > 0 {
		s.metrics.AddExpired(expired)
	}
	return expired, nil
}

// ExpirationSweeper calls ExpireDue on a fixed interval.
type ExpirationSweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewExpirationSweeper(service *Service, interval time.Duration, logger *slog.Logger) *ExpirationSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirationSweeper{service: service, interval: interval, logger: logger, now: time.Now}
}

// Run blocks until ctx is cancelled, then returns nil.
func (e *ExpirationSweeper) Run(ctx context.Context) error {
	if e.interval <= 0 {
		return fmt.Errorf("expiration sweeper: interval must be positive, got %s", e.interval)
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := e.service.ExpireDue(ctx, e.now())
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				e.logger.ErrorContext(ctx, "expiration sweep failed", "error", err)
				continue
			}
			if n > 0 {
				e.logger.InfoContext(ctx, "expired agreements", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
