package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/httputil"
	"ndaflow/pkg/requestcontext"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Middleware limits write requests (every method except GET, HEAD and OPTIONS)
// per acting identity, falling back to the client IP. When the store fails the
// request is served and the failure logged.
func Middleware(store Store, policy Policy, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isRead(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := subject(r)

			result, err := store.Allow(ctx, key, policy.Limit, policy.Window)
			if err != nil {
				logger.WarnContext(ctx, "rate limit store unavailable; request not limited",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HeaderLimit, strconv.Itoa(result.Limit))
			w.Header().Set(HeaderRemaining, strconv.Itoa(result.Remaining))
			w.Header().Set(HeaderReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
			if !result.Allowed {
				retry := result.RetryAfter(time.Now())
				logger.InfoContext(ctx, "write rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"subject", key,
					"retry_after_seconds", int(retry.Seconds()),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many write requests; retry later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func subject(r *http.Request) string {
	ctx := r.Context()
	if actor := requestcontext.Identity(ctx); !actor.IsZero() {
		return "actor:" + actor.ID
	}
	return "ip:" + requestcontext.ClientIP(ctx)
}
