package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/httputil"
	"ndaflow/pkg/requestcontext"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
	HeaderStatus   = "Idempotency-Status"

	maxKeyLength = 255
	maxBodyBytes = 1 << 20
	DefaultTTL   = 24 * time.Hour
)

type degradable interface {
	Degraded() bool
}

// Middleware makes POST handlers safe to retry. A request carrying an
// Idempotency-Key runs at most once per actor, path and key; repeats get the
// stored response. Server errors and panics release the key so the client can retry.
func Middleware(store Store, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderKey)
			if r.Method != http.MethodPost || raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(raw) > maxKeyLength {
				httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			if err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
				return
			}
			if len(body) > maxBodyBytes {
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooLarge, "request body exceeds 1 MiB"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := scopedKey(requestcontext.Identity(ctx).ID, r.URL.Path, raw)
			fingerprint := digest(body)
			if d, ok := store.(degradable); ok && d.Degraded() {
				w.Header().Set(HeaderStatus, "degraded")
			}

			existing, reserved, err := store.Reserve(ctx, key, fingerprint, ttl)
			if err != nil {
				logger.WarnContext(ctx, "idempotency store unavailable; serving without replay protection",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				replay(w, existing, fingerprint)
				return
			}

			release := func() {
				if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
					logger.WarnContext(ctx, "failed to release idempotency key",
						"request_id", requestcontext.RequestID(ctx),
						"error", err,
					)
				}
			}
			// a panicking handler must not leave the key pending until the TTL
			completed := false
			defer func() {
				if !completed {
					release()
				}
			}()

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			completed = true

			if rec.status >= http.StatusInternalServerError {
				release()
				return
			}
			err = store.Complete(ctx, key, Record{
				State:       StateDone,
				Fingerprint: fingerprint,
				StatusCode:  rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}, ttl)
			if err != nil {
				logger.WarnContext(ctx, "failed to store idempotent response",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
			}
		})
	}
}

func replay(w http.ResponseWriter, rec Record, fingerprint string) {
	switch {
	case rec.Fingerprint != fingerprint:
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "Idempotency-Key was already used with a different request"))
	case rec.State != StateDone:
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "a request with this Idempotency-Key is still in progress"))
	default:
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set(HeaderReplayed, "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.Body)
	}
}

func scopedKey(actorID, path, key string) string {
	return digest([]byte(actorID + "\x00" + path + "\x00" + key))
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// recorder tees the response so it can be stored after the handler returns.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
