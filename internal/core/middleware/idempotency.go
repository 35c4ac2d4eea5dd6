package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/repository"
)

const (
	IdempotencyHeader    = "Idempotency-Key"
	IdempotencyHitHeader = "X-Idempotency-Hit"

	maxIdempotencyKeyLen = 255
)

type retainKey struct{}

// RetainIdempotentResponse caches the response even when it is not 2xx.
// Handlers call it when the request may already have moved money, so a retry
// replays the outcome instead of running again. It is a no-op outside
// Idempotency.
func RetainIdempotentResponse(ctx context.Context) {
	if retain, ok := ctx.Value(retainKey{}).(*bool); ok {
		*retain = true
	}
}

// capturingWriter copies the response so it can be replayed later.
type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *capturingWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *capturingWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Idempotency replays the stored 2xx response for a repeated
// Idempotency-Key, and any response a handler retained. Keys are scoped to the authenticated user, so it must run
// after Authenticate. Requests without the header pass through.
func Idempotency(store repository.IdempotencyStore, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				writeError(w, http.StatusBadRequest, CodeValidation, "Idempotency-Key is too long")
				return
			}

			owner, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
				return
			}
			scoped := owner.String() + ":" + key

			cached, err := store.Reserve(r.Context(), scoped)
			switch {
			case errors.Is(err, repository.ErrIdempotencyInFlight):
				log.Warn("Concurrent request with the same idempotency key",
					logger.UserField(owner),
					logger.StringField("key", key))
				writeError(w, http.StatusConflict, CodeIdempotencyConflict,
					"A request with this idempotency key is currently being processed")
				return
			case err != nil:
				log.Error("Idempotency store unavailable", logger.ErrorField("error", err))
				writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
				return
			case cached != nil:
				log.Info("Replaying idempotent response",
					logger.UserField(owner),
					logger.StringField("key", key))
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set(IdempotencyHitHeader, "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &capturingWriter{ResponseWriter: w}
			retain := new(bool)
			// Release on every path, including a panic further down.
			defer func() {
				ctx := context.WithoutCancel(r.Context())
				succeeded := rec.status >= http.StatusOK && rec.status < http.StatusMultipleChoices
				if succeeded || (*retain && rec.status != 0) {
					resp := repository.CachedResponse{
						Status:      rec.status,
						ContentType: rec.Header().Get("Content-Type"),
						Body:        rec.body.Bytes(),
					}
					if err := store.Save(ctx, scoped, resp); err != nil {
						log.Error("Failed to cache idempotent response",
							logger.StringField("key", key),
							logger.ErrorField("error", err))
					}
					return
				}
				if err := store.Release(ctx, scoped); err != nil {
					log.Error("Failed to release idempotency key",
						logger.StringField("key", key),
						logger.ErrorField("error", err))
				}
			}()

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), retainKey{}, retain)))
		})
	}
}
