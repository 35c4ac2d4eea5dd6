package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeIdempotencyStore struct {
	mu        sync.Mutex
	responses map[string]repository.CachedResponse
	locks     map[string]bool
	err       error
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{
		responses: make(map[string]repository.CachedResponse),
		locks:     make(map[string]bool),
	}
}

func (s *fakeIdempotencyStore) Reserve(_ context.Context, key string) (*repository.CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if resp, ok := s.responses[key]; ok {
		return &resp, nil
	}
	if s.locks[key] {
		return nil, repository.ErrIdempotencyInFlight
	}
	s.locks[key] = true
	return nil, nil
}

func (s *fakeIdempotencyStore) Save(_ context.Context, key string, resp repository.CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key] = resp
	return nil
}

func (s *fakeIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

func idempotentRequest(owner uuid.UUID, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req.WithContext(WithPrincipal(req.Context(), owner))
}

func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestIdempotencyReplaysSuccessfulResponse(t *testing.T) {
	store := newFakeIdempotencyStore()
	owner := uuid.New()
	calls := 0
	h := Idempotency(store, zap.NewNop())(countingHandler(&calls, http.StatusOK, `{"success":true}`))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentRequest(owner, "abc"))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, idempotentRequest(owner, "abc"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, `{"success":true}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get(IdempotencyHitHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Empty(t, first.Header().Get(IdempotencyHitHeader))
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	store := newFakeIdempotencyStore()
	calls := 0
	h := Idempotency(store, zap.NewNop())(countingHandler(&calls, http.StatusOK, `{}`))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(uuid.New(), "same"))
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(uuid.New(), "same"))

	assert.Equal(t, 2, calls)
}

func TestIdempotencyReleasesFailedResponse(t *testing.T) {
	store := newFakeIdempotencyStore()
	owner := uuid.New()
	calls := 0
	h := Idempotency(store, zap.NewNop())(countingHandler(&calls, http.StatusBadRequest, `{"success":false}`))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(owner, "retry-me"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(owner, "retry-me"))

	assert.Equal(t, 2, calls)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.responses)
	assert.Empty(t, store.locks)
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeIdempotencyStore()
	owner := uuid.New()
	store.locks[owner.String()+":busy"] = true
	calls := 0
	h := Idempotency(store, zap.NewNop())(countingHandler(&calls, http.StatusOK, `{}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(owner, "busy"))

	assert.Equal(t, 0, calls)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"IDEMPOTENCY_CONFLICT"`)
}

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	store := newFakeIdempotencyStore()
	store.err = errors.New("should not be called")
	calls := 0
	h := Idempotency(store, zap.NewNop())(countingHandler(&calls, http.StatusOK, `{}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(uuid.New(), ""))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotencyStoreFailure(t *testing.T) {
	store := newFakeIdempotencyStore()
	store.err = errors.New("connection refused")
	calls := 0
	h := Idempotency(store, zap.NewNop())(countingHandler(&calls, http.StatusOK, `{}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(uuid.New(), "k"))

	assert.Equal(t, 0, calls)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INTERNAL_ERROR"`)
}

func TestIdempotencyRejectsLongKey(t *testing.T) {
	calls := 0
	h := Idempotency(newFakeIdempotencyStore(), zap.NewNop())(countingHandler(&calls, http.StatusOK, `{}`))

	key := make([]byte, maxIdempotencyKeyLen+1)
	for i := range key {
		key[i] = 'k'
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(uuid.New(), string(key)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, calls)
}

func TestIdempotencyCachesRetainedFailure(t *testing.T) {
	store := newFakeIdempotencyStore()
	owner := uuid.New()
	calls := 0
	h := Idempotency(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		RetainIdempotentResponse(r.Context())
		writeError(w, http.StatusInternalServerError, CodeInternal, "deducted")
	}))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(owner, "charged"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(owner, "charged"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(IdempotencyHitHeader))
	assert.Contains(t, rec.Body.String(), "deducted")
}

func TestRetainOutsideIdempotencyIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { RetainIdempotentResponse(context.Background()) })
}
