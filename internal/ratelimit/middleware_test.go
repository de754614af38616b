package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmshield/internal/models"
)

func newTestHandler(limiter *MultiTierRateLimiter, concurrent *ConcurrentLimiter, inner http.Handler) http.Handler {
	identity := ClientIPIdentity(models.TierFree)
	return Middleware(limiter, concurrent, testTable(), identity)(inner)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/scan", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareSetsHeadersOnSuccess(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	h := newTestHandler(l, NewConcurrentLimiter(), okHandler())

	rec := doRequest(t, h, "10.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))

	reset, err := strconv.ParseInt(rec.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reset, now.Unix())
}

func TestMiddlewareDeniesWithRetryAfter(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	h := newTestHandler(l, NewConcurrentLimiter(), okHandler())

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1").Code)
	}

	rec := doRequest(t, h, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.ErrCodeRateLimited, body.Code)
	assert.Greater(t, body.RetryAfter, 0)
}

func TestMiddlewareKeysByClientIP(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	h := newTestHandler(l, NewConcurrentLimiter(), okHandler())

	for i := 0; i < 5; i++ {
		doRequest(t, h, "10.0.0.1")
	}
	require.Equal(t, http.StatusTooManyRequests, doRequest(t, h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.2").Code)
}

func TestMiddlewareForwardedForHeader(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	h := newTestHandler(l, NewConcurrentLimiter(), okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/scan", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i < 5 {
			require.Equal(t, http.StatusOK, rec.Code)
		} else {
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}

	// The proxy itself is a different client.
	assert.Equal(t, http.StatusOK, doRequest(t, h, "127.0.0.1").Code)
}

func TestMiddlewareConcurrencyGate(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	concurrent := NewConcurrentLimiter()

	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	h := newTestHandler(l, concurrent, slow)

	// Occupy both Free tier slots.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := doRequest(t, h, "10.0.0.1")
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
		<-entered
	}

	rec := doRequest(t, h, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.ErrCodeRateLimited, body.Code)

	close(release)
	wg.Wait()

	// Slots are released once the in-flight requests complete.
	assert.Equal(t, 0, concurrent.InFlight("ip:10.0.0.1"))
	assert.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1").Code)
}

func TestMiddlewareDenialKindsIndistinguishable(t *testing.T) {
	now := time.Now()

	// Window denial: drain the minute bucket.
	l := newTestLimiter(&now)
	h := newTestHandler(l, NewConcurrentLimiter(), okHandler())
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1").Code)
	}
	windowRec := doRequest(t, h, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, windowRec.Code)

	// Concurrency denial: occupy both Free tier slots.
	l = newTestLimiter(&now)
	concurrent := NewConcurrentLimiter()
	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	h = newTestHandler(l, concurrent, slow)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doRequest(t, h, "10.0.0.1")
		}()
		<-entered
	}
	concurrencyRec := doRequest(t, h, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, concurrencyRec.Code)
	close(release)
	wg.Wait()

	// Both denials carry the same error body and the same header set, so a
	// caller cannot tell which limit it hit.
	var windowBody, concurrencyBody models.ErrorResponse
	require.NoError(t, json.Unmarshal(windowRec.Body.Bytes(), &windowBody))
	require.NoError(t, json.Unmarshal(concurrencyRec.Body.Bytes(), &concurrencyBody))
	assert.Equal(t, windowBody.Code, concurrencyBody.Code)
	assert.Equal(t, windowBody.Error, concurrencyBody.Error)

	for _, header := range []string{
		"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		"Retry-After", "Content-Type",
	} {
		assert.NotEmpty(t, windowRec.Header().Get(header), header)
		assert.NotEmpty(t, concurrencyRec.Header().Get(header), header)
	}
}

func TestMiddlewareReleasesSlotOnPanic(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)
	concurrent := NewConcurrentLimiter()
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := newTestHandler(l, concurrent, panicky)

	for i := 0; i < 3; i++ {
		func() {
			defer func() { _ = recover() }()
			doRequest(t, h, "10.0.0.1")
		}()
	}

	assert.Equal(t, 0, concurrent.InFlight("ip:10.0.0.1"))
}
