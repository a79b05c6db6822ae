package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory RedisClient for middleware tests. TTLs are
// accepted and ignored.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	down bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStringResult("", context.DeadlineExceeded)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStatusResult("", context.DeadlineExceeded)
	}
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewBoolResult(false, context.DeadlineExceeded)
	}
	if _, exists := f.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// countingHandler counts how many requests made it past the middleware
type countingHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *countingHandler) handle(c *gin.Context) {
	h.mu.Lock()
	h.calls++
	n := h.calls
	h.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"call": n})
}

func setupIdempotencyRouter(rc RedisClient, require bool) (*gin.Engine, *countingHandler) {
	gin.SetMode(gin.TestMode)
	h := &countingHandler{}
	cfg := DefaultIdempotencyConfig(rc)
	cfg.Require = require

	router := gin.New()
	router.POST("/pay", Idempotency(cfg), h.handle)
	return router, h
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pay", bytes.NewBufferString(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysCachedResponse(t *testing.T) {
	router, handler := setupIdempotencyRouter(newFakeRedis(), false)

	first := post(router, "key-1", `{"item_id":"class-1"}`)
	assert.Equal(t, http.StatusCreated, first.Code)

	second := post(router, "key-1", `{"item_id":"class-1"}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	// The handler only ever ran once.
	assert.Equal(t, 1, handler.calls)
}

func TestIdempotencyKeyReuseWithDifferentBody(t *testing.T) {
	router, _ := setupIdempotencyRouter(newFakeRedis(), false)

	first := post(router, "key-1", `{"item_id":"class-1"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(router, "key-1", `{"item_id":"class-2"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.Contains(t, second.Body.String(), "IDEMPOTENCY_KEY_REUSED")
}

func TestIdempotencyInProgressConflict(t *testing.T) {
	rc := newFakeRedis()
	router, _ := setupIdempotencyRouter(rc, false)

	// Simulate a stuck in-flight record by seeding the processing entry the
	// first request would have written.
	first := post(router, "key-1", `{"a":1}`)
	require.Equal(t, http.StatusCreated, first.Code)

	rc.mu.Lock()
	saved := rc.data[IdempotencyKeyPrefix+"key-1"]
	rc.data[IdempotencyKeyPrefix+"key-1"] = replaceStatus(saved)
	rc.mu.Unlock()

	second := post(router, "key-1", `{"a":1}`)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "REQUEST_IN_PROGRESS")
}

func replaceStatus(record string) string {
	return string(bytes.Replace([]byte(record), []byte(`"status":"completed"`), []byte(`"status":"processing"`), 1))
}

func TestIdempotencyMissingKeyPassesThrough(t *testing.T) {
	router, handler := setupIdempotencyRouter(newFakeRedis(), false)

	first := post(router, "", `{"a":1}`)
	second := post(router, "", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 2, handler.calls)
}

func TestIdempotencyMissingKeyRejectedWhenRequired(t *testing.T) {
	router, handler := setupIdempotencyRouter(newFakeRedis(), true)

	rec := post(router, "", `{"a":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_IDEMPOTENCY_KEY")
	assert.Equal(t, 0, handler.calls)
}

func TestIdempotencyFailsOpenWhenRedisDown(t *testing.T) {
	rc := newFakeRedis()
	rc.down = true
	router, handler := setupIdempotencyRouter(rc, false)

	first := post(router, "key-1", `{"a":1}`)
	second := post(router, "key-1", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)

	// Without Redis there is no dedup, only availability.
	assert.Equal(t, 2, handler.calls)
}
