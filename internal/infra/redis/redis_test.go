//go:build !integration

package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memClient is an in-process RedisClient; expirations are recorded, not enforced.
type memClient struct {
	mu   sync.Mutex
	vals map[string]string
	ttl  map[string]time.Duration
}

func newMemClient() *memClient {
	return &memClient{vals: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memClient) Ping(ctx context.Context) error { return nil }

func (m *memClient) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = toString(value)
	m.ttl[key] = exp
	return nil
}

func (m *memClient) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; ok {
		return false, nil
	}
	m.vals[key] = toString(value)
	m.ttl[key] = exp
	return true, nil
}

func (m *memClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *memClient) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.ParseInt(m.vals[key], 10, 64)
	n++
	m.vals[key] = toString(n)
	return n, nil
}

func (m *memClient) Expire(ctx context.Context, key string, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = exp
	return nil
}

func (m *memClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.vals, k)
	}
	return nil
}

func (m *memClient) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals[key] != value {
		return false, nil
	}
	delete(m.vals, key)
	return true, nil
}

func (m *memClient) Close() error { return nil }

func toString(v interface{}) string { return fmt.Sprint(v) }

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	cli := newMemClient()
	l := NewLocker(cli)

	token, err := l.TryLock(ctx, "sweep:expiry", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cli.ttl["lock:sweep:expiry"])

	_, err = l.TryLock(ctx, "sweep:expiry", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// a stale token must not release someone else's lock
	require.NoError(t, l.Unlock(ctx, "sweep:expiry", "not-mine"))
	_, err = l.TryLock(ctx, "sweep:expiry", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, l.Unlock(ctx, "sweep:expiry", token))
	_, err = l.TryLock(ctx, "sweep:expiry", time.Minute)
	assert.NoError(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	cli := newMemClient()
	rl := NewRateLimiter(cli)
	key := VendorActionKey("vendor-1", "subscribe")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d should pass", i+1)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "rate_limit:vendor-1:subscribe", key)
	assert.Equal(t, time.Minute, cli.ttl[key])
}
