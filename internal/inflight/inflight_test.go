package inflight

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancerane/CSVConverter-GCP/internal/config"
)

func TestMemoryRegistry_ClaimAndRelease(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	release, err := r.Claim(ctx, "unprocessed/a.bin")
	require.NoError(t, err)

	_, err = r.Claim(ctx, "unprocessed/a.bin")
	assert.ErrorIs(t, err, ErrClaimed)

	other, err := r.Claim(ctx, "unprocessed/b.bin")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	release()
	release()
	other()
	assert.Equal(t, 0, r.Len())

	again, err := r.Claim(ctx, "unprocessed/a.bin")
	require.NoError(t, err)
	again()
}

func TestMemoryRegistry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryRegistry().Claim(ctx, "a.bin")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryRegistry_ConcurrentClaims(t *testing.T) {
	r := NewMemoryRegistry()
	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Claim(context.Background(), "same.bin"); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, granted)
}

func TestNoopRegistry(t *testing.T) {
	r := NewNoopRegistry()
	for i := 0; i < 2; i++ {
		release, err := r.Claim(context.Background(), "a.bin")
		require.NoError(t, err)
		release()
	}
}

func TestNew(t *testing.T) {
	r, err := New(config.InFlightConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryRegistry{}, r)

	r, err = New(config.InFlightConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, noopRegistry{}, r)

	_, err = New(config.InFlightConfig{Backend: "etcd"})
	assert.Error(t, err)

	_, err = New(config.InFlightConfig{Backend: "redis", RedisURL: "not a url"})
	assert.Error(t, err)
}

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisRegistry_Claim(t *testing.T) {
	fake := newFakeRedis()
	r := newRedisRegistry(fake, time.Minute)
	ctx := context.Background()

	release, err := r.Claim(ctx, "unprocessed/a.bin")
	require.NoError(t, err)
	assert.Contains(t, fake.values, keyPrefix+"unprocessed/a.bin")
	assert.Equal(t, time.Minute, fake.ttls[keyPrefix+"unprocessed/a.bin"])

	_, err = r.Claim(ctx, "unprocessed/a.bin")
	assert.ErrorIs(t, err, ErrClaimed)

	release()
	assert.NotContains(t, fake.values, keyPrefix+"unprocessed/a.bin")
	release()

	_, err = r.Claim(ctx, "unprocessed/a.bin")
	assert.NoError(t, err)
}

func TestRedisRegistry_ReleaseKeepsForeignClaim(t *testing.T) {
	fake := newFakeRedis()
	r := newRedisRegistry(fake, time.Minute)

	release, err := r.Claim(context.Background(), "a.bin")
	require.NoError(t, err)

	// the claim expired and another instance took it over
	fake.values[keyPrefix+"a.bin"] = "someone-else"
	release()
	assert.Equal(t, "someone-else", fake.values[keyPrefix+"a.bin"])
}

func TestRedisRegistry_SetError(t *testing.T) {
	fake := newFakeRedis()
	fake.setErr = errors.New("connection refused")

	_, err := newRedisRegistry(fake, time.Minute).Claim(context.Background(), "a.bin")
	assert.ErrorContains(t, err, "connection refused")
	assert.NotErrorIs(t, err, ErrClaimed)
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.InFlightConfig{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr)

	opts, err = buildRedisOptions(config.InFlightConfig{RedisURL: "redis://:secret@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
}
