package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

type fakeRedis struct {
	data    map[string]string
	gets    int
	dels    int
	failGet bool
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.gets++
	if f.failGet {
		return redis.NewStringResult("", errors.New("i/o timeout"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetEx(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.dels++
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

type countingBackend struct {
	*MemoryStore
	reads int

	// afterRead runs once, between a backend load and its return.
	afterRead func()
}

func (c *countingBackend) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	c.reads++
	lead, err := c.MemoryStore.GetLead(ctx, id)
	if hook := c.afterRead; hook != nil {
		c.afterRead = nil
		hook()
	}
	return lead, err
}

func setupCachedStore(t *testing.T) (*CachedStore, *countingBackend, *fakeRedis) {
	t.Helper()
	backend := &countingBackend{MemoryStore: NewMemoryStore()}
	rdb := newFakeRedis()
	require.NoError(t, backend.PutLead(context.Background(), &model.Lead{ID: "lead-1", Name: "Iyer Sangeet"}))
	return NewCachedStore(backend, rdb, time.Minute), backend, rdb
}

func TestCachedStore_ReadThrough(t *testing.T) {
	s, backend, rdb := setupCachedStore(t)
	ctx := context.Background()

	lead, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Iyer Sangeet", lead.Name)
	assert.Equal(t, 1, backend.reads)
	assert.Contains(t, rdb.data, "lead:lead-1")

	lead, err = s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Iyer Sangeet", lead.Name)
	assert.Equal(t, 1, backend.reads, "second read should be served from cache")
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	s, backend, rdb := setupCachedStore(t)
	ctx := context.Background()

	_, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)

	require.NoError(t, s.SetEncryptedFinancials(ctx, "lead-1", sampleRecord()))
	assert.NotContains(t, rdb.data, "lead:lead-1")

	lead, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	require.NotNil(t, lead.Financials)
	assert.False(t, lead.Financials.Verified)
	assert.Equal(t, 2, backend.reads)

	require.NoError(t, s.MarkFinancialsVerified(ctx, "lead-1", "pq-token"))
	lead, err = s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.True(t, lead.Financials.Verified)
}

func TestCachedStore_ReadRacingWriteDoesNotServeStaleRow(t *testing.T) {
	s, backend, _ := setupCachedStore(t)
	ctx := context.Background()
	require.NoError(t, backend.SetEncryptedFinancials(ctx, "lead-1", sampleRecord()))
	require.NoError(t, backend.MarkFinancialsVerified(ctx, "lead-1", "pq-token"))

	later := sampleRecord()
	later.PriceQuoteEncrypted = "pq-later"
	// The whole write commits after the reader has loaded the old row but
	// before it populates the cache.
	backend.afterRead = func() {
		require.NoError(t, s.SetEncryptedFinancials(ctx, "lead-1", later))
	}

	lead, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "pq-token", lead.Financials.PriceQuoteEncrypted)

	lead, err = s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "pq-later", lead.Financials.PriceQuoteEncrypted)
	assert.False(t, lead.Financials.Verified)
	assert.Equal(t, 2, backend.reads)

	// Once re-cached at the current generation, reads hit again.
	_, err = s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.reads)
}

func TestCachedStore_ReadRacingVerifyDoesNotServeStaleFlag(t *testing.T) {
	s, backend, _ := setupCachedStore(t)
	ctx := context.Background()
	require.NoError(t, backend.SetEncryptedFinancials(ctx, "lead-1", sampleRecord()))

	backend.afterRead = func() {
		require.NoError(t, s.MarkFinancialsVerified(ctx, "lead-1", "pq-token"))
	}
	lead, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.False(t, lead.Financials.Verified)

	lead, err = s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.True(t, lead.Financials.Verified)
}

func TestCachedStore_CachesCiphertextOnly(t *testing.T) {
	s, _, rdb := setupCachedStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetEncryptedFinancials(ctx, "lead-1", sampleRecord()))
	_, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)

	cached := rdb.data["lead:lead-1"]
	assert.True(t, strings.Contains(cached, "pq-token"))
	assert.NotContains(t, cached, "price_quote\"")
}

func TestCachedStore_RedisFailureFallsBack(t *testing.T) {
	s, backend, rdb := setupCachedStore(t)
	rdb.failGet = true

	lead, err := s.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Iyer Sangeet", lead.Name)
	assert.Equal(t, 1, backend.reads)
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	s, _, rdb := setupCachedStore(t)

	_, err := s.GetLead(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrLeadNotFound)
	assert.NotContains(t, rdb.data, "lead:ghost")
}

func TestCachedStore_Close(t *testing.T) {
	s, _, rdb := setupCachedStore(t)
	require.NoError(t, s.Close())
	assert.True(t, rdb.closed)
}
