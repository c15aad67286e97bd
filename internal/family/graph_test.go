package family

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

type countingFetcher struct {
	edges map[string]*models.Citations
	fail  map[string]error
	calls int
}

func (f *countingFetcher) Neighbors(ctx context.Context, id string) (*models.Citations, error) {
	f.calls++
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	if c, ok := f.edges[id]; ok {
		return c, nil
	}
	return &models.Citations{}, nil
}

type memCacheStore struct {
	entries map[string]*models.Citations
	gets    int
	puts    int
}

func newMemCacheStore() *memCacheStore {
	return &memCacheStore{entries: make(map[string]*models.Citations)}
}

func (s *memCacheStore) GetCitations(ctx context.Context, id string) (*models.Citations, bool, error) {
	s.gets++
	c, ok := s.entries[id]
	return c, ok, nil
}

func (s *memCacheStore) PutCitations(ctx context.Context, id string, c *models.Citations) error {
	s.puts++
	s.entries[id] = c
	return nil
}

func TestCachedGraph_MemoizesFetches(t *testing.T) {
	fetcher := &countingFetcher{edges: map[string]*models.Citations{
		"US100": {ForwardIDs: []string{"US200"}},
	}}
	g := NewCachedGraph(GraphConfig{Fetcher: fetcher, Logger: slog.New(slog.DiscardHandler)})
	ctx := context.Background()

	for range 3 {
		c, err := g.Neighbors(ctx, "US100")
		require.NoError(t, err)
		assert.Equal(t, []string{"US200"}, c.ForwardIDs)
	}
	assert.Equal(t, 1, fetcher.calls)
}

func TestCachedGraph_WritesThroughToStore(t *testing.T) {
	fetcher := &countingFetcher{edges: map[string]*models.Citations{
		"US100": {BackwardIDs: []string{"US050"}},
	}}
	store := newMemCacheStore()
	g := NewCachedGraph(GraphConfig{Fetcher: fetcher, Store: store, Logger: slog.New(slog.DiscardHandler)})
	ctx := context.Background()

	_, err := g.Neighbors(ctx, "US100")
	require.NoError(t, err)
	assert.Equal(t, 1, store.puts)

	// A fresh in-memory cache is served from the persistent tier, no refetch.
	g2 := NewCachedGraph(GraphConfig{Fetcher: fetcher, Store: store, Logger: slog.New(slog.DiscardHandler)})
	c, err := g2.Neighbors(ctx, "US100")
	require.NoError(t, err)
	assert.Equal(t, []string{"US050"}, c.BackwardIDs)
	assert.Equal(t, 1, fetcher.calls)
}

func TestCachedGraph_FetchErrorIsLookupError(t *testing.T) {
	fetcher := &countingFetcher{fail: map[string]error{
		"US404": errors.New("service unavailable"),
	}}
	g := NewCachedGraph(GraphConfig{Fetcher: fetcher, Logger: slog.New(slog.DiscardHandler)})

	_, err := g.Neighbors(context.Background(), "US404")
	var lerr *models.LookupError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "US404", lerr.PatentID)

	// Failures are not cached; the next call retries the fetch.
	_, err = g.Neighbors(context.Background(), "US404")
	require.Error(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestCachedGraph_TTLExpiry(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &countingFetcher{}
	store := newMemCacheStore()
	g := NewCachedGraph(GraphConfig{
		Fetcher: fetcher,
		Store:   store,
		TTL:     time.Hour,
		Now:     func() time.Time { return clock },
		Logger:  slog.New(slog.DiscardHandler),
	})
	ctx := context.Background()

	_, err := g.Neighbors(ctx, "US100")
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)

	// Within the TTL the memory entry is served directly.
	clock = clock.Add(30 * time.Minute)
	_, err = g.Neighbors(ctx, "US100")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
	storeGets := store.gets

	// After expiry the persistent tier is consulted again, still no refetch.
	clock = clock.Add(2 * time.Hour)
	_, err = g.Neighbors(ctx, "US100")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
	assert.Greater(t, store.gets, storeGets)
}

func TestCachedGraph_Invalidate(t *testing.T) {
	fetcher := &countingFetcher{}
	g := NewCachedGraph(GraphConfig{Fetcher: fetcher, Logger: slog.New(slog.DiscardHandler)})
	ctx := context.Background()

	_, _ = g.Neighbors(ctx, "US100")
	g.Invalidate("US100")
	_, _ = g.Neighbors(ctx, "US100")
	assert.Equal(t, 2, fetcher.calls)

	_, _ = g.Neighbors(ctx, "US200")
	g.InvalidateAll()
	_, _ = g.Neighbors(ctx, "US100")
	_, _ = g.Neighbors(ctx, "US200")
	assert.Equal(t, 5, fetcher.calls)
}
