package family

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcdaddytn/patentgraph/internal/metrics"
	"github.com/mcdaddytn/patentgraph/internal/models"
)

// Fetcher performs a live citation lookup against the external graph source.
type Fetcher interface {
	Neighbors(ctx context.Context, patentID string) (*models.Citations, error)
}

// CacheStore is an optional persistent tier behind the in-memory cache.
// Citation facts are immutable, so last-write-wins on Put is safe.
type CacheStore interface {
	GetCitations(ctx context.Context, patentID string) (*models.Citations, bool, error)
	PutCitations(ctx context.Context, patentID string, citations *models.Citations) error
}

type cacheEntry struct {
	citations *models.Citations
	storedAt  time.Time
}

// CachedGraph memoizes citation neighbor lookups per patent id. Reads are
// shared across concurrent expansions; a miss triggers one live fetch whose
// result is written through to the persistent tier when one is configured.
type CachedGraph struct {
	fetcher Fetcher
	store   CacheStore
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// GraphConfig configures a CachedGraph. Fetcher is required; everything else
// has a usable zero-value default.
type GraphConfig struct {
	Fetcher Fetcher
	Store   CacheStore
	// TTL bounds how long an in-memory entry is served before re-reading the
	// persistent tier. Zero means entries never expire.
	TTL     time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// NewCachedGraph creates a citation graph cache over the given fetcher.
func NewCachedGraph(cfg GraphConfig) *CachedGraph {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGraph{
		fetcher: cfg.Fetcher,
		store:   cfg.Store,
		ttl:     cfg.TTL,
		now:     now,
		logger:  logger,
		metrics: cfg.Metrics,
		entries: make(map[string]cacheEntry),
	}
}

// Neighbors returns the one-hop citation neighbors of a patent, from cache
// when possible. A failed live lookup is returned as a LookupError so callers
// can skip the single patent instead of aborting a whole generation.
func (g *CachedGraph) Neighbors(ctx context.Context, patentID string) (*models.Citations, error) {
	g.mu.RLock()
	entry, ok := g.entries[patentID]
	g.mu.RUnlock()
	if ok && !g.expired(entry) {
		return entry.citations, nil
	}

	if g.store != nil {
		citations, found, err := g.store.GetCitations(ctx, patentID)
		if err != nil {
			g.logger.Warn("citation cache read failed", "patent_id", patentID, "error", err)
		} else if found {
			g.remember(patentID, citations)
			return citations, nil
		}
	}

	start := g.now()
	citations, err := g.fetcher.Neighbors(ctx, patentID)
	if g.metrics != nil {
		g.metrics.Record(metrics.OpCitationLookup, g.now().Sub(start))
	}
	if err != nil {
		return nil, &models.LookupError{PatentID: patentID, Err: err}
	}

	g.remember(patentID, citations)
	if g.store != nil {
		if err := g.store.PutCitations(ctx, patentID, citations); err != nil {
			g.logger.Warn("citation cache write failed", "patent_id", patentID, "error", err)
		}
	}
	return citations, nil
}

// Invalidate drops a single cached entry.
func (g *CachedGraph) Invalidate(patentID string) {
	g.mu.Lock()
	delete(g.entries, patentID)
	g.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (g *CachedGraph) InvalidateAll() {
	g.mu.Lock()
	g.entries = make(map[string]cacheEntry)
	g.mu.Unlock()
}

func (g *CachedGraph) remember(patentID string, citations *models.Citations) {
	g.mu.Lock()
	g.entries[patentID] = cacheEntry{citations: citations, storedAt: g.now()}
	g.mu.Unlock()
}

func (g *CachedGraph) expired(entry cacheEntry) bool {
	if g.ttl <= 0 {
		return false
	}
	return g.now().Sub(entry.storedAt) > g.ttl
}
