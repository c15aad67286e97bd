// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalTokens int64
	MinTokens   int64
	MaxTokens   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Token stats (nil if not applicable)
	TotalTokens *int64
	AvgTokens   *float64
	MinTokens   *int64
	MaxTokens   *int64
}

// Snapshot represents the full runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64
	LLMScore       *OperationSnapshot
	CitationLookup *OperationSnapshot
	PatentResolve  *OperationSnapshot
	DBQuery        *OperationSnapshot
}

// Operation names for the collector.
const (
	OpLLMScore       = "llm_score"
	OpCitationLookup = "citation_lookup"
	OpPatentResolve  = "patent_resolve"
	OpDBQuery        = "db_query"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:   time.Duration(math.MaxInt64),
			MinTokens: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

// Record records timing for an operation.
func (c *Collector) Record(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTokens records token usage for an LLM operation.
func (c *Collector) RecordTokens(op string, tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	t := int64(tokens)
	m.TotalTokens += t
	if t < m.MinTokens {
		m.MinTokens = t
	}
	if t > m.MaxTokens {
		m.MaxTokens = t
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && m.TotalTokens > 0 {
		total := m.TotalTokens
		avg := float64(m.TotalTokens) / float64(m.Count)
		minT := m.MinTokens
		maxT := m.MaxTokens

		// Reset sentinel values for display
		if minT == math.MaxInt64 {
			minT = 0
		}

		snap.TotalTokens = &total
		snap.AvgTokens = &avg
		snap.MinTokens = &minT
		snap.MaxTokens = &maxT
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		LLMScore:       snapshotOp(c.ops[OpLLMScore], true),
		CitationLookup: snapshotOp(c.ops[OpCitationLookup], false),
		PatentResolve:  snapshotOp(c.ops[OpPatentResolve], false),
		DBQuery:        snapshotOp(c.ops[OpDBQuery], false),
	}
}
