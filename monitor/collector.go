package monitor

import (
	"sync"
	"time"
)

// Collector receives per-request metrics and summarizes them on demand.
type Collector interface {
	Record(metrics RequestMetrics)
	Flush() ServiceMetrics
}

// InMemoryCollector keeps running aggregates per operation. It never stores
// individual requests, so memory use is bounded by the operation count.
type InMemoryCollector struct {
	mu        sync.RWMutex
	totals    map[string]*operationTotals
	startTime time.Time
}

type operationTotals struct {
	requests     int
	failures     int
	evidenceGaps int
	totalSources int
	duration     time.Duration
}

func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		totals:    make(map[string]*operationTotals),
		startTime: time.Now(),
	}
}

func (c *InMemoryCollector) Record(metrics RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.totals[metrics.Operation]
	if !ok {
		t = &operationTotals{}
		c.totals[metrics.Operation] = t
	}
	t.requests++
	t.duration += metrics.Duration
	t.totalSources += metrics.Sources
	if !metrics.Success {
		t.failures++
	}
	if metrics.EvidenceGap {
		t.evidenceGaps++
	}
}

func (c *InMemoryCollector) Flush() ServiceMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]OperationStats, len(c.totals))
	for op, t := range c.totals {
		stats := OperationStats{
			Requests:     t.requests,
			Failures:     t.failures,
			EvidenceGaps: t.evidenceGaps,
			TotalSources: t.totalSources,
		}
		if t.requests > 0 {
			stats.AvgDuration = t.duration / time.Duration(t.requests)
		}
		operations[op] = stats
	}

	return ServiceMetrics{
		Operations: operations,
		StartTime:  c.startTime,
		Uptime:     time.Since(c.startTime),
	}
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals = make(map[string]*operationTotals)
	c.startTime = time.Now()
}

// NoOpCollector discards everything; used when metrics are disabled.
type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector { return &NoOpCollector{} }

func (NoOpCollector) Record(RequestMetrics) {}

func (NoOpCollector) Flush() ServiceMetrics { return ServiceMetrics{} }
