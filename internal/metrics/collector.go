// Package metrics keeps a bounded in-memory ring of graph query records
// and aggregates them on demand.
package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/codegraphhq/codegraph/internal/models"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 100

// TypeStats aggregates records of one query type.
type TypeStats struct {
	Count          int     `json:"count"`
	AvgMs          float64 `json:"avg_ms"`
	MaxMs          int64   `json:"max_ms"`
	MinMs          int64   `json:"min_ms"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	AvgResultCount float64 `json:"avg_result_count"`
	ErrorCount     int     `json:"error_count"`
}

// DailyTrend is one day's bucket in the trailing-week view.
type DailyTrend struct {
	Date       string  `json:"date"`
	Count      int     `json:"count"`
	AvgMs      float64 `json:"avg_ms"`
	ErrorCount int     `json:"error_count"`
}

// Summary is the aggregate view over the current ring contents.
type Summary struct {
	TotalQueries int                            `json:"total_queries"`
	ByType       map[models.QueryType]TypeStats `json:"by_type"`
	Trend        []DailyTrend                   `json:"trend_7d"`
}

// Collector is a fixed-capacity FIFO ring. Record and eviction are O(1);
// aggregation walks the ring read-only under the same mutex.
type Collector struct {
	mu       sync.Mutex
	records  []models.GraphQueryRecord
	head     int
	size     int
	capacity int
	logger   *slog.Logger
}

// NewCollector creates a collector; capacity <= 0 falls back to the default.
func NewCollector(capacity int, logger *slog.Logger) *Collector {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		records:  make([]models.GraphQueryRecord, capacity),
		capacity: capacity,
		logger:   logger.With("component", "metrics"),
	}
}

// Record appends one sample, evicting the oldest when full.
func (c *Collector) Record(rec models.GraphQueryRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size < c.capacity {
		c.records[(c.head+c.size)%c.capacity] = rec
		c.size++
		return
	}
	c.records[c.head] = rec
	c.head = (c.head + 1) % c.capacity
}

// Count returns the number of retained records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Snapshot returns retained records oldest-first.
func (c *Collector) Snapshot() []models.GraphQueryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collector) snapshotLocked() []models.GraphQueryRecord {
	out := make([]models.GraphQueryRecord, 0, c.size)
	for i := 0; i < c.size; i++ {
		out = append(out, c.records[(c.head+i)%c.capacity])
	}
	return out
}

// Aggregate computes the summary over the current ring contents.
func (c *Collector) Aggregate() Summary {
	c.mu.Lock()
	records := c.snapshotLocked()
	c.mu.Unlock()

	summary := Summary{
		TotalQueries: len(records),
		ByType:       make(map[models.QueryType]TypeStats),
	}

	type acc struct {
		count      int
		totalMs    int64
		maxMs      int64
		minMs      int64
		hits       int
		results    int
		errorCount int
	}
	byType := make(map[models.QueryType]*acc)

	for _, rec := range records {
		a, ok := byType[rec.QueryType]
		if !ok {
			a = &acc{minMs: rec.DurationMs, maxMs: rec.DurationMs}
			byType[rec.QueryType] = a
		}
		a.count++
		a.totalMs += rec.DurationMs
		if rec.DurationMs > a.maxMs {
			a.maxMs = rec.DurationMs
		}
		if rec.DurationMs < a.minMs {
			a.minMs = rec.DurationMs
		}
		if rec.FromCache {
			a.hits++
		}
		a.results += rec.ResultCount
		if rec.Error != "" {
			a.errorCount++
		}
	}

	for qt, a := range byType {
		summary.ByType[qt] = TypeStats{
			Count:          a.count,
			AvgMs:          float64(a.totalMs) / float64(a.count),
			MaxMs:          a.maxMs,
			MinMs:          a.minMs,
			CacheHitRate:   float64(a.hits) / float64(a.count),
			AvgResultCount: float64(a.results) / float64(a.count),
			ErrorCount:     a.errorCount,
		}
	}

	summary.Trend = weeklyTrend(records, time.Now())
	return summary
}

// weeklyTrend buckets records from the trailing seven days by calendar day,
// oldest first. Days without queries are omitted.
func weeklyTrend(records []models.GraphQueryRecord, now time.Time) []DailyTrend {
	cutoff := now.Add(-7 * 24 * time.Hour)

	type acc struct {
		count      int
		totalMs    int64
		errorCount int
	}
	days := make(map[string]*acc)
	var order []string

	for _, rec := range records {
		if !rec.Timestamp.After(cutoff) {
			continue
		}
		day := rec.Timestamp.UTC().Format("2006-01-02")
		a, ok := days[day]
		if !ok {
			a = &acc{}
			days[day] = a
			order = append(order, day)
		}
		a.count++
		a.totalMs += rec.DurationMs
		if rec.Error != "" {
			a.errorCount++
		}
	}

	trend := make([]DailyTrend, 0, len(order))
	for _, day := range order {
		a := days[day]
		trend = append(trend, DailyTrend{
			Date:       day,
			Count:      a.count,
			AvgMs:      float64(a.totalMs) / float64(a.count),
			ErrorCount: a.errorCount,
		})
	}
	return trend
}
