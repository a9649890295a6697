package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/codegraphhq/codegraph/internal/models"
)

func record(qt models.QueryType, ms int64, fromCache bool, errMsg string) models.GraphQueryRecord {
	return models.GraphQueryRecord{
		QueryType:   qt,
		Timestamp:   time.Now(),
		DurationMs:  ms,
		ResultCount: 5,
		FromCache:   fromCache,
		Repository:  "repo",
		Error:       errMsg,
	}
}

func TestRingEvictsOldestInInsertionOrder(t *testing.T) {
	const capacity = 10
	const extra = 4
	c := NewCollector(capacity, nil)

	for i := 0; i < capacity+extra; i++ {
		rec := record(models.QueryGetDependencies, int64(i), false, "")
		rec.Repository = fmt.Sprintf("repo-%d", i)
		c.Record(rec)
	}

	if c.Count() != capacity {
		t.Fatalf("count = %d, want %d", c.Count(), capacity)
	}

	snap := c.Snapshot()
	for i, rec := range snap {
		want := fmt.Sprintf("repo-%d", i+extra)
		if rec.Repository != want {
			t.Errorf("snapshot[%d].Repository = %s, want %s", i, rec.Repository, want)
		}
	}
}

func TestCollectorDefaultCapacity(t *testing.T) {
	c := NewCollector(0, nil)
	for i := 0; i < DefaultCapacity+1; i++ {
		c.Record(record(models.QueryGetPath, 1, false, ""))
	}
	if c.Count() != DefaultCapacity {
		t.Errorf("count = %d, want default %d", c.Count(), DefaultCapacity)
	}
}

func TestAggregatePerTypeStats(t *testing.T) {
	c := NewCollector(50, nil)

	c.Record(record(models.QueryGetDependencies, 10, false, ""))
	c.Record(record(models.QueryGetDependencies, 30, true, ""))
	c.Record(record(models.QueryGetDependencies, 20, false, "timeout"))
	c.Record(record(models.QueryGetPath, 100, false, ""))

	sum := c.Aggregate()

	if sum.TotalQueries != 4 {
		t.Fatalf("total = %d, want 4", sum.TotalQueries)
	}

	deps := sum.ByType[models.QueryGetDependencies]
	if deps.Count != 3 {
		t.Errorf("deps count = %d, want 3", deps.Count)
	}
	if deps.AvgMs != 20 {
		t.Errorf("deps avg = %v, want 20", deps.AvgMs)
	}
	if deps.MaxMs != 30 || deps.MinMs != 10 {
		t.Errorf("deps max/min = %d/%d, want 30/10", deps.MaxMs, deps.MinMs)
	}
	if deps.CacheHitRate != 1.0/3.0 {
		t.Errorf("deps hit rate = %v, want 1/3", deps.CacheHitRate)
	}
	if deps.ErrorCount != 1 {
		t.Errorf("deps errors = %d, want 1", deps.ErrorCount)
	}

	path := sum.ByType[models.QueryGetPath]
	if path.Count != 1 || path.AvgMs != 100 {
		t.Errorf("path stats = %+v", path)
	}
}

func TestWeeklyTrendSkipsOldRecords(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	records := []models.GraphQueryRecord{
		{QueryType: models.QueryGetPath, Timestamp: now.Add(-8 * 24 * time.Hour), DurationMs: 10},
		{QueryType: models.QueryGetPath, Timestamp: now.Add(-2 * 24 * time.Hour), DurationMs: 20},
		{QueryType: models.QueryGetPath, Timestamp: now.Add(-2 * 24 * time.Hour), DurationMs: 40, Error: "x"},
		{QueryType: models.QueryGetPath, Timestamp: now.Add(-time.Hour), DurationMs: 30},
	}

	trend := weeklyTrend(records, now)

	if len(trend) != 2 {
		t.Fatalf("trend days = %d, want 2", len(trend))
	}
	if trend[0].Date != "2026-03-08" {
		t.Errorf("trend[0].Date = %s", trend[0].Date)
	}
	if trend[0].Count != 2 || trend[0].AvgMs != 30 || trend[0].ErrorCount != 1 {
		t.Errorf("trend[0] = %+v", trend[0])
	}
	if trend[1].Date != "2026-03-10" || trend[1].Count != 1 {
		t.Errorf("trend[1] = %+v", trend[1])
	}
}
