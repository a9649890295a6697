package graphquery

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/metrics"
	"github.com/codegraphhq/codegraph/internal/models"
)

// DefaultQueryTimeout bounds each backend round trip.
const DefaultQueryTimeout = 5 * time.Second

// Service is the user-facing query surface over the graph adapter. All
// calls are cached, recorded into the metrics ring and bounded by the
// query timeout.
type Service struct {
	adapter   graph.Adapter
	cache     *queryCache
	collector *metrics.Collector
	logger    *slog.Logger
	timeout   time.Duration
}

// Options tune the service; zero values select defaults.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Timeout   time.Duration
	Collector *metrics.Collector
}

func New(adapter graph.Adapter, opts Options) *Service {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector(metrics.DefaultCapacity, nil)
	}
	return &Service{
		adapter:   adapter,
		cache:     newQueryCache(opts.CacheSize, opts.CacheTTL),
		collector: collector,
		logger:    logging.ForComponent("graphquery"),
		timeout:   timeout,
	}
}

// Metrics exposes the collector for status surfaces.
func (s *Service) Metrics() *metrics.Collector { return s.collector }

// ClearCacheForRepository drops cached results referencing the repo.
// Called after any write that mutates that repository's graph.
func (s *Service) ClearCacheForRepository(name string) int {
	removed := s.cache.clearRepository(name)
	if removed > 0 {
		s.logger.Debug("cache invalidated", "repository", name, "entries", removed)
	}
	return removed
}

// CacheLen reports the live entry count.
func (s *Service) CacheLen() int { return s.cache.len() }

func (s *Service) GetDependencies(ctx context.Context, req DependenciesRequest) (*graph.DependencyResult, error) {
	started := time.Now()
	if err := req.normalise(); err != nil {
		s.record(models.QueryGetDependencies, req.Repository, started, req.Depth, false, 0, err)
		return nil, err
	}

	key := cacheKey("getDependencies", req)
	if cached, ok := s.cache.get(key); ok {
		result := cloneDependencyResult(cached.(*graph.DependencyResult))
		stampMetadata(result.Metadata, true, started, req.Repository)
		s.record(models.QueryGetDependencies, req.Repository, started, req.Depth, true, dependencyCount(result), nil)
		return result, nil
	}

	result, err := s.analyze(ctx, req, graph.DirectionDependsOn)
	if err != nil {
		err = s.classify(err, started)
		s.record(models.QueryGetDependencies, req.Repository, started, req.Depth, false, 0, err)
		return nil, err
	}

	s.cache.put(key, req.Repository, result)
	out := cloneDependencyResult(result)
	stampMetadata(out.Metadata, false, started, req.Repository)
	s.record(models.QueryGetDependencies, req.Repository, started, req.Depth, false, dependencyCount(out), nil)
	return out, nil
}

func (s *Service) GetDependents(ctx context.Context, req DependenciesRequest) (*DependentsResult, error) {
	started := time.Now()
	if err := req.normalise(); err != nil {
		s.record(models.QueryGetDependents, req.Repository, started, req.Depth, false, 0, err)
		return nil, err
	}

	key := cacheKey("getDependents", req)
	if cached, ok := s.cache.get(key); ok {
		result := cloneDependentsResult(cached.(*DependentsResult))
		stampMetadata(result.Metadata, true, started, req.Repository)
		s.record(models.QueryGetDependents, req.Repository, started, req.Depth, true, dependencyCount(&result.DependencyResult), nil)
		return result, nil
	}

	analysis, err := s.analyze(ctx, req, graph.DirectionDependedOnBy)
	if err != nil {
		err = s.classify(err, started)
		s.record(models.QueryGetDependents, req.Repository, started, req.Depth, false, 0, err)
		return nil, err
	}

	result := &DependentsResult{
		DependencyResult: *analysis,
		ImpactAnalysis: ImpactAnalysis{
			DirectImpactCount:     len(analysis.Direct),
			TransitiveImpactCount: len(analysis.Transitive),
			ImpactScore:           analysis.ImpactScore,
		},
	}

	s.cache.put(key, req.Repository, result)
	out := cloneDependentsResult(result)
	stampMetadata(out.Metadata, false, started, req.Repository)
	s.record(models.QueryGetDependents, req.Repository, started, req.Depth, false, dependencyCount(&out.DependencyResult), nil)
	return out, nil
}

func (s *Service) analyze(ctx context.Context, req DependenciesRequest, direction graph.Direction) (*graph.DependencyResult, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.adapter.AnalyzeDependencies(queryCtx, graph.DependencyQuery{
		Target:        req.EntityPath,
		Repository:    req.Repository,
		Direction:     direction,
		Transitive:    req.IncludeTransitive,
		MaxDepth:      req.Depth,
		Relationships: req.RelationshipTypes,
	})
}

// classify folds raw context expiry into the typed timeout error;
// adapter errors already carry their kind.
func (s *Service) classify(err error, started time.Time) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsError(err); ok {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout("graph query timed out", time.Since(started).Milliseconds())
	}
	return errors.Operation(err, "graph query failed", false)
}

func (s *Service) record(qt models.QueryType, repo string, started time.Time, depth int, fromCache bool, resultCount int, err error) {
	rec := models.GraphQueryRecord{
		QueryType:   qt,
		Timestamp:   started,
		DurationMs:  time.Since(started).Milliseconds(),
		ResultCount: resultCount,
		Depth:       depth,
		FromCache:   fromCache,
		Repository:  repo,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.collector.Record(rec)
}

func dependencyCount(r *graph.DependencyResult) int {
	return len(r.Direct) + len(r.Transitive)
}

// stampMetadata applies the query metadata contract shared by every
// query surface: elapsed time, cache provenance and the repositories
// the query touched.
func stampMetadata(md map[string]any, fromCache bool, started time.Time, repositories ...string) {
	md["query_time_ms"] = time.Since(started).Milliseconds()
	md["from_cache"] = fromCache
	if len(repositories) > 0 {
		md["repositories_searched"] = repositories
	}
}

// cloneDependencyResult shields cached entries from caller mutation.
// The copy is deep: entry slices and per-entry property maps are owned
// by the clone, so callers can edit what they get back.
func cloneDependencyResult(r *graph.DependencyResult) *graph.DependencyResult {
	out := *r
	out.Direct = cloneEntries(r.Direct)
	out.Transitive = cloneEntries(r.Transitive)
	out.Metadata = cloneMetadata(r.Metadata)
	return &out
}

func cloneDependentsResult(r *DependentsResult) *DependentsResult {
	out := *r
	inner := cloneDependencyResult(&r.DependencyResult)
	out.DependencyResult = *inner
	return &out
}

func cloneEntries(entries []graph.DependencyEntry) []graph.DependencyEntry {
	if entries == nil {
		return nil
	}
	out := make([]graph.DependencyEntry, len(entries))
	for i, e := range entries {
		e.Labels = append([]string(nil), e.Labels...)
		e.Properties = cloneProperties(e.Properties)
		out[i] = e
	}
	return out
}

func cloneProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// cloneMetadata leaves headroom for the contract keys stamped after
// cloning.
func cloneMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md)+3)
	for k, v := range md {
		out[k] = v
	}
	return out
}
