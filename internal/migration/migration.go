// Package migration copies a whole graph from one backend to another and
// verifies the copy. Export streams nodes and relationships out of the
// source in deterministic pages, import recreates them in the target with
// the source id stashed in a reserved property, and validation compares
// counts and samples before the run is declared good.
package migration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
)

const (
	// DefaultBatchSize is the export page size.
	DefaultBatchSize = 1000
	// DefaultSampleSize is how many source nodes validation spot-checks.
	DefaultSampleSize = 10
	// SourceIDProperty is the reserved property carrying the source id on
	// every imported node. It is excluded from property comparisons.
	SourceIDProperty = "_source_id"
)

// Querier is the slice of the graph adapter the migrator needs.
type Querier interface {
	Backend() graph.Backend
	RunQuery(ctx context.Context, cypher string, params map[string]any) ([]graph.Record, error)
}

// Options tunes a transfer run.
type Options struct {
	// BatchSize is the export page size; zero means DefaultBatchSize.
	BatchSize int
	// SampleSize caps the validation spot-check; zero means
	// DefaultSampleSize.
	SampleSize int
	// DryRun exports and reports projected counts without writing to the
	// target.
	DryRun bool
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	return o
}

// ExportedNode is one node pulled from the source graph.
type ExportedNode struct {
	SourceID   string         `json:"source_id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// ExportedRelationship is one edge pulled from the source graph, with its
// endpoints referenced by source id.
type ExportedRelationship struct {
	SourceID      string         `json:"source_id"`
	Type          string         `json:"type"`
	StartSourceID string         `json:"start_source_id"`
	EndSourceID   string         `json:"end_source_id"`
	Properties    map[string]any `json:"properties"`
}

// ItemError records one node or relationship the import skipped.
type ItemError struct {
	Kind     string `json:"kind"`
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

// Discrepancy is one validation mismatch between source and target.
type Discrepancy struct {
	Check  string `json:"check"`
	Detail string `json:"detail"`
}

// Result summarises a transfer run. IsValid holds only when validation
// found no discrepancies; skipped items always show up as discrepancies
// because the target ends up short.
type Result struct {
	RunID                 string        `json:"run_id"`
	DryRun                bool          `json:"dry_run"`
	NodesExported         int           `json:"nodes_exported"`
	RelationshipsExported int           `json:"relationships_exported"`
	NodesImported         int           `json:"nodes_imported"`
	RelationshipsImported int           `json:"relationships_imported"`
	Skipped               []ItemError   `json:"skipped,omitempty"`
	Discrepancies         []Discrepancy `json:"discrepancies,omitempty"`
	IsValid               bool          `json:"is_valid"`
	DurationMs            int64         `json:"duration_ms"`
}

// Migrator moves one graph into another. Source and target may speak
// different dialects; id handling adapts per backend.
type Migrator struct {
	source Querier
	target Querier
	opts   Options
	logger *logrus.Logger
}

// New builds a migrator over connected source and target adapters.
func New(source, target Querier, opts Options, logger *logrus.Logger) (*Migrator, error) {
	if source == nil || target == nil {
		return nil, errors.Validation("migration requires both a source and a target graph")
	}
	return &Migrator{
		source: source,
		target: target,
		opts:   opts.withDefaults(),
		logger: logger,
	}, nil
}

// Run executes the transfer: export, then import and validation unless
// DryRun is set. Per-item validation failures are collected on the result;
// only connection-level failures abort the run.
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	result := &Result{RunID: uuid.NewString(), DryRun: m.opts.DryRun}

	m.logger.WithFields(logrus.Fields{
		"run_id":  result.RunID,
		"source":  m.source.Backend(),
		"target":  m.target.Backend(),
		"dry_run": m.opts.DryRun,
	}).Info("Starting graph transfer")

	nodes, err := m.exportNodes(ctx)
	if err != nil {
		return nil, err
	}
	result.NodesExported = len(nodes)

	rels, err := m.exportRelationships(ctx)
	if err != nil {
		return nil, err
	}
	result.RelationshipsExported = len(rels)

	m.logger.WithFields(logrus.Fields{
		"run_id":        result.RunID,
		"nodes":         result.NodesExported,
		"relationships": result.RelationshipsExported,
	}).Info("Export complete")

	if m.opts.DryRun {
		result.IsValid = true
		result.DurationMs = time.Since(started).Milliseconds()
		m.logger.WithField("run_id", result.RunID).Info("Dry run complete, no target writes performed")
		return result, nil
	}

	remap, nodeSkips, err := m.importNodes(ctx, nodes)
	if err != nil {
		return nil, err
	}
	result.NodesImported = len(remap)
	result.Skipped = append(result.Skipped, nodeSkips...)

	relsImported, relSkips, err := m.importRelationships(ctx, rels, remap)
	if err != nil {
		return nil, err
	}
	result.RelationshipsImported = relsImported
	result.Skipped = append(result.Skipped, relSkips...)

	m.logger.WithFields(logrus.Fields{
		"run_id":        result.RunID,
		"nodes":         result.NodesImported,
		"relationships": result.RelationshipsImported,
		"skipped":       len(result.Skipped),
	}).Info("Import complete")

	discrepancies, err := m.validate(ctx, nodes)
	if err != nil {
		return nil, err
	}
	result.Discrepancies = discrepancies
	result.IsValid = len(discrepancies) == 0
	result.DurationMs = time.Since(started).Milliseconds()

	m.logger.WithFields(logrus.Fields{
		"run_id":        result.RunID,
		"is_valid":      result.IsValid,
		"discrepancies": len(result.Discrepancies),
		"duration_ms":   result.DurationMs,
	}).Info("Graph transfer finished")
	return result, nil
}

// idFunc picks the id projection for a dialect: neo4j element ids are
// opaque strings, falkordb ids are integers.
func idFunc(b graph.Backend) string {
	if b == graph.BackendNeo4j {
		return "elementId"
	}
	return "id"
}

// skippable reports whether an import failure should skip the item rather
// than abort the run.
func skippable(err error) bool {
	return errors.KindOf(err) == errors.KindValidation
}
