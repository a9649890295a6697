// Package graph provides a uniform adapter over the supported graph
// backends: node and relationship upsert, traversal, dependency analysis
// and context retrieval, with identifier validation guarding every
// label or type that is interpolated into a query.
package graph

import (
	"context"

	"github.com/codegraphhq/codegraph/internal/models"
)

// MaxTraversalDepth caps variable-length traversals. Caller-supplied
// depths above it are silently clamped.
const MaxTraversalDepth = 5

// Backend identifies a graph engine dialect.
type Backend string

const (
	BackendNeo4j    Backend = "neo4j"
	BackendFalkorDB Backend = "falkordb"
)

// Record is one normalised result row.
type Record = map[string]any

// Direction selects which side of the dependency edges to follow.
type Direction string

const (
	DirectionDependsOn    Direction = "dependsOn"
	DirectionDependedOnBy Direction = "dependedOnBy"
	DirectionBoth         Direction = "both"
)

// ContextKind names the context facets GetContext can assemble.
type ContextKind string

const (
	ContextImports       ContextKind = "imports"
	ContextCallers       ContextKind = "callers"
	ContextCallees       ContextKind = "callees"
	ContextSiblings      ContextKind = "siblings"
	ContextDocumentation ContextKind = "documentation"
)

// TraversalQuery walks outward from a start node along the given
// relationship types. StartID takes precedence over the label/property
// match. Depth above MaxTraversalDepth is clamped.
type TraversalQuery struct {
	StartID       string
	StartLabel    string
	StartProps    map[string]any
	Relationships []models.RelationshipType
	Depth         int
	Repository    string
}

// TraversalNode is one node reached by a traversal, with its distance
// from the start.
type TraversalNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
	Depth      int            `json:"depth"`
}

// TraversalResult is the normalised traversal output.
type TraversalResult struct {
	Start *models.GraphNode `json:"start"`
	Nodes []TraversalNode   `json:"nodes"`
}

// DependencyQuery analyses what a file depends on, what depends on it,
// or both. Target is a repo-relative file path. Relationships narrows
// the edge types considered; empty means the default dependency set.
type DependencyQuery struct {
	Target        string
	Repository    string
	Direction     Direction
	Transitive    bool
	MaxDepth      int
	Relationships []models.RelationshipType
}

// DependencyEntry is one related entity in a dependency analysis.
type DependencyEntry struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// DependencyResult carries direct and optional transitive dependencies
// plus a normalised impact score in [0,1].
type DependencyResult struct {
	Direct      []DependencyEntry `json:"direct"`
	Transitive  []DependencyEntry `json:"transitive,omitempty"`
	ImpactScore float64           `json:"impact_score"`
	Metadata    map[string]any    `json:"metadata"`
}

// ContextQuery assembles surrounding context for seed entities.
type ContextQuery struct {
	Seeds      []string
	Repository string
	Include    []ContextKind
	Limit      int
}

// ContextItem is one piece of retrieved context.
type ContextItem struct {
	Seed string        `json:"seed"`
	Kind ContextKind   `json:"kind"`
	Node TraversalNode `json:"node"`
}

// ContextResult is the normalised context output.
type ContextResult struct {
	Items    []ContextItem  `json:"context"`
	Metadata map[string]any `json:"metadata"`
}

// Adapter is the uniform capability contract over a graph backend. All
// methods fail with the typed error taxonomy; labels and relationship
// types that do not match the identifier rules are rejected before any
// query executes.
type Adapter interface {
	// Connect establishes the backend connection and applies the schema.
	Connect(ctx context.Context) error
	// Close releases the connection.
	Close(ctx context.Context) error
	// HealthCheck verifies connectivity; nil means healthy.
	HealthCheck(ctx context.Context) error

	// Backend reports the adapter dialect.
	Backend() Backend

	// RunQuery is the raw query escape hatch; rows come back normalised.
	RunQuery(ctx context.Context, cypher string, params map[string]any) ([]Record, error)

	// UpsertNode creates or updates a node. Identity comes from the
	// backend-specific key predicates for its primary label; a supplied
	// ID overrides key-based matching.
	UpsertNode(ctx context.Context, node *models.GraphNode) (*models.GraphNode, error)
	// UpsertNodes batch-upserts nodes grouped by primary label.
	UpsertNodes(ctx context.Context, nodes []*models.GraphNode) (int, error)
	// DeleteNode detaches and deletes a node by backend id.
	DeleteNode(ctx context.Context, id string) (bool, error)

	// CreateRelationship merges a typed edge between two node ids.
	CreateRelationship(ctx context.Context, fromID, toID string, relType models.RelationshipType, props map[string]any) (*models.GraphRelationship, error)
	// CreateRelationships batch-merges edges grouped by type.
	CreateRelationships(ctx context.Context, rels []*models.GraphRelationship) (int, error)
	// DeleteRelationship deletes an edge by backend id.
	DeleteRelationship(ctx context.Context, id string) (bool, error)

	Traverse(ctx context.Context, q TraversalQuery) (*TraversalResult, error)
	AnalyzeDependencies(ctx context.Context, q DependencyQuery) (*DependencyResult, error)
	GetContext(ctx context.Context, q ContextQuery) (*ContextResult, error)
}

// dependencyRelTypes are the edge types that constitute a dependency.
var dependencyRelTypes = []models.RelationshipType{
	models.RelImports,
	models.RelCalls,
	models.RelExtends,
	models.RelImplements,
	models.RelReferences,
}

// clampDepth enforces the traversal depth cap; non-positive depths
// default to 1.
func clampDepth(depth int) int {
	if depth <= 0 {
		return 1
	}
	if depth > MaxTraversalDepth {
		return MaxTraversalDepth
	}
	return depth
}

// impactScore folds direct and transitive dependent counts into [0,1].
// Monotonic in both inputs; saturates at 20 weighted dependents.
func impactScore(direct, transitive int) float64 {
	score := (float64(direct) + 0.5*float64(transitive)) / 20.0
	if score > 1 {
		return 1
	}
	return score
}
