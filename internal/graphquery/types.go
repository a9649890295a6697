package graphquery

import (
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/models"
)

// EntityType scopes a dependency query target.
type EntityType string

const (
	EntityFile     EntityType = "file"
	EntityFunction EntityType = "function"
	EntityClass    EntityType = "class"
	EntityModule   EntityType = "module"
)

// DetailLevel picks the granularity of an architecture view.
type DetailLevel string

const (
	DetailPackages DetailLevel = "packages"
	DetailModules  DetailLevel = "modules"
	DetailFiles    DetailLevel = "files"
	DetailEntities DetailLevel = "entities"
)

const (
	maxDependencyDepth = 5
	// MaxPathHops caps path searches; larger requests are clamped.
	MaxPathHops     = 10
	defaultPathHops = 5
)

// DependenciesRequest drives GetDependencies and GetDependents.
// Dependency edges resolve at file scope; EntityType records what the
// path denotes.
type DependenciesRequest struct {
	EntityType        EntityType                `json:"entity_type"`
	EntityPath        string                    `json:"entity_path"`
	Repository        string                    `json:"repository"`
	Depth             int                       `json:"depth"`
	IncludeTransitive bool                      `json:"include_transitive"`
	RelationshipTypes []models.RelationshipType `json:"relationship_types,omitempty"`
}

func (r *DependenciesRequest) normalise() error {
	if r.EntityType == "" {
		r.EntityType = EntityFile
	}
	switch r.EntityType {
	case EntityFile, EntityFunction, EntityClass, EntityModule:
	default:
		return errors.Validationf("unknown entity type %q", r.EntityType)
	}
	if r.EntityPath == "" {
		return errors.Validation("entity path is required")
	}
	if r.Repository == "" {
		return errors.Validation("repository is required")
	}
	if r.Depth == 0 {
		r.Depth = 3
	}
	if r.Depth < 1 || r.Depth > maxDependencyDepth {
		return errors.Validationf("depth %d out of range [1,%d]", r.Depth, maxDependencyDepth)
	}
	for _, rt := range r.RelationshipTypes {
		if !models.IsValidRelationshipType(rt) {
			return errors.Validationf("unknown relationship type %q", rt)
		}
	}
	return nil
}

// ImpactAnalysis summarises blast radius for GetDependents.
type ImpactAnalysis struct {
	DirectImpactCount     int     `json:"direct_impact_count"`
	TransitiveImpactCount int     `json:"transitive_impact_count"`
	ImpactScore           float64 `json:"impact_score"`
}

// DependentsResult is a dependency result extended with impact analysis.
type DependentsResult struct {
	graph.DependencyResult
	ImpactAnalysis ImpactAnalysis `json:"impact_analysis"`
}

// PathRequest drives GetPath. Entities are matched by file path or
// entity name within the repository.
type PathRequest struct {
	FromEntity        string                    `json:"from_entity"`
	ToEntity          string                    `json:"to_entity"`
	Repository        string                    `json:"repository"`
	MaxHops           int                       `json:"max_hops"`
	RelationshipTypes []models.RelationshipType `json:"relationship_types,omitempty"`
}

func (r *PathRequest) normalise() error {
	if r.FromEntity == "" || r.ToEntity == "" {
		return errors.Validation("both path endpoints are required")
	}
	if r.Repository == "" {
		return errors.Validation("repository is required")
	}
	if r.MaxHops <= 0 {
		r.MaxHops = defaultPathHops
	}
	if r.MaxHops > MaxPathHops {
		r.MaxHops = MaxPathHops
	}
	for _, rt := range r.RelationshipTypes {
		if !models.IsValidRelationshipType(rt) {
			return errors.Validationf("unknown relationship type %q", rt)
		}
	}
	return nil
}

// Path is a concrete route between two entities.
type Path struct {
	Nodes             []map[string]any `json:"nodes"`
	RelationshipTypes []string         `json:"relationship_types"`
	Hops              int              `json:"hops"`
}

// PathResult reports whether a route exists, and the shortest one found.
type PathResult struct {
	PathExists bool           `json:"path_exists"`
	Path       *Path          `json:"path,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

// ArchitectureRequest drives GetArchitecture.
type ArchitectureRequest struct {
	Repository      string      `json:"repository"`
	Scope           string      `json:"scope,omitempty"`
	DetailLevel     DetailLevel `json:"detail_level"`
	IncludeExternal bool        `json:"include_external"`
}

func (r *ArchitectureRequest) normalise() error {
	if r.Repository == "" {
		return errors.Validation("repository is required")
	}
	if r.DetailLevel == "" {
		r.DetailLevel = DetailModules
	}
	switch r.DetailLevel {
	case DetailPackages, DetailModules, DetailFiles, DetailEntities:
	default:
		return errors.Validationf("unknown detail level %q", r.DetailLevel)
	}
	return nil
}

// ArchitectureNode is one element of the architecture tree.
type ArchitectureNode struct {
	Name     string              `json:"name"`
	Type     string              `json:"type"`
	Path     string              `json:"path"`
	Children []*ArchitectureNode `json:"children,omitempty"`
	Metrics  map[string]any      `json:"metrics,omitempty"`
}

// ModuleDependency is one aggregated cross-module edge.
type ModuleDependency struct {
	FromModule string `json:"from_module"`
	ToModule   string `json:"to_module"`
	Weight     int    `json:"weight"`
}

// ArchitectureResult is the tree plus the aggregated module edge set.
type ArchitectureResult struct {
	Root                    *ArchitectureNode  `json:"architecture"`
	InterModuleDependencies []ModuleDependency `json:"inter_module_dependencies"`
	Metadata                map[string]any     `json:"metadata"`
}
