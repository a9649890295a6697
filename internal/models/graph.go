package models

import (
	"fmt"
	"time"
)

// Node labels for the code graph.
const (
	LabelRepository = "Repository"
	LabelFile       = "File"
	LabelFunction   = "Function"
	LabelClass      = "Class"
	LabelModule     = "Module"
	LabelChunk      = "Chunk"
	LabelConcept    = "Concept"
)

// RelationshipType is the closed set of directed edge types.
type RelationshipType string

const (
	RelContains   RelationshipType = "CONTAINS"
	RelImports    RelationshipType = "IMPORTS"
	RelCalls      RelationshipType = "CALLS"
	RelDefines    RelationshipType = "DEFINES"
	RelExtends    RelationshipType = "EXTENDS"
	RelImplements RelationshipType = "IMPLEMENTS"
	RelReferences RelationshipType = "REFERENCES"
	RelBelongsTo  RelationshipType = "BELONGS_TO"
)

// AllRelationshipTypes lists every valid edge type.
var AllRelationshipTypes = []RelationshipType{
	RelContains, RelImports, RelCalls, RelDefines,
	RelExtends, RelImplements, RelReferences, RelBelongsTo,
}

// IsValidRelationshipType reports whether t belongs to the closed set.
func IsValidRelationshipType(t RelationshipType) bool {
	for _, rt := range AllRelationshipTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// GraphNode is a polymorphic graph entity tagged by its labels.
// ID is backend-assigned; when set on input it overrides key-based identity.
type GraphNode struct {
	ID         string                 `json:"id,omitempty"`
	Labels     []string               `json:"labels"`
	Properties map[string]interface{} `json:"properties"`
}

// GraphRelationship is a directed, typed edge with an optional property bag.
type GraphRelationship struct {
	ID         string                 `json:"id,omitempty"`
	Type       RelationshipType       `json:"type"`
	FromID     string                 `json:"from_id"`
	ToID       string                 `json:"to_id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// PrimaryLabel returns the first label, or "" for an untagged node.
func (n *GraphNode) PrimaryLabel() string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

// Property returns a string property, or "" when absent.
func (n *GraphNode) Property(key string) string {
	if n.Properties == nil {
		return ""
	}
	if v, ok := n.Properties[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// NewRepositoryNode builds a Repository node keyed by name.
func NewRepositoryNode(name, url string, lastIndexed time.Time, status RepositoryStatus) *GraphNode {
	return &GraphNode{
		Labels: []string{LabelRepository},
		Properties: map[string]interface{}{
			"name":        name,
			"url":         url,
			"lastIndexed": lastIndexed.UTC().Format(time.RFC3339),
			"status":      string(status),
		},
	}
}

// NewFileNode builds a File node keyed by (repository, path).
func NewFileNode(repository, path, extension, hash string) *GraphNode {
	return &GraphNode{
		Labels: []string{LabelFile},
		Properties: map[string]interface{}{
			"path":       path,
			"extension":  extension,
			"hash":       hash,
			"repository": repository,
		},
	}
}

// NewFunctionNode builds a Function node identified by
// (repository, filePath, name).
func NewFunctionNode(repository, filePath, name, signature string, startLine, endLine int) *GraphNode {
	return &GraphNode{
		Labels: []string{LabelFunction},
		Properties: map[string]interface{}{
			"name":       name,
			"signature":  signature,
			"startLine":  startLine,
			"endLine":    endLine,
			"filePath":   filePath,
			"repository": repository,
		},
	}
}

// NewClassNode builds a Class node; classType distinguishes
// class/interface/enum variants.
func NewClassNode(repository, filePath, name, classType string, startLine, endLine int) *GraphNode {
	return &GraphNode{
		Labels: []string{LabelClass},
		Properties: map[string]interface{}{
			"name":       name,
			"type":       classType,
			"filePath":   filePath,
			"startLine":  startLine,
			"endLine":    endLine,
			"repository": repository,
		},
	}
}

// NewModuleNode builds a Module node keyed by name. moduleType is the
// provenance class (npm, builtin, local, ...).
func NewModuleNode(name, moduleType, version string) *GraphNode {
	props := map[string]interface{}{
		"name": name,
		"type": moduleType,
	}
	if version != "" {
		props["version"] = version
	}
	return &GraphNode{
		Labels:     []string{LabelModule},
		Properties: props,
	}
}

// NewChunkNode builds a Chunk node bridging the graph to the vector store.
func NewChunkNode(chromaID string, chunkIndex int, filePath, repository string) *GraphNode {
	return &GraphNode{
		Labels: []string{LabelChunk},
		Properties: map[string]interface{}{
			"chromaId":   chromaID,
			"chunkIndex": chunkIndex,
			"filePath":   filePath,
			"repository": repository,
		},
	}
}

// NewConceptNode builds a Concept node, unique by name.
func NewConceptNode(name, description string, confidence float64) *GraphNode {
	return &GraphNode{
		Labels: []string{LabelConcept},
		Properties: map[string]interface{}{
			"name":        name,
			"description": description,
			"confidence":  confidence,
		},
	}
}
