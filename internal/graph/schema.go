package graph

import (
	"fmt"
	"strings"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
)

// The schema catalog is shared between backends; each dialect renders its
// own statement set. Neo4j carries composite NODE KEY constraints and a
// fulltext index; FalkorDB has neither, so composite identities collapse
// onto synthetic unique properties and fulltext is omitted.

type constraintKind int

const (
	constraintUnique constraintKind = iota
	constraintNodeKey
)

type constraintSpec struct {
	name  string
	label string
	props []string
	kind  constraintKind
}

type indexSpec struct {
	name  string
	label string
	prop  string
}

var schemaConstraints = []constraintSpec{
	{"repository_name_unique", models.LabelRepository, []string{"name"}, constraintUnique},
	{"file_identity", models.LabelFile, []string{"repository", "path"}, constraintNodeKey},
	{"function_identity", models.LabelFunction, []string{"repository", "filePath", "name"}, constraintNodeKey},
	{"class_identity", models.LabelClass, []string{"repository", "filePath", "name"}, constraintNodeKey},
	{"module_name_unique", models.LabelModule, []string{"name"}, constraintUnique},
	{"chunk_chroma_unique", models.LabelChunk, []string{"chromaId"}, constraintUnique},
	{"concept_name_unique", models.LabelConcept, []string{"name"}, constraintUnique},
}

var schemaIndexes = []indexSpec{
	{"file_repository_idx", models.LabelFile, "repository"},
	{"file_extension_idx", models.LabelFile, "extension"},
	{"function_name_idx", models.LabelFunction, "name"},
	{"class_name_idx", models.LabelClass, "name"},
	{"chunk_repository_idx", models.LabelChunk, "repository"},
}

// SchemaStatements is one dialect's rendered schema.
type SchemaStatements struct {
	Constraints []string
	Indexes     []string
	Fulltext    []string
}

// All returns every statement in application order.
func (s SchemaStatements) All() []string {
	out := make([]string, 0, len(s.Constraints)+len(s.Indexes)+len(s.Fulltext))
	out = append(out, s.Constraints...)
	out = append(out, s.Indexes...)
	out = append(out, s.Fulltext...)
	return out
}

// SchemaFor renders the catalog for one backend dialect.
func SchemaFor(backend Backend) SchemaStatements {
	switch backend {
	case BackendFalkorDB:
		return falkorSchema()
	default:
		return neo4jSchema()
	}
}

func neo4jSchema() SchemaStatements {
	var s SchemaStatements

	for _, c := range schemaConstraints {
		qualified := qualifyProps("n", c.props)
		switch c.kind {
		case constraintNodeKey:
			s.Constraints = append(s.Constraints, fmt.Sprintf(
				"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE (%s) IS NODE KEY",
				c.name, c.label, strings.Join(qualified, ", ")))
		default:
			s.Constraints = append(s.Constraints, fmt.Sprintf(
				"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE %s IS UNIQUE",
				c.name, c.label, qualified[0]))
		}
	}

	for _, idx := range schemaIndexes {
		s.Indexes = append(s.Indexes, fmt.Sprintf(
			"CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)",
			idx.name, idx.label, idx.prop))
	}

	s.Fulltext = append(s.Fulltext, fmt.Sprintf(
		"CREATE FULLTEXT INDEX code_entity_names IF NOT EXISTS FOR (n:%s|%s) ON EACH [n.name]",
		models.LabelFunction, models.LabelClass))

	return s
}

func falkorSchema() SchemaStatements {
	var s SchemaStatements

	for _, c := range schemaConstraints {
		// No NODE KEY support: composite identities use a synthetic
		// unique property instead.
		prop := c.props[0]
		if c.kind == constraintNodeKey {
			prop = syntheticKeyName(c.label)
		}
		s.Constraints = append(s.Constraints, fmt.Sprintf(
			"CREATE CONSTRAINT ON (n:%s) ASSERT n.%s IS UNIQUE",
			c.label, prop))
	}

	for _, idx := range schemaIndexes {
		s.Indexes = append(s.Indexes, fmt.Sprintf(
			"CREATE INDEX ON :%s(%s)", idx.label, idx.prop))
	}

	// Fulltext indexes are not supported; omitted.
	return s
}

func qualifyProps(varName string, props []string) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = varName + "." + p
	}
	return out
}

// syntheticKeyName maps a composite-identity label to its synthetic
// unique property in dialects without NODE KEY.
func syntheticKeyName(label string) string {
	if label == models.LabelFile {
		return "file_id"
	}
	return "unique_id"
}

// FileID is the synthetic composite identity for File nodes in dialects
// without NODE KEY support.
func FileID(repository, path string) string {
	return repository + "::" + path
}

// EntityUniqueID is the synthetic composite identity for Function and
// Class nodes.
func EntityUniqueID(repository, filePath, name string) string {
	return fmt.Sprintf("%s:%s:%s", repository, filePath, name)
}

// KeyProperties returns the identity predicate for a label in the given
// dialect. Upserts MERGE on these properties.
func KeyProperties(backend Backend, label string) ([]string, error) {
	switch label {
	case models.LabelRepository, models.LabelModule, models.LabelConcept:
		return []string{"name"}, nil
	case models.LabelChunk:
		return []string{"chromaId"}, nil
	case models.LabelFile:
		if backend == BackendFalkorDB {
			return []string{"file_id"}, nil
		}
		return []string{"repository", "path"}, nil
	case models.LabelFunction, models.LabelClass:
		if backend == BackendFalkorDB {
			return []string{"unique_id"}, nil
		}
		return []string{"repository", "filePath", "name"}, nil
	default:
		return nil, errors.Validationf("no identity predicate for label %q", label)
	}
}

// applySyntheticKeys fills the synthetic identity properties a dialect
// needs before upsert. Properties already present are left alone.
func applySyntheticKeys(backend Backend, node *models.GraphNode) {
	if backend != BackendFalkorDB || node.Properties == nil {
		return
	}
	switch node.PrimaryLabel() {
	case models.LabelFile:
		if _, ok := node.Properties["file_id"]; !ok {
			node.Properties["file_id"] = FileID(node.Property("repository"), node.Property("path"))
		}
	case models.LabelFunction, models.LabelClass:
		if _, ok := node.Properties["unique_id"]; !ok {
			node.Properties["unique_id"] = EntityUniqueID(
				node.Property("repository"), node.Property("filePath"), node.Property("name"))
		}
	}
}
