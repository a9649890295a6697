package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codegraphhq/codegraph/internal/errors"
)

// CypherBuilder builds parameterised Cypher. Every value travels as a
// bound $pN parameter; labels, relationship types and property keys are
// validated against the identifier rules before interpolation.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder.
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam binds a value and returns its placeholder.
func (b *CypherBuilder) AddParam(value any) string {
	name := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[name] = value
	return "$" + name
}

// Params returns all bound parameters.
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildMergeNode renders a MERGE for one node: matched on its key
// properties, with the remaining properties applied via SET. The idSelector
// argument names the backend's id function (elementId or id).
func (b *CypherBuilder) BuildMergeNode(labels []string, keyProps []string, props map[string]any, idSelector string) (string, error) {
	if err := ValidateLabels(labels); err != nil {
		return "", err
	}
	if err := ValidatePropertyKeys(props); err != nil {
		return "", err
	}
	if len(keyProps) == 0 {
		return "", errors.Validation("node merge requires at least one key property")
	}

	keyClauses := make([]string, 0, len(keyProps))
	for _, key := range keyProps {
		if !IsValidIdentifier(key) {
			return "", errors.Validationf("invalid key property %q", key)
		}
		value, ok := props[key]
		if !ok {
			return "", errors.Validationf("node missing key property %q", key)
		}
		keyClauses = append(keyClauses, fmt.Sprintf("%s: %s", key, b.AddParam(value)))
	}

	setClauses := make([]string, 0, len(props))
	for _, key := range sortedKeys(props) {
		if containsString(keyProps, key) {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("n.%s = %s", key, b.AddParam(props[key])))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE (n:%s {%s})", strings.Join(labels, ":"), strings.Join(keyClauses, ", "))
	if len(setClauses) > 0 {
		fmt.Fprintf(&sb, " SET %s", strings.Join(setClauses, ", "))
	}
	fmt.Fprintf(&sb, " RETURN %s(n) AS id, labels(n) AS labels", idSelector)
	return sb.String(), nil
}

// BuildMergeRelationship renders a MERGE edge between two nodes matched by
// backend id, with properties applied via SET.
func (b *CypherBuilder) BuildMergeRelationship(relType string, fromID, toID any, props map[string]any, idSelector string) (string, error) {
	if !IsValidIdentifier(relType) {
		return "", errors.Validationf("invalid relationship type %q", relType)
	}
	if err := ValidatePropertyKeys(props); err != nil {
		return "", err
	}

	fromParam := b.AddParam(fromID)
	toParam := b.AddParam(toID)

	setClauses := make([]string, 0, len(props))
	for _, key := range sortedKeys(props) {
		setClauses = append(setClauses, fmt.Sprintf("r.%s = %s", key, b.AddParam(props[key])))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MATCH (a) WHERE %s(a) = %s MATCH (b) WHERE %s(b) = %s ", idSelector, fromParam, idSelector, toParam)
	fmt.Fprintf(&sb, "MERGE (a)-[r:%s]->(b)", relType)
	if len(setClauses) > 0 {
		fmt.Fprintf(&sb, " SET %s", strings.Join(setClauses, ", "))
	}
	fmt.Fprintf(&sb, " RETURN %s(r) AS id", idSelector)
	return sb.String(), nil
}

// RelationshipPattern joins validated relationship types for a variable
// length pattern, e.g. "IMPORTS|CALLS".
func RelationshipPattern(types []string) (string, error) {
	if len(types) == 0 {
		return "", errors.Validation("relationship pattern requires at least one type")
	}
	for _, t := range types {
		if !IsValidIdentifier(t) {
			return "", errors.Validationf("invalid relationship type %q", t)
		}
	}
	return strings.Join(types, "|"), nil
}

// sortedKeys gives deterministic property order so generated queries are
// stable across runs.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
