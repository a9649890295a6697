package graph

import (
	"regexp"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
)

// identifierPattern is the only shape allowed for labels, relationship
// types and property keys. These positions cannot be parameterised in the
// query language, so anything else is rejected before interpolation.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidIdentifier reports whether s is safe to interpolate as a label,
// relationship type or property key.
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidateLabels rejects an empty label set or any unsafe label.
func ValidateLabels(labels []string) error {
	if len(labels) == 0 {
		return errors.Validation("node requires at least one label")
	}
	for _, label := range labels {
		if !IsValidIdentifier(label) {
			return errors.Validationf("invalid node label %q: must match [A-Za-z_][A-Za-z0-9_]*", label)
		}
	}
	return nil
}

// ValidateRelationshipType rejects unsafe relationship type strings.
func ValidateRelationshipType(t models.RelationshipType) error {
	if !IsValidIdentifier(string(t)) {
		return errors.Validationf("invalid relationship type %q: must match [A-Za-z_][A-Za-z0-9_]*", t)
	}
	return nil
}

// ValidatePropertyKeys rejects unsafe property keys.
func ValidatePropertyKeys(props map[string]any) error {
	for key := range props {
		if !IsValidIdentifier(key) {
			return errors.Validationf("invalid property key %q: must match [A-Za-z_][A-Za-z0-9_]*", key)
		}
	}
	return nil
}

// validateRelationshipTypes checks a whole list, used by traversals.
func validateRelationshipTypes(types []models.RelationshipType) error {
	for _, t := range types {
		if err := ValidateRelationshipType(t); err != nil {
			return err
		}
	}
	return nil
}
