package graph

import (
	"testing"

	"github.com/codegraphhq/codegraph/internal/models"
)

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple label", "File", true},
		{"underscore prefix", "_internal", true},
		{"alphanumeric", "Node123", true},
		{"single letter", "n", true},
		{"empty", "", false},
		{"leading digit", "1File", false},
		{"dash", "my-label", false},
		{"space", "my label", false},
		{"cypher injection", "File) DETACH DELETE (n", false},
		{"backtick", "`File`", false},
		{"unicode", "Fichieré", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidIdentifier(tt.input); got != tt.want {
				t.Errorf("IsValidIdentifier(%q) = %v; want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateLabels(t *testing.T) {
	if err := ValidateLabels([]string{"File", "Entity"}); err != nil {
		t.Errorf("ValidateLabels(valid) = %v; want nil", err)
	}
	if err := ValidateLabels(nil); err == nil {
		t.Error("ValidateLabels(nil) = nil; want error for empty label set")
	}
	if err := ValidateLabels([]string{"File", "bad-label"}); err == nil {
		t.Error("ValidateLabels with invalid label = nil; want error")
	}
}

func TestValidateRelationshipType(t *testing.T) {
	for _, rt := range models.AllRelationshipTypes {
		if err := ValidateRelationshipType(rt); err != nil {
			t.Errorf("ValidateRelationshipType(%s) = %v; want nil", rt, err)
		}
	}
	if err := ValidateRelationshipType("CALLS]->(x) DELETE x//"); err == nil {
		t.Error("ValidateRelationshipType with injection = nil; want error")
	}
}

func TestValidatePropertyKeys(t *testing.T) {
	valid := map[string]any{"path": "a.ts", "startLine": 1}
	if err := ValidatePropertyKeys(valid); err != nil {
		t.Errorf("ValidatePropertyKeys(valid) = %v; want nil", err)
	}
	invalid := map[string]any{"path": "a.ts", "bad key": 1}
	if err := ValidatePropertyKeys(invalid); err == nil {
		t.Error("ValidatePropertyKeys with spaced key = nil; want error")
	}
}
