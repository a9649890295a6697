package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Connection(cause, "neo4j query failed")

	if !strings.Contains(err.Error(), "neo4j query failed") {
		t.Errorf("message missing: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("cause missing: %s", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause through Unwrap")
	}
}

func TestRetryableFlag(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"validation never retries", Validation("bad label"), false},
		{"connection retries", Connection(fmt.Errorf("reset"), "transport"), true},
		{"timeout retries", Timeout("query", 5000), true},
		{"operation honors flag true", Operation(fmt.Errorf("x"), "op", true), true},
		{"operation honors flag false", Operation(fmt.Errorf("x"), "op", false), false},
		{"token validation never retries", TokenValidation("bad format"), false},
		{"foreign error never retries", fmt.Errorf("plain"), false},
		{"nil never retries", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestKindMatching(t *testing.T) {
	timeout := Timeout("slow query", 1200)
	probe := &Error{Kind: KindTimeout}

	if !stderrors.Is(timeout, probe) {
		t.Error("expected kind-based Is match")
	}
	if stderrors.Is(timeout, &Error{Kind: KindValidation}) {
		t.Error("kinds should not cross-match")
	}
	if timeout.ElapsedMs != 1200 {
		t.Errorf("ElapsedMs = %d, want 1200", timeout.ElapsedMs)
	}
}

func TestTokenStorageCarriesOp(t *testing.T) {
	err := TokenStorage(fmt.Errorf("disk full"), "save", true)

	if err.Op != "save" {
		t.Errorf("Op = %q, want save", err.Op)
	}
	if !err.Recoverable {
		t.Error("expected recoverable")
	}
	if KindOf(err) != KindTokenStorage {
		t.Errorf("KindOf = %v, want KindTokenStorage", KindOf(err))
	}
}

func TestFileProcessingCarriesPath(t *testing.T) {
	err := FileProcessing(fmt.Errorf("no such file"), "src/a.ts")

	if err.Path != "src/a.ts" {
		t.Errorf("Path = %q", err.Path)
	}
	if !strings.Contains(err.Error(), "src/a.ts") {
		t.Errorf("path missing from message: %s", err.Error())
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(fmt.Errorf("plain")) != KindOperation {
		t.Error("foreign errors should map to KindOperation")
	}
}

func TestDetailedStringIncludesContext(t *testing.T) {
	err := Validation("depth out of range").WithContext("depth", 9)
	s := err.DetailedString()

	if !strings.Contains(s, "VALIDATION") {
		t.Errorf("missing kind tag: %s", s)
	}
	if !strings.Contains(s, "depth") {
		t.Errorf("missing context: %s", s)
	}
}
