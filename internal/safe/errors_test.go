package safe

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFromPassesThroughSafeErrors(t *testing.T) {
	orig := Forbidden("nope")
	wrapped := fmt.Errorf("outer: %w", orig)

	got := From(wrapped)
	if got != orig {
		t.Fatalf("expected the original safe error, got %v", got)
	}
}

func TestFromMasksUnknownErrors(t *testing.T) {
	got := From(errors.New("dial tcp: connection refused"))
	if got.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", got.Code)
	}
}

func TestFromCapsDetailLength(t *testing.T) {
	long := strings.Repeat("x", 5000)
	got := From(errors.New(long))
	if len(got.Message) > maxDetail {
		t.Fatalf("detail not capped: %d bytes", len(got.Message))
	}
}

func TestTrimHintSingleLineAndBounded(t *testing.T) {
	hint := TrimHint("  first line\nsecond line that should be dropped")
	if hint != "first line" {
		t.Fatalf("expected first line only, got %q", hint)
	}

	long := TrimHint(strings.Repeat("y", 1000))
	if len(long) > maxDetail {
		t.Fatalf("hint not capped: %d bytes", len(long))
	}
}

func TestErrorStringIncludesHint(t *testing.T) {
	err := Upstream("GET /x returned HTTP 422", "Validation Failed")
	if !strings.Contains(err.Error(), "Validation Failed") {
		t.Fatalf("hint missing from error string: %s", err.Error())
	}
}
