package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestGraphErrorFormatting(t *testing.T) {
	err := NewGraphError("bad graph", ErrDependencyCycle).
		WithPlanName("release").
		WithNodeID("build")

	want := "graph error [plan=release, node=build]: bad graph: dependency cycle detected"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrDependencyCycle) {
		t.Error("expected Is(err, ErrDependencyCycle)")
	}
	if IsRetryable(err) {
		t.Error("graph errors must not be retryable")
	}
}

func TestPhaseErrorContext(t *testing.T) {
	cause := New("exit status 2")
	err := NewPhaseError("work command failed", cause).
		WithNodeID("lint").
		WithPhase("work").
		WithAttempt(1).
		WithExitCode(2)

	got := err.Error()
	for _, substr := range []string{"node=lint", "phase=work", "attempt=1", "exit=2", "exit status 2"} {
		if !strings.Contains(got, substr) {
			t.Errorf("Error() = %q, missing %q", got, substr)
		}
	}
	if !IsRetryable(err) {
		t.Error("phase errors should default to retryable")
	}

	var pe *PhaseError
	if !As(err, &pe) {
		t.Fatal("As(*PhaseError) failed")
	}
	if pe.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", pe.ExitCode)
	}
}

func TestPhaseErrorTimeout(t *testing.T) {
	err := NewPhaseError("deadline exceeded", nil).WithTimeout()
	if !IsTimeout(err) {
		t.Error("expected IsTimeout")
	}
	if !Is(err, ErrPhaseTimeout) {
		t.Error("timeout phase errors should match ErrPhaseTimeout")
	}
	if IsTimeout(New("other")) {
		t.Error("plain errors must not classify as timeouts")
	}
}

func TestMergeConflictError(t *testing.T) {
	err := NewMergeConflictError("cannot integrate plan result", []string{"a.go", "b.go"}).
		WithSource("abc123").
		WithTarget("main")

	if !Is(err, ErrMergeConflict) {
		t.Error("expected Is(err, ErrMergeConflict)")
	}
	if IsRetryable(err) {
		t.Error("merge conflicts must not be retryable")
	}
	got := err.Error()
	for _, substr := range []string{"source=abc123", "target=main", "a.go, b.go"} {
		if !strings.Contains(got, substr) {
			t.Errorf("Error() = %q, missing %q", got, substr)
		}
	}
}

func TestValidationErrorNotRetryable(t *testing.T) {
	err := NewValidationError("no evidence produced", ErrEvidenceMissing).
		WithNodeID("docs").
		WithMethod("none")
	if IsRetryable(err) {
		t.Error("validation errors must not be retryable")
	}
	if !Is(err, ErrEvidenceMissing) {
		t.Error("expected Is(err, ErrEvidenceMissing)")
	}
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		resource string
		sentinel error
	}{
		{"plan", ErrPlanNotFound},
		{"node", ErrNodeNotFound},
		{"group", ErrGroupNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			err := NewNotFoundError(tt.resource, "xyz")
			if !Is(err, tt.sentinel) {
				t.Errorf("expected Is(err, %v)", tt.sentinel)
			}
			if !IsNotFound(err) {
				t.Error("expected IsNotFound")
			}
			want := fmt.Sprintf("%s %q not found", tt.resource, "xyz")
			if err.Error() != want {
				t.Errorf("Error() = %q, want %q", err.Error(), want)
			}
		})
	}
}

func TestGitErrorOutputPreserved(t *testing.T) {
	err := NewGitError("worktree add failed", New("exit status 128")).
		WithRepository("/repo").
		WithGitOutput("fatal: invalid reference: nope\n")

	got := err.Error()
	if !strings.Contains(got, "fatal: invalid reference") {
		t.Errorf("git output not preserved in %q", got)
	}
	if !IsRetryable(err) {
		t.Error("git errors should default to retryable")
	}
}

func TestStoreErrorWrapsCorruption(t *testing.T) {
	err := NewStoreError("failed to decode plan document", ErrDocumentCorrupt).
		WithPath("/state/plan-1.json")
	if !Is(err, ErrDocumentCorrupt) {
		t.Error("expected Is(err, ErrDocumentCorrupt)")
	}
	if !strings.Contains(err.Error(), "path=/state/plan-1.json") {
		t.Errorf("path missing from %q", err.Error())
	}
}
