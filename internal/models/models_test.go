package models_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/pcastell/mend/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestPredicateEvaluate(t *testing.T) {
	p := &models.SuccessPredicate{ExpectedStdout: ptr("42\n"), ExitStatus: ptr(0)}

	if ok, reason := p.Evaluate("42\n", 0); !ok || reason != "" {
		t.Errorf("expected pass, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := p.Evaluate("43\n", 0); ok || !strings.Contains(reason, "stdout") {
		t.Errorf("expected stdout mismatch, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := p.Evaluate("42\n", 1); ok || !strings.Contains(reason, "exit status") {
		t.Errorf("expected exit status mismatch, got ok=%v reason=%q", ok, reason)
	}
}

func TestPredicatePartialConditions(t *testing.T) {
	exitOnly := &models.SuccessPredicate{ExitStatus: ptr(0)}
	if ok, _ := exitOnly.Evaluate("anything at all", 0); !ok {
		t.Error("exit-only predicate should ignore stdout")
	}

	stdoutOnly := &models.SuccessPredicate{ExpectedStdout: ptr("ok\n")}
	if ok, _ := stdoutOnly.Evaluate("ok\n", 7); !ok {
		t.Error("stdout-only predicate should ignore exit status")
	}
}

func TestCategoryIsInfra(t *testing.T) {
	infra := []models.Category{models.GenerationFailure, models.InfraFailure}
	for _, c := range infra {
		if !c.IsInfra() {
			t.Errorf("%s should count as infrastructure", c)
		}
	}
	code := []models.Category{models.Success, models.AssertionFailure, models.CodeError, models.Timeout}
	for _, c := range code {
		if c.IsInfra() {
			t.Errorf("%s should not count as infrastructure", c)
		}
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if models.StatusRunning.Terminal() {
		t.Error("running is not terminal")
	}
	for _, s := range []models.RunStatus{models.StatusSucceeded, models.StatusFailed, models.StatusAborted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestGenerationErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &models.GenerationError{Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("GenerationError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error text should include the cause, got %q", err.Error())
	}
}

func TestConfigurationErrorNamesField(t *testing.T) {
	err := &models.ConfigurationError{Field: "max_iterations", Reason: "must be positive"}
	if !strings.Contains(err.Error(), "max_iterations") {
		t.Errorf("error should name the field, got %q", err.Error())
	}
}
