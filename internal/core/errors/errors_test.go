package errors

import (
	"errors"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "snippet not found")
		if err.Error() != "[NOT_FOUND] snippet not found" {
			t.Errorf("expected [NOT_FOUND] snippet not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		expected := "[INTERNAL_ERROR] internal failure: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidation, "invalid input")
		if !IsCode(err, CodeValidation) {
			t.Error("expected IsCode to return true for CodeValidation")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeParseError, "source does not parse")
		if !IsCode(err, CodeParseError) {
			t.Error("expected IsCode to return true for wrapped CodeParseError")
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := New(CodeConfigError, "invalid rule selection")
		err = AddContext(err, CtxRule, "NOT_A_RULE")

		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatalf("expected DomainError, got %T", err)
		}
		if de.Context[CtxRule] != "NOT_A_RULE" {
			t.Errorf("expected rule context, got %v", de.Context)
		}
	})

	t.Run("AddContextPlainError", func(t *testing.T) {
		err := AddContext(errors.New("plain"), CtxStage, "normalize")
		if !IsCode(err, CodeInternal) {
			t.Error("plain errors wrap as CodeInternal")
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		original := errors.New("root cause")
		err := Wrap(original, CodeInternal, "wrapped")
		if !errors.Is(err, original) {
			t.Error("expected errors.Is to find the original error")
		}
	})
}
