package validation_test

import (
	"errors"
	"strings"
	"testing"

	"animeshelf/internal/validation"
)

type sample struct {
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age" validate:"min=1"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := validation.Struct(sample{Email: "nope"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !errors.Is(err, validation.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "email must be a valid email address") {
		t.Fatalf("unexpected message %q", msg)
	}
	if !strings.Contains(msg, "age must be at least 1") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestStructAcceptsValid(t *testing.T) {
	if err := validation.Struct(sample{Email: "a@b.co", Age: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
