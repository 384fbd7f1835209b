package pipeline

import (
	"errors"
	"testing"
)

func TestAsErrorRecognizesWrappedKind(t *testing.T) {
	err := New(DecodeError, "malformed record %d", 7)
	perr, ok := AsError(err)
	if !ok {
		t.Fatal("expected AsError to recognize a *Error")
	}
	if perr.Kind != DecodeError {
		t.Fatalf("expected DecodeError, got %s", perr.Kind)
	}
	if perr.Error() != "DecodeError: malformed record 7" {
		t.Fatalf("unexpected error string %q", perr.Error())
	}
}

func TestAsErrorRejectsPlainError(t *testing.T) {
	if _, ok := AsError(errors.New("boom")); ok {
		t.Fatal("expected AsError to reject a plain error")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(DecodeError, nil) != nil {
		t.Fatal("expected Wrap(kind, nil) to return nil")
	}
}

func TestUnwrapReturnsUnderlyingError(t *testing.T) {
	underlying := errors.New("network reset")
	wrapped := Wrap(ProduceError, underlying)
	if !errors.Is(wrapped, underlying) {
		t.Fatal("expected errors.Is to find the wrapped underlying error")
	}
}
