package pkgerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		Transient:    "transient",
		Trust:        "trust",
		Conflict:     "conflict",
		Parse:        "parse",
		Filesystem:   "filesystem",
		Cancellation: "cancellation",
		Database:     "database",
		Kind(99):     "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestNewNilErr(t *testing.T) {
	if err := New(Trust, "verify", nil); err != nil {
		t.Errorf("New with nil err = %v, want nil", err)
	}
}

func TestNewWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(Transient, "fetch", cause)
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through to the wrapped cause")
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatal("errors.As should find *Error")
	}
	if pe.Kind != Transient || pe.Op != "fetch" {
		t.Errorf("Kind = %v, Op = %q, want Transient, \"fetch\"", pe.Kind, pe.Op)
	}
}

func TestErrorMessageIncludesKindAndOp(t *testing.T) {
	err := New(Filesystem, "extract", errors.New("read-only file system"))
	got := err.Error()
	want := "filesystem: extract: read-only file system"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorMessageNoOp(t *testing.T) {
	err := New(Database, "", errors.New("constraint failed"))
	got := err.Error()
	want := "database: constraint failed"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIs(t *testing.T) {
	err := New(Conflict, "register", errors.New("already installed"))
	if !Is(err, Conflict) {
		t.Error("Is(err, Conflict) = false, want true")
	}
	if Is(err, Trust) {
		t.Error("Is(err, Trust) = true, want false")
	}
	if Is(errors.New("plain"), Conflict) {
		t.Error("Is on a non-pkgerr error should be false")
	}
}

func TestKindOf(t *testing.T) {
	err := New(Cancellation, "", errors.New("aborted by callback"))
	k, ok := KindOf(err)
	if !ok || k != Cancellation {
		t.Errorf("KindOf = %v, %v, want Cancellation, true", k, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf on a non-pkgerr error should report ok=false")
	}
}

func TestIsThroughWrapping(t *testing.T) {
	inner := New(Parse, "manifest", errors.New("unexpected token"))
	outer := fmt.Errorf("load package: %w", inner)
	if !Is(outer, Parse) {
		t.Error("Is should see through an additional fmt.Errorf wrap")
	}
}
