package pkgerr

import (
	"errors"
	"testing"
)

func TestExitCodeString(t *testing.T) {
	cases := map[ExitCode]string{
		Ok:          "ok",
		Fatal:       "fatal",
		EnoCompat32: "eno_compat32",
		NoNetwork:   "no_network",
		ExitCode(999): "unknown",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Errorf("ExitCode(%d).String() = %q, want %q", c, got, want)
		}
	}
}

func TestExitCodeForKind(t *testing.T) {
	cases := map[Kind]ExitCode{
		Transient:    NoNetwork,
		Trust:        Fatal,
		Conflict:     Locked,
		Parse:        Fatal,
		Filesystem:   EnoAccess,
		Cancellation: Cancel,
		Database:     Fatal,
	}
	for k, want := range cases {
		if got := ExitCodeForKind(k); got != want {
			t.Errorf("ExitCodeForKind(%v) = %v, want %v", k, got, want)
		}
	}
}

func TestExitCodeFor(t *testing.T) {
	if got := ExitCodeFor(nil); got != Ok {
		t.Errorf("ExitCodeFor(nil) = %v, want Ok", got)
	}
	if got := ExitCodeFor(errors.New("untagged")); got != Fatal {
		t.Errorf("ExitCodeFor(untagged) = %v, want Fatal", got)
	}
	wrapped := New(Cancellation, "install", errors.New("progress callback aborted"))
	if got := ExitCodeFor(wrapped); got != Cancel {
		t.Errorf("ExitCodeFor(cancellation) = %v, want Cancel", got)
	}
}
