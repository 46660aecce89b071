package installer

import (
	"strings"
	"testing"

	pkgcore "github.com/freebsd/pkg-sub001"
)

func TestConfigMergeNotLocal(t *testing.T) {
	_, status, err := ConfigMerge(nil, nil, []byte("remote\n"), "")
	if err != nil {
		t.Fatal(err)
	}
	if status != pkgcore.MergeNotLocal {
		t.Errorf("status = %v, want MergeNotLocal", status)
	}
}

func TestConfigMergeUntouchedLocalTakesRemote(t *testing.T) {
	base := []byte("a\nb\nc\n")
	merged, status, err := ConfigMerge(base, base, []byte("a\nb\nd\n"), "")
	if err != nil {
		t.Fatal(err)
	}
	if status != pkgcore.MergeNotNeeded {
		t.Errorf("status = %v, want MergeNotNeeded", status)
	}
	if string(merged) != "a\nb\nd\n" {
		t.Errorf("merged = %q", merged)
	}
}

func TestConfigMergeLocalOnlyChangeWins(t *testing.T) {
	base := []byte("a\nb\nc\n")
	local := []byte("a\nLOCAL\nc\n")
	remote := []byte("a\nb\nc\n")
	merged, status, err := ConfigMerge(base, local, remote, "")
	if err != nil {
		t.Fatal(err)
	}
	if status != pkgcore.MergeSuccess {
		t.Errorf("status = %v, want MergeSuccess", status)
	}
	if !strings.Contains(string(merged), "LOCAL") {
		t.Errorf("merged = %q, want the local edit preserved", merged)
	}
}

func TestConfigMergeIdenticalEditAcceptedOnce(t *testing.T) {
	base := []byte("a\nb\nc\n")
	changed := []byte("a\nSAME\nc\n")
	merged, status, err := ConfigMerge(base, changed, changed, "")
	if err != nil {
		t.Fatal(err)
	}
	if status != pkgcore.MergeSuccess {
		t.Errorf("status = %v, want MergeSuccess", status)
	}
	if strings.Count(string(merged), "SAME") != 1 {
		t.Errorf("merged = %q, want exactly one SAME line", merged)
	}
}

func TestConfigMergeConflictingEditsFail(t *testing.T) {
	base := []byte("a\nb\nc\n")
	local := []byte("a\nLOCAL\nc\n")
	remote := []byte("a\nREMOTE\nc\n")
	_, status, err := ConfigMerge(base, local, remote, "")
	if err != nil {
		t.Fatal(err)
	}
	if status != pkgcore.MergeFailed {
		t.Errorf("status = %v, want MergeFailed", status)
	}
}

func TestMerge3AppendOnBothSidesConflicts(t *testing.T) {
	base := []string{"one", "two"}
	a := []string{"one", "two", "three-local"}
	b := []string{"one", "two", "three-remote"}
	res := merge3(base, a, b)
	if !res.Conflict {
		t.Fatal("expected a conflict when both sides append different trailing lines")
	}
}
