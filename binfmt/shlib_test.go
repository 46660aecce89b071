package binfmt

import (
	"reflect"
	"testing"

	pkgcore "github.com/freebsd/pkg-sub001"
)

func TestNameWithFlags(t *testing.T) {
	cases := []struct {
		name  string
		flags Flags
		want  string
	}{
		{"libfoo.so.1.0.0", FlagNone, "libfoo.so.1.0.0"},
		{"libfoo.so.1.0.0", Flag32, "libfoo.so.1.0.0:32"},
		{"libfoo.so.1.0.0", FlagLinux, "libfoo.so.1.0.0:Linux"},
		{"libfoo.so.1.0.0", FlagLinux | Flag32, "libfoo.so.1.0.0:Linux:32"},
	}
	for _, c := range cases {
		if got := NameWithFlags(c.name, c.flags); got != c.want {
			t.Errorf("NameWithFlags(%q, %v) = %q, want %q", c.name, c.flags, got, c.want)
		}
	}
}

func TestFlagsFromABI(t *testing.T) {
	freebsdAmd64 := pkgcore.ABI{OS: pkgcore.OSFreeBSD, Arch: pkgcore.ArchAmd64}
	linuxI386 := pkgcore.ABI{OS: pkgcore.OSLinux, Arch: pkgcore.ArchI386}
	freebsdI386 := pkgcore.ABI{OS: pkgcore.OSFreeBSD, Arch: pkgcore.ArchI386}

	if got := FlagsFromABI(freebsdAmd64, freebsdI386, false); got != Flag32 {
		t.Errorf("amd64 host, i386 shlib = %v, want Flag32", got)
	}
	if got := FlagsFromABI(freebsdAmd64, linuxI386, true); got != Flag32|FlagLinux {
		t.Errorf("amd64 host, linux i386 shlib (tracked) = %v, want Flag32|FlagLinux", got)
	}
	if got := FlagsFromABI(freebsdAmd64, linuxI386, false); got != Flag32 {
		t.Errorf("amd64 host, linux i386 shlib (untracked) = %v, want Flag32", got)
	}
	nonFreeBSD := pkgcore.ABI{OS: pkgcore.OSLinux, Arch: pkgcore.ArchAmd64}
	if got := FlagsFromABI(nonFreeBSD, freebsdI386, true); got != FlagNone {
		t.Errorf("non-FreeBSD host never gets compat flags, got %v", got)
	}
}

func TestCleanupRequired(t *testing.T) {
	required := []string{"libfoo.so.1", "libbar.so.2", "libbaz.so.3", "libqux.so.4"}
	provided := []string{"libfoo.so.1"}
	internal := []string{"libbar.so.2"}
	files := []string{"/usr/local/lib/libbaz.so.3"}
	ignore := func(lib string) bool { return lib == "libqux.so.4" }

	got := CleanupRequired(required, provided, internal, files, ignore)
	want := []string{}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CleanupRequired = %v, want %v (all four filtered)", got, want)
	}
}

func TestCleanupRequiredKeepsUnmatched(t *testing.T) {
	got := CleanupRequired([]string{"libkeep.so.1"}, nil, nil, nil, nil)
	if len(got) != 1 || got[0] != "libkeep.so.1" {
		t.Errorf("CleanupRequired = %v, want [libkeep.so.1]", got)
	}
}

func TestPathEndsInComponent(t *testing.T) {
	if !pathEndsInComponent("/usr/local/lib/libfoo.so.1", "libfoo.so.1") {
		t.Error("expected match")
	}
	if pathEndsInComponent("/usr/local/lib/xlibfoo.so.1", "libfoo.so.1") {
		t.Error("expected no match: not a path-component boundary")
	}
	if pathEndsInComponent("libfoo.so.1", "libfoo.so.1") {
		t.Error("expected no match: no leading slash")
	}
}
