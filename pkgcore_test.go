package pkgcore

import "testing"

func TestABIString(t *testing.T) {
	cases := []struct {
		abi  ABI
		want string
	}{
		{ABI{OS: OSFreeBSD, Major: 13, Arch: ArchAmd64}, "FreeBSD:13:amd64"},
		{ABI{OS: OSLinux, Major: 3, Minor: 2, Arch: ArchAarch64}, "Linux:3.2:aarch64"},
		{ABI{OS: OSDarwin, Major: 23, Arch: ArchAmd64}, "Darwin:23:x86:64"},
		{ABI{OS: OSDragonFly, Major: 5, Minor: 8, Arch: ArchAmd64}, "DragonFly:5.8:x86:64"},
	}
	for _, c := range cases {
		if got := c.abi.String(); got != c.want {
			t.Errorf("%+v.String() = %q, want %q", c.abi, got, c.want)
		}
	}
}

func TestParseABIRoundTrip(t *testing.T) {
	cases := []ABI{
		{OS: OSFreeBSD, Major: 13, Arch: ArchAmd64},
		{OS: OSLinux, Major: 3, Minor: 2, Arch: ArchAarch64},
		{OS: OSNetBSD, Major: 9, Arch: ArchI386},
	}
	for _, want := range cases {
		s := want.String()
		got, err := ParseABI(s)
		if err != nil {
			t.Fatalf("ParseABI(%q): %v", s, err)
		}
		if got != want {
			t.Errorf("ParseABI(String(%+v)) = %+v, want %+v", want, got, want)
		}
	}
}

func TestParseABIInvalid(t *testing.T) {
	for _, s := range []string{"", "garbage", "FreeBSD:amd64", "Plan9:1:amd64", "FreeBSD:1:z80"} {
		if _, err := ParseABI(s); err == nil {
			t.Errorf("ParseABI(%q) succeeded, want error", s)
		}
	}
}

func TestPackageFileUniqueness(t *testing.T) {
	p := NewPackage()
	if err := p.AddFile(File{Path: "/usr/bin/foo"}); err != nil {
		t.Fatal(err)
	}
	if err := p.AddFile(File{Path: "/usr/bin/foo"}); err == nil {
		t.Fatal("expected duplicate file path to be rejected")
	}
	if err := p.AddFile(File{Path: "relative"}); err == nil {
		t.Fatal("expected non-absolute file path to be rejected")
	}
}

func TestPackageShlibInvariant(t *testing.T) {
	p := NewPackage()
	p.Name, p.Origin, p.Version = "foo", "devel/foo", "1.0"
	p.Maintainer, p.WWW, p.Prefix = "x@example.com", "https://example.com", "/usr/local"
	p.ShlibsReq.Add("libfoo.so.1")
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected Validate error: %v", err)
	}
	p.ShlibsProv.Add("libfoo.so.1")
	if err := p.Validate(); err == nil {
		t.Fatal("expected Validate to reject a shlib in both required and provided")
	}
}

func TestHasArchSuffix(t *testing.T) {
	a, ok := HasArchSuffix("emacs-amd64")
	if !ok || a != ArchAmd64 {
		t.Fatalf("HasArchSuffix(emacs-amd64) = %v, %v, want ArchAmd64, true", a, ok)
	}
	if _, ok := HasArchSuffix("emacs"); ok {
		t.Fatal("HasArchSuffix(emacs) = true, want false")
	}
}
