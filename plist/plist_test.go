package plist

import (
	"strings"
	"testing"

	pkgcore "github.com/freebsd/pkg-sub001"
)

func newTestPkg() *pkgcore.Package {
	p := pkgcore.NewPackage()
	p.Name, p.Origin, p.Version = "foo", "devel/foo", "1.0"
	p.Maintainer, p.WWW, p.Prefix = "x@example.com", "https://example.com", "/usr/local"
	return p
}

func TestParseBasic(t *testing.T) {
	const input = `@cwd /usr/local
@owner root
@group wheel
@mode 0755
bin/foo
@mode 0644
etc/foo.conf
@config etc/foo.conf
@dir share/foo
`
	pkg := newTestPkg()
	p := NewParser(nil, nil)
	if err := p.Parse(strings.NewReader(input), pkg); err != nil {
		t.Fatal(err)
	}
	if _, ok := pkg.File("/usr/local/bin/foo"); !ok {
		t.Error("expected /usr/local/bin/foo to be recorded")
	}
	f, ok := pkg.File("/usr/local/etc/foo.conf")
	if !ok {
		t.Fatal("expected /usr/local/etc/foo.conf to be recorded")
	}
	if f.Mode != 0644 {
		t.Errorf("mode = %o, want 0644", f.Mode)
	}
	if _, ok := pkg.Dir("/usr/local/share/foo"); !ok {
		t.Error("expected /usr/local/share/foo dir to be recorded")
	}
}

func TestParseUnknownKeywordWithoutResolver(t *testing.T) {
	pkg := newTestPkg()
	p := NewParser(nil, nil)
	err := p.Parse(strings.NewReader("@systemd foo.service\n"), pkg)
	if err == nil {
		t.Fatal("expected an error for an unresolvable keyword")
	}
}

func TestParseKeywordExpansion(t *testing.T) {
	resolve := func(name string) (*KeywordDef, error) {
		if name != "systemd" {
			return nil, ErrUnknownKeyword
		}
		return &KeywordDef{Actions: []string{"file(1)"}}, nil
	}
	pkg := newTestPkg()
	p := NewParser(resolve, nil)
	if err := p.Parse(strings.NewReader("@systemd lib/systemd/system/foo.service\n"), pkg); err != nil {
		t.Fatal(err)
	}
	if _, ok := pkg.File("/usr/local/lib/systemd/system/foo.service"); !ok {
		t.Error("expected the keyword expansion to register a file")
	}
}

func TestParseKeywordDefSchema(t *testing.T) {
	if _, err := ParseKeywordDef([]byte(`{"actions": []}`)); err == nil {
		t.Fatal("expected empty actions to fail schema validation")
	}
	def, err := ParseKeywordDef([]byte(`{"actions": ["dir"], "attributes": {"owner": "root", "mode": "0755"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if def.Attributes.Owner != "root" || def.Attributes.Mode != 0755 {
		t.Errorf("parsed attributes = %+v", def.Attributes)
	}
}
