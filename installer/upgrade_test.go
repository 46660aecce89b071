package installer

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	pkgcore "github.com/freebsd/pkg-sub001"
	"github.com/freebsd/pkg-sub001/manifest"
)

// buildTestArchive assembles a minimal uncompressed tar package archive
// (§6's "Package archive format"): a +MANIFEST entry followed by a
// directory entry per dir and a regular-file entry per file.
func buildTestArchive(t *testing.T, pkg *pkgcore.Package, dirs []string, files map[string]string) []byte {
	t.Helper()
	data, err := manifest.EmitFull(pkg, manifest.FlagNone)
	if err != nil {
		t.Fatalf("EmitFull: %v", err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	writeEntry := func(name string, typ byte, content []byte) {
		hdr := &tar.Header{Name: name, Typeflag: typ, Size: int64(len(content)), Mode: 0644}
		if typ == tar.TypeDir {
			hdr.Mode = 0755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", name, err)
		}
		if len(content) > 0 {
			if _, err := tw.Write(content); err != nil {
				t.Fatalf("Write(%s): %v", name, err)
			}
		}
	}

	writeEntry("+MANIFEST", tar.TypeReg, data)
	for _, d := range dirs {
		writeEntry(d, tar.TypeDir, nil)
	}
	for path, content := range files {
		writeEntry(path, tar.TypeReg, []byte(content))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	return buf.Bytes()
}

func newTestPackage(name, version string, shlibsProvided ...string) *pkgcore.Package {
	p := pkgcore.NewPackage()
	p.Name = name
	p.Origin = "devel/" + name
	p.Version = version
	p.Maintainer = "x@example.com"
	p.WWW = "https://example.com"
	p.Prefix = "/usr/local"
	for _, s := range shlibsProvided {
		p.ShlibsProv.Add(s)
	}
	return p
}

// TestUpgradeCleanupRemovesDroppedFile covers §4.9's non-split upgrade
// cleanup pass: installing v2 over v1 when v2 drops a file must remove that
// file from disk.
func TestUpgradeCleanupRemovesDroppedFile(t *testing.T) {
	root := t.TempDir()
	c := &Ctx{RootDir: root}
	ctx := context.Background()

	pkg1 := newTestPackage("foo", "1.0", "libfoo.so.1")
	if err := pkg1.AddFile(pkgcore.File{Path: "/usr/bin/foo"}); err != nil {
		t.Fatal(err)
	}
	if err := pkg1.AddFile(pkgcore.File{Path: "/usr/lib/libfoo.so.1"}); err != nil {
		t.Fatal(err)
	}
	archive1 := buildTestArchive(t, pkg1, []string{"usr/bin", "usr/lib"}, map[string]string{
		"usr/bin/foo":         "v1 binary\n",
		"usr/lib/libfoo.so.1": "v1 library\n",
	})

	res1, err := c.Install(ctx, ArchiveSource{Reader: bytes.NewReader(archive1)}, nil)
	if err != nil {
		t.Fatalf("install v1: %v", err)
	}
	if res1.Code != Ok {
		t.Fatalf("install v1: code = %v, want Ok", res1.Code)
	}
	if _, err := os.Stat(filepath.Join(root, "usr/lib/libfoo.so.1")); err != nil {
		t.Fatalf("v1 library missing after install: %v", err)
	}

	pkg2 := newTestPackage("foo", "2.0")
	if err := pkg2.AddFile(pkgcore.File{Path: "/usr/bin/foo"}); err != nil {
		t.Fatal(err)
	}
	archive2 := buildTestArchive(t, pkg2, []string{"usr/bin"}, map[string]string{
		"usr/bin/foo": "v2 binary\n",
	})

	res2, err := c.Install(ctx, ArchiveSource{Reader: bytes.NewReader(archive2)}, res1.Pkg)
	if err != nil {
		t.Fatalf("install v2: %v", err)
	}
	if res2.Code != Ok {
		t.Fatalf("install v2: code = %v, want Ok", res2.Code)
	}

	if _, err := os.Stat(filepath.Join(root, "usr/lib/libfoo.so.1")); !os.IsNotExist(err) {
		t.Fatalf("dropped library still present after upgrade, err = %v", err)
	}
	content, err := os.ReadFile(filepath.Join(root, "usr/bin/foo"))
	if err != nil {
		t.Fatalf("reading upgraded file: %v", err)
	}
	if string(content) != "v2 binary\n" {
		t.Errorf("usr/bin/foo = %q, want v2 content", content)
	}
}

// TestUpgradeCleanupBackupsProvidedLibrary covers the BackupLibraryPath
// branch of §4.9's upgrade cleanup: a dropped file whose basename matches
// the old package's shlibs_provided must be copied there before removal.
func TestUpgradeCleanupBackupsProvidedLibrary(t *testing.T) {
	root := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backup")
	c := &Ctx{RootDir: root, BackupLibraryPath: backupDir}
	ctx := context.Background()

	pkg1 := newTestPackage("foo", "1.0", "libfoo.so.1")
	if err := pkg1.AddFile(pkgcore.File{Path: "/usr/lib/libfoo.so.1"}); err != nil {
		t.Fatal(err)
	}
	archive1 := buildTestArchive(t, pkg1, []string{"usr/lib"}, map[string]string{
		"usr/lib/libfoo.so.1": "v1 library\n",
	})
	res1, err := c.Install(ctx, ArchiveSource{Reader: bytes.NewReader(archive1)}, nil)
	if err != nil {
		t.Fatalf("install v1: %v", err)
	}

	pkg2 := newTestPackage("foo", "2.0")
	archive2 := buildTestArchive(t, pkg2, nil, nil)
	if _, err := c.Install(ctx, ArchiveSource{Reader: bytes.NewReader(archive2)}, res1.Pkg); err != nil {
		t.Fatalf("install v2: %v", err)
	}

	backed, err := os.ReadFile(filepath.Join(backupDir, "libfoo.so.1"))
	if err != nil {
		t.Fatalf("backed-up library missing: %v", err)
	}
	if string(backed) != "v1 library\n" {
		t.Errorf("backed-up library content = %q, want v1 content", backed)
	}
	if _, err := os.Stat(filepath.Join(root, "usr/lib/libfoo.so.1")); !os.IsNotExist(err) {
		t.Fatalf("library still present at original path after upgrade, err = %v", err)
	}
}
