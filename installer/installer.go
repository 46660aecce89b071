// Package installer implements the §4.9 install/upgrade state machine:
// Parse → CheckConflicts → RegisterPending → PreScripts → Extract →
// CleanupOld (upgrade only) → Commit → PostScripts. It leans on
// github.com/google/renameio for the hidden-temp-then-atomic-rename of
// regular file content exactly as the teacher's internal/install.go
// hookinstall closure does, and on golang.org/x/sys/unix's *at syscalls
// rooted at an opened install-root descriptor for every directory/symlink/
// hardlink/attribute operation, per spec.md §9's path-manipulation
// migration note.
package installer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"regexp"

	"github.com/google/renameio"
	"golang.org/x/mod/semver"

	pkgcore "github.com/freebsd/pkg-sub001"
	"github.com/freebsd/pkg-sub001/manifest"
	"github.com/freebsd/pkg-sub001/pkgerr"
	"github.com/freebsd/pkg-sub001/scripting"
)

// MatchMode mirrors pkgdb_query's match_mode argument (§6).
type MatchMode int

const (
	MatchAll MatchMode = iota
	MatchInternal
	MatchExact
	MatchGlob
	MatchRegex
)

// Iterator walks a DB query result set; Next returns io.EOF once exhausted.
type Iterator interface {
	Next() (*pkgcore.Package, error)
	Close() error
}

// DB is the narrow local-database interface of §6; the SQLite-backed
// implementation is an external collaborator this package never imports.
type DB interface {
	Query(pattern string, mode MatchMode) (Iterator, error)
	RegisterPkg(pkg *pkgcore.Package, force bool) error
	RegisterFinale(code pkgerr.ExitCode) error
	IsDirUsed(pkg *pkgcore.Package, dir string) (int, error)
	FileExists(path string) (bool, error)
	IsShlibProvided(name string) (bool, error)
	IsProvided(capability string) (bool, error)
	UpdateConfigFileContent(pkg *pkgcore.Package) error
}

// Ctx holds every installer tunable, mirroring the teacher's install.Ctx/
// batch.Ctx field-bag rather than reading configuration itself (§1: the
// config loader is an external collaborator).
type Ctx struct {
	RootDir   string
	DB        DB
	Hooks     *scripting.Runner
	MergeTool string

	BackupLibraryPath string
	FilesIgnoreGlob   []string
	FilesIgnoreRegex  []*regexp.Regexp

	// Developer escalates a Conflict from skip-and-warn to fatal, per §7.
	Developer bool
	Force     bool

	MetalogPath string
	// Progress is polled after each extracted archive entry; returning true
	// requests cancellation (§5).
	Progress func(done, total int64) bool

	Logger *log.Logger
}

func (c *Ctx) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// ArchiveSource is the input to Install: a raw archive stream plus its
// compression format ("tzst", "tgz", or "" for uncompressed), per §6's
// "Package archive format". Verification of the archive's signature
// happens one layer up, in repo.ExtractSigned/signer — Install only
// extracts and installs already-trusted content.
type ArchiveSource struct {
	Reader io.Reader
	Format string
}

// Result is what a single Install call reports back, bundling the §6
// ExitCode with the parsed package for the caller's own logging/DB-finale
// bookkeeping.
type Result struct {
	Code ExitCode
	Pkg  *pkgcore.Package
}

// ExitCode re-exports pkgerr's enum under the installer's own name so
// callers don't need a second import for the common case.
type ExitCode = pkgerr.ExitCode

var (
	Ok        = pkgerr.Ok
	Installed = pkgerr.Installed
	Locked    = pkgerr.Locked
	Cancel    = pkgerr.Cancel
	UpToDate  = pkgerr.UpToDate
)

// Install runs the full §4.9 state machine for one package archive against
// oldPkg (nil for a fresh install, the currently installed manifest for an
// upgrade).
func (c *Ctx) Install(ctx context.Context, src ArchiveSource, oldPkg *pkgcore.Package) (*Result, error) {
	buf, err := decodeTar(src.Reader, src.Format)
	if err != nil {
		return nil, pkgerr.New(pkgerr.Parse, "install", err)
	}

	pkg, err := c.parseManifest(buf)
	if err != nil {
		return nil, err
	}

	if oldPkg != nil && samePackage(oldPkg, pkg) {
		return &Result{Code: Installed, Pkg: pkg}, nil
	}

	if err := c.checkConflicts(pkg); err != nil {
		return nil, err
	}

	root, err := openRoot(c.RootDir)
	if err != nil {
		return nil, pkgerr.New(pkgerr.Filesystem, "install", err)
	}
	defer root.Close()

	st := &installState{}
	defer func() {
		if st.committed {
			return
		}
		st.runRollback(root, c.logger())
	}()

	if c.Hooks != nil {
		if err := c.Hooks.Run(ctx, scripting.PreInstall, pkg.Scripts, pkg.LuaScripts); err != nil {
			return nil, pkgerr.New(pkgerr.Filesystem, "pre-install", err)
		}
	}

	if err := c.extract(ctx, root, st, pkg, oldPkg, newTarReader(buf)); err != nil {
		return nil, err
	}

	var cleanupTriggers []string
	if oldPkg != nil {
		cleanupTriggers, err = c.cleanupOld(root, oldPkg, pkg)
		if err != nil {
			return nil, pkgerr.New(pkgerr.Filesystem, "cleanup-old", err)
		}
	}

	if err := st.commit(root); err != nil {
		return nil, pkgerr.New(pkgerr.Filesystem, "commit", err)
	}
	st.committed = true

	if c.MetalogPath != "" {
		if err := writeMetalog(c.MetalogPath, st.metalog); err != nil {
			c.logger().Printf("installer: metalog: %v", err)
		}
	}

	if c.DB != nil {
		if err := c.DB.RegisterPkg(pkg, c.Force); err != nil {
			return nil, pkgerr.New(pkgerr.Database, "register", err)
		}
		if len(pkg.ConfigFiles()) > 0 {
			if err := c.DB.UpdateConfigFileContent(pkg); err != nil {
				return nil, pkgerr.New(pkgerr.Database, "register config content", err)
			}
		}
	}

	for _, path := range cleanupTriggers {
		path := path
		pkgcore.RegisterTrigger(func() error {
			c.logger().Printf("installer: cleanup trigger for %s", path)
			return nil
		})
	}

	if c.Hooks != nil {
		if err := c.Hooks.Run(ctx, scripting.PostInstall, pkg.Scripts, pkg.LuaScripts); err != nil {
			c.logger().Printf("installer: post-install hook failed (files already committed): %v", err)
		}
	}

	if c.DB != nil {
		_ = c.DB.RegisterFinale(Ok)
	}
	return &Result{Code: Ok, Pkg: pkg}, nil
}

func (c *Ctx) parseManifest(buf []byte) (*pkgcore.Package, error) {
	tr := newTarReader(buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, pkgerr.New(pkgerr.Parse, "install", fmt.Errorf("archive has no +MANIFEST entry"))
		}
		if err != nil {
			return nil, pkgerr.New(pkgerr.Parse, "install", err)
		}
		if hdr.Name != "+MANIFEST" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, pkgerr.New(pkgerr.Parse, "install", err)
		}
		pkg, err := manifest.Unmarshal(data)
		if err != nil {
			return nil, pkgerr.New(pkgerr.Parse, "install", err)
		}
		return pkg, nil
	}
}

// samePackage implements §8 property 6: installing a package already at
// the exact version and checksum is a no-op. Versions are compared with
// golang.org/x/mod/semver when both look dotted-numeric, falling back to
// plain string equality otherwise — the installer only needs an identity
// check, not a general ordering.
func samePackage(old, new *pkgcore.Package) bool {
	if old.Name != new.Name {
		return false
	}
	if old.Checksum != "" && new.Checksum != "" {
		return old.Checksum == new.Checksum
	}
	vOld, vNew := "v"+old.Version, "v"+new.Version
	if semver.IsValid(vOld) && semver.IsValid(vNew) {
		return semver.Compare(vOld, vNew) == 0
	}
	return old.Version == new.Version
}

// checkConflicts implements the §4.9 CheckConflicts phase against the §6
// pkgdb_file_exists/is_dir_used collaborator, recovering as skip-and-warn
// unless Developer mode is set (§7 Conflict kind).
func (c *Ctx) checkConflicts(pkg *pkgcore.Package) error {
	if c.DB == nil || c.Force {
		return nil
	}
	for _, f := range pkg.Files {
		exists, err := c.DB.FileExists(f.Path)
		if err != nil {
			return pkgerr.New(pkgerr.Database, "check-conflicts", err)
		}
		if !exists {
			continue
		}
		err = pkgerr.New(pkgerr.Conflict, "check-conflicts", fmt.Errorf("%s already claimed by another package", f.Path))
		if c.Developer {
			return err
		}
		c.logger().Printf("installer: warning: %v", err)
	}
	return nil
}

func writeMetalog(path string, lines []string) error {
	pf, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer pf.Cleanup()
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if _, err := pf.Write(buf.Bytes()); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

// metalogLine formats one §4.9 Metalog entry.
func metalogLine(relpath, typ, uname, gname string, mode uint32, flags pkgcore.FileFlags, link string) string {
	l := fmt.Sprintf("%s type=%s uname=%s gname=%s mode=%#o", relpath, typ, uname, gname, mode)
	if flags != 0 {
		l += fmt.Sprintf(" flags=%#x", flags)
	}
	if link != "" {
		l += " link=" + link
	}
	return l
}
