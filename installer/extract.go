package installer

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"sync/atomic"

	"github.com/google/renameio"

	pkgcore "github.com/freebsd/pkg-sub001"
	"github.com/freebsd/pkg-sub001/checksum"
	"github.com/freebsd/pkg-sub001/pkgerr"
)

// entryKind distinguishes the hidden-temp bookkeeping an installState keeps
// for symlinks and hardlinks; regular file content is tracked separately
// via renameio.PendingFile, which already owns its own temp-then-rename
// lifecycle.
type entryKind int

const (
	kindSymlink entryKind = iota
	kindHardlink
)

type pendingRename struct {
	kind      entryKind
	tempPath  string
	finalPath string
}

// installState accumulates everything one Install call needs to either
// commit (rename every temp into place) or roll back (unlink every temp),
// per §4.9's "Rollback" section: a per-install cleanup callback list run
// LIFO on failure.
type installState struct {
	pendingFiles []*renameio.PendingFile
	renames      []pendingRename
	metalog      []string
	hardlinkTemp map[string]string // archive entry name -> its temp path
	committed    bool
}

var tempCounter atomic.Uint64

func tempName(base string) string {
	return fmt.Sprintf(".pkgtemp.%s.%d", base, tempCounter.Add(1))
}

// runRollback unlinks every reserved temp path in LIFO order and discards
// any still-pending regular-file writes. Errors are logged, not
// propagated, per §7's "Rollback callbacks are best-effort".
func (st *installState) runRollback(root *rootFS, logger *log.Logger) {
	for i := len(st.renames) - 1; i >= 0; i-- {
		if err := root.Unlinkat(st.renames[i].tempPath, 0); err != nil {
			logger.Printf("installer: rollback: unlinking %s: %v", st.renames[i].tempPath, err)
		}
	}
	for i := len(st.pendingFiles) - 1; i >= 0; i-- {
		if err := st.pendingFiles[i].Cleanup(); err != nil {
			logger.Printf("installer: rollback: cleaning up pending file: %v", err)
		}
	}
}

// commit performs the final rename pass: every regular file's PendingFile
// is atomically replaced first (renameio keeps each temp on the same mount
// as its final name), then every symlink/hardlink hidden temp is renamed
// into place, in the order the entries were extracted.
func (st *installState) commit(root *rootFS) error {
	for _, pf := range st.pendingFiles {
		if err := pf.CloseAtomicallyReplace(); err != nil {
			return fmt.Errorf("installer: committing %s: %w", pf.Name(), err)
		}
	}
	for _, rn := range st.renames {
		if err := root.Renameat(rn.tempPath, rn.finalPath); err != nil {
			return fmt.Errorf("installer: renaming %s into place: %w", rn.finalPath, err)
		}
	}
	return nil
}

func normalizeEntryPath(name string) string {
	name = strings.TrimPrefix(name, "./")
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return path.Clean(name)
}

func (c *Ctx) ignored(name string) bool {
	for _, g := range c.FilesIgnoreGlob {
		if ok, _ := path.Match(g, name); ok {
			return true
		}
	}
	for _, re := range c.FilesIgnoreRegex {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// extract walks the tar stream once, dispatching each entry per §4.9's
// "Archive extraction algorithm". On any error, already-reserved temps are
// rolled back by the Install caller's deferred runRollback.
func (c *Ctx) extract(ctx context.Context, root *rootFS, st *installState, pkg, oldPkg *pkgcore.Package, tr *tar.Reader) error {
	configSet := make(map[string]bool, len(pkg.ConfigFiles()))
	for _, f := range pkg.ConfigFiles() {
		configSet[f.Path] = true
	}
	st.hardlinkTemp = make(map[string]string)

	done, total := int64(0), int64(len(pkg.Files)+len(pkg.Dirs))
	for {
		select {
		case <-ctx.Done():
			return pkgerr.New(pkgerr.Cancellation, "extract", ctx.Err())
		default:
		}

		hdr, herr := tr.Next()
		if herr == io.EOF {
			break
		}
		if herr != nil {
			return pkgerr.New(pkgerr.Parse, "extract", herr)
		}
		if isControlEntry(hdr.Name) {
			continue
		}
		name := normalizeEntryPath(hdr.Name)
		if c.ignored(name) {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := c.extractDir(root, st, pkg, name); err != nil {
				return pkgerr.New(pkgerr.Filesystem, "extract dir "+name, err)
			}
		case tar.TypeSymlink:
			if err := c.extractSymlink(root, st, pkg, name, hdr.Linkname); err != nil {
				return pkgerr.New(pkgerr.Filesystem, "extract symlink "+name, err)
			}
		case tar.TypeLink:
			if err := c.extractHardlink(root, st, name, normalizeEntryPath(hdr.Linkname)); err != nil {
				return pkgerr.New(pkgerr.Filesystem, "extract hardlink "+name, err)
			}
		case tar.TypeReg:
			if err := c.extractRegular(root, st, pkg, oldPkg, name, tr, configSet[name]); err != nil {
				return pkgerr.New(pkgerr.Filesystem, "extract file "+name, err)
			}
		default:
			return pkgerr.New(pkgerr.Parse, "extract", fmt.Errorf("unsupported entry type %v for %s", hdr.Typeflag, name))
		}

		done++
		if c.Progress != nil && c.Progress(done, total) {
			return pkgerr.New(pkgerr.Cancellation, "extract", fmt.Errorf("cancelled by progress callback"))
		}
	}
	return nil
}

// extractDir implements the Directory branch: create (mkdirat -p) and
// apply attrs, short-circuiting to NoAttrs when a pre-existing directory
// already matches (the "noattrs directory short-circuit" supplemental
// behavior).
func (c *Ctx) extractDir(root *rootFS, st *installState, pkg *pkgcore.Package, name string) error {
	d, ok := pkg.Dir(name)
	if !ok {
		d = pkgcore.Dir{Path: name, Uname: "root", Gname: "wheel", Mode: 0755}
	}

	if fi, err := root.Lstat(name); err == nil && fi.IsDir() {
		if dirAttrsMatch(fi, d) {
			d.NoAttrs = true
			if ok {
				_ = pkg.SetDir(d)
			}
			st.metalog = append(st.metalog, metalogLine(name, "dir", d.Uname, d.Gname, d.Mode, d.Flags, ""))
			return nil
		}
	}

	if err := root.MkdirAll(name, d.Mode); err != nil {
		return err
	}
	if err := root.Fchmodat(name, d.Mode); err != nil {
		return err
	}
	if err := root.Fchownat(name, d.Uname, d.Gname, 0); err != nil {
		return err
	}
	if ok {
		_ = pkg.SetDir(d)
	}
	st.metalog = append(st.metalog, metalogLine(name, "dir", d.Uname, d.Gname, d.Mode, d.Flags, ""))
	return nil
}

func dirAttrsMatch(fi os.FileInfo, d pkgcore.Dir) bool {
	if uint32(fi.Mode().Perm()) != d.Mode&0777 {
		return false
	}
	return true
}

// extractSymlink writes the link into a hidden temp name in the same
// directory and records it for the final rename pass.
func (c *Ctx) extractSymlink(root *rootFS, st *installState, pkg *pkgcore.Package, name, target string) error {
	dir := path.Dir(name)
	temp := path.Join(dir, tempName(path.Base(name)))
	if err := root.Symlinkat(target, temp); err != nil {
		return err
	}
	st.renames = append(st.renames, pendingRename{kind: kindSymlink, tempPath: temp, finalPath: name})
	st.hardlinkTemp[name] = temp

	if f, ok := pkg.File(name); ok {
		sum, _ := checksum.Compute([]byte(target), checksum.SHA256Hex)
		f.SHA256 = sum
		_ = pkg.SetFile(f)
	}
	st.metalog = append(st.metalog, metalogLine(name, "link", "root", "wheel", 0777, 0, target))
	return nil
}

// extractHardlink links from the peer's still-pending temp path (if the
// peer was extracted earlier in this same archive) or from its already-
// committed final path otherwise, per §4.9's hardlink branch.
func (c *Ctx) extractHardlink(root *rootFS, st *installState, name, peer string) error {
	source := peer
	if t, ok := st.hardlinkTemp[peer]; ok {
		source = t
	}
	dir := path.Dir(name)
	temp := path.Join(dir, tempName(path.Base(name)))
	if err := root.Linkat(source, temp); err != nil {
		return err
	}
	st.renames = append(st.renames, pendingRename{kind: kindHardlink, tempPath: temp, finalPath: name})
	st.hardlinkTemp[name] = temp
	st.metalog = append(st.metalog, metalogLine(name, "hardlink", "root", "wheel", 0, 0, peer))
	return nil
}

// extractRegular opens a hidden temp file via renameio (O_CREAT|O_WRONLY|
// O_EXCL semantics are implied by renameio's exclusive temp-name scheme),
// runs the §4.9.2 3-way merge first for config files, and otherwise
// streams the entry's bytes straight through.
func (c *Ctx) extractRegular(root *rootFS, st *installState, pkg, oldPkg *pkgcore.Package, name string, tr *tar.Reader, isConfig bool) error {
	absPath := root.abs(name)
	pf, err := renameio.TempFile("", absPath)
	if err != nil {
		return err
	}

	f, _ := pkg.File(name)
	if f.Mode == 0 {
		f.Mode = 0644
	}

	if isConfig {
		remote, err := io.ReadAll(tr)
		if err != nil {
			pf.Cleanup()
			return err
		}
		var base []byte
		if oldPkg != nil {
			if of, ok := oldPkg.File(name); ok && of.IsConfig {
				base = []byte(of.Content)
			}
		}
		local, lerr := os.ReadFile(absPath)
		if lerr != nil {
			local = nil
		}
		merged, status, merr := ConfigMerge(base, local, remote, c.MergeTool)
		if merr != nil {
			pf.Cleanup()
			return merr
		}
		if status == pkgcore.MergeFailed {
			pf.Cleanup()
			if err := os.WriteFile(absPath+".pkgnew", remote, os.FileMode(f.Mode)); err != nil {
				return err
			}
			f.IsConfig = true
			f.Merge = pkgcore.MergeFailed
			_ = pkg.SetFile(f)
			c.logger().Printf("installer: config merge conflict for %s, wrote %s.pkgnew", name, name)
			return nil
		}
		if _, err := pf.Write(merged); err != nil {
			pf.Cleanup()
			return err
		}
		f.Content = string(remote)
		f.IsConfig = true
		f.Merge = status
		_ = pkg.SetFile(f)
	} else {
		if _, err := io.Copy(pf, tr); err != nil {
			pf.Cleanup()
			return err
		}
	}

	if err := pf.Chmod(os.FileMode(f.Mode)); err != nil {
		pf.Cleanup()
		return err
	}

	if f.SHA256 != "" && f.SHA256 != "-" && !isConfig {
		sum, serr := checksum.ComputeFile(pf.Name(), checksum.SHA256Hex)
		if serr == nil && sum != f.SHA256 {
			pf.Cleanup()
			return fmt.Errorf("checksum mismatch for %s: got %s want %s", name, sum, f.SHA256)
		}
	}

	st.pendingFiles = append(st.pendingFiles, pf)
	st.hardlinkTemp[name] = pf.Name()
	st.metalog = append(st.metalog, metalogLine(name, "file", f.Uname, f.Gname, f.Mode, f.Flags, ""))
	return nil
}
