package installer

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sys/unix"

	pkgcore "github.com/freebsd/pkg-sub001"
)

// cleanupOld implements the §4.9 "Upgrade handling" non-split cleanup pass,
// run after the new package's files have been extracted (to hidden temps)
// but before they are committed: every old file absent from the new
// package — including one present but filtered by FilesIgnoreGlob/Regex,
// which extract skipped writing — is deleted, backing it up first to
// BackupLibraryPath when its basename matches one of the old package's
// shlibs_provided entries; old directories no longer referenced by the new
// package are removed bottom-up when nothing else still uses them; and a
// cleanup trigger path is collected for every deletion so the caller can
// notify external trigger scripts.
func (c *Ctx) cleanupOld(root *rootFS, oldPkg, newPkg *pkgcore.Package) ([]string, error) {
	var triggers []string

	newFiles := make(map[string]bool, len(newPkg.Files))
	for _, f := range newPkg.Files {
		newFiles[f.Path] = true
	}

	for _, of := range oldPkg.Files {
		if newFiles[of.Path] && !c.ignored(of.Path) {
			continue
		}
		if c.BackupLibraryPath != "" && oldPkg.ShlibsProv.Has(path.Base(of.Path)) {
			if err := c.backupLibrary(root, of.Path); err != nil {
				return triggers, err
			}
		}
		if err := root.Unlinkat(of.Path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
			return triggers, fmt.Errorf("installer: cleanup-old: removing %s: %w", of.Path, err)
		}
		triggers = append(triggers, of.Path)
	}

	newDirs := make(map[string]bool, len(newPkg.Dirs))
	for _, d := range newPkg.Dirs {
		newDirs[d.Path] = true
	}
	// Reverse insertion order walks the old manifest's directories roughly
	// bottom-up, so a child is unlinked (and thus empty of its own stale
	// entries) before its parent is attempted.
	for i := len(oldPkg.Dirs) - 1; i >= 0; i-- {
		d := oldPkg.Dirs[i]
		if newDirs[d.Path] {
			continue
		}
		if c.DB != nil {
			used, err := c.DB.IsDirUsed(newPkg, d.Path)
			if err != nil {
				return triggers, fmt.Errorf("installer: cleanup-old: checking dir use %s: %w", d.Path, err)
			}
			if used > 0 {
				continue
			}
		}
		if err := root.Unlinkat(d.Path, unix.AT_REMOVEDIR); err != nil {
			c.logger().Printf("installer: cleanup-old: leaving %s (not empty or still referenced): %v", d.Path, err)
			continue
		}
		triggers = append(triggers, d.Path)
	}

	return triggers, nil
}

// backupLibrary copies the about-to-be-deleted shared library at p to
// <BackupLibraryPath>/<basename> before it is unlinked, per §4.9's "first
// copy it to <backup_library_path>/<name>".
func (c *Ctx) backupLibrary(root *rootFS, p string) error {
	data, err := os.ReadFile(root.abs(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("installer: backup-library: reading %s: %w", p, err)
	}
	if err := os.MkdirAll(c.BackupLibraryPath, 0755); err != nil {
		return fmt.Errorf("installer: backup-library: %w", err)
	}
	dest := filepath.Join(c.BackupLibraryPath, path.Base(p))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("installer: backup-library: writing %s: %w", dest, err)
	}
	return nil
}
