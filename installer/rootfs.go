package installer

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// rootFS centralizes "strip the leading slash, then operate relative to a
// pinned root descriptor" (spec.md §9's "Path manipulation" pattern-
// migration note) so every directory/symlink/hardlink/attribute operation
// in this package goes through one helper instead of building ad hoc
// absolute paths that a crafted manifest entry could walk outside of
// RootDir via "..".
type rootFS struct {
	dir string
	fd  int
}

func openRoot(dir string) (*rootFS, error) {
	fd, err := unix.Open(dir, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("installer: opening root %s: %w", dir, err)
	}
	return &rootFS{dir: dir, fd: fd}, nil
}

func (r *rootFS) Close() error {
	if r == nil || r.fd == 0 {
		return nil
	}
	return unix.Close(r.fd)
}

// rel strips a manifest path's leading slash, per §3: "when applied to
// disk, the leading slash is stripped and paths resolve through a pinned
// root descriptor".
func rel(path string) string {
	return strings.TrimPrefix(path, "/")
}

func (r *rootFS) abs(path string) string {
	return r.dir + "/" + rel(path)
}

// MkdirAll creates every missing path segment relative to the root fd,
// mirroring §4.9's "mkdirat -p on the deepest-missing prefix".
func (r *rootFS) MkdirAll(path string, mode uint32) error {
	segs := strings.Split(strings.Trim(rel(path), "/"), "/")
	cur := ""
	for _, s := range segs {
		if s == "" {
			continue
		}
		if cur == "" {
			cur = s
		} else {
			cur = cur + "/" + s
		}
		if err := unix.Mkdirat(r.fd, cur, mode); err != nil && err != unix.EEXIST {
			return fmt.Errorf("installer: mkdirat %s: %w", cur, err)
		}
	}
	return nil
}

// Openat opens path relative to the root fd and wraps the resulting fd in
// an *os.File for streaming I/O.
func (r *rootFS) Openat(path string, flags int, mode uint32) (*os.File, error) {
	fd, err := unix.Openat(r.fd, rel(path), flags, mode)
	if err != nil {
		return nil, fmt.Errorf("installer: openat %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), r.abs(path)), nil
}

func (r *rootFS) Symlinkat(target, path string) error {
	if err := unix.Symlinkat(target, r.fd, rel(path)); err != nil {
		return fmt.Errorf("installer: symlinkat %s: %w", path, err)
	}
	return nil
}

func (r *rootFS) Linkat(oldPath, newPath string) error {
	if err := unix.Linkat(r.fd, rel(oldPath), r.fd, rel(newPath), 0); err != nil {
		return fmt.Errorf("installer: linkat %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

func (r *rootFS) Renameat(oldPath, newPath string) error {
	if err := unix.Renameat(r.fd, rel(oldPath), r.fd, rel(newPath)); err != nil {
		return fmt.Errorf("installer: renameat %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

func (r *rootFS) Unlinkat(path string, flags int) error {
	if err := unix.Unlinkat(r.fd, rel(path), flags); err != nil {
		return fmt.Errorf("installer: unlinkat %s: %w", path, err)
	}
	return nil
}

func (r *rootFS) Readlinkat(path string) (string, error) {
	buf := make([]byte, 4096)
	n, err := unix.Readlinkat(r.fd, rel(path), buf)
	if err != nil {
		return "", fmt.Errorf("installer: readlinkat %s: %w", path, err)
	}
	return string(buf[:n]), nil
}

func (r *rootFS) Fchmodat(path string, mode uint32) error {
	if err := unix.Fchmodat(r.fd, rel(path), mode, 0); err != nil {
		return fmt.Errorf("installer: fchmodat %s: %w", path, err)
	}
	return nil
}

// Fchownat resolves uname/gname via the host's user/group database and
// applies them relative to the root fd; unresolvable names are silently
// skipped (matching §4.9's tolerance for packages built against a
// different user/group namespace than the installing host).
func (r *rootFS) Fchownat(path, uname, gname string, flags int) error {
	uid, gid := -1, -1
	if uname != "" {
		if u, err := user.Lookup(uname); err == nil {
			uid, _ = strconv.Atoi(u.Uid)
		}
	}
	if gname != "" {
		if g, err := user.LookupGroup(gname); err == nil {
			gid, _ = strconv.Atoi(g.Gid)
		}
	}
	if uid < 0 && gid < 0 {
		return nil
	}
	if err := unix.Fchownat(r.fd, rel(path), uid, gid, flags); err != nil {
		return fmt.Errorf("installer: fchownat %s: %w", path, err)
	}
	return nil
}

func (r *rootFS) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(r.abs(path))
}
