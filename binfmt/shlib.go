// Package binfmt extracts ABI and shared-library dependency information
// from installed ELF and Mach-O files (§4.2 of the core spec). It mirrors
// libpkg's pkg_elf.c/pkg_abi.c/pkg_abi_macho.c analysis passes: parse every
// regular file shipped by a package, classify it by ABI compatibility with
// the host, and record the shared libraries it needs (DT_NEEDED/LC_LOAD_DYLIB)
// and provides (DT_SONAME/LC_ID_DYLIB).
package binfmt

import (
	"fmt"

	pkgcore "github.com/freebsd/pkg-sub001"
)

// Flags records why a shared library dependency is not native to the host
// ABI: FlagsFromABI sets them by comparing the library's ABI with the host's
// (a 32-bit library on a 64-bit host, or a Linux library on FreeBSD). A
// native dependency has no flags set.
type Flags uint8

const (
	FlagNone Flags = 0
	Flag32   Flags = 1 << 0
	FlagLinux Flags = 1 << 1
)

// NameWithFlags renders a shared library name together with its compat
// suffix, matching libpkg's pkg_shlib_name_with_flags format:
//
//	libfoo.so.1.0.0          native
//	libfoo.so.1.0.0:32       compat 32
//	libfoo.so.1.0.0:Linux    compat Linux
//	libfoo.so.1.0.0:Linux:32 compat Linux 32
func NameWithFlags(name string, flags Flags) string {
	out := name
	if flags&FlagLinux != 0 {
		out += ":Linux"
	}
	if flags&Flag32 != 0 {
		out += ":32"
	}
	return out
}

// FlagsFromABI derives the compat flags for a library built against
// shlibABI, running on a host with hostABI, the way pkg_shlib_flags_from_abi
// does: only FreeBSD hosts recognize compat shlibs, and only specific
// 64-on-32 / Linux-on-FreeBSD combinations qualify.
func FlagsFromABI(hostABI, shlibABI pkgcore.ABI, trackLinuxCompat bool) Flags {
	var flags Flags
	if hostABI.OS != pkgcore.OSFreeBSD {
		return FlagNone
	}
	if shlibABI.OS == pkgcore.OSLinux && trackLinuxCompat {
		flags |= FlagLinux
	}
	switch hostABI.Arch {
	case pkgcore.ArchAmd64:
		if shlibABI.Arch == pkgcore.ArchI386 {
			flags |= Flag32
		}
	case pkgcore.ArchAarch64:
		if shlibABI.Arch == pkgcore.ArchArmv7 {
			flags |= Flag32
		}
	case pkgcore.ArchPowerpc64:
		if shlibABI.Arch == pkgcore.ArchPowerpc {
			flags |= Flag32
		}
	}
	return flags
}

// Result is what analysing one package file yields: the shared libraries it
// needs and/or provides, already tagged with compat Flags.
type Result struct {
	Required []string // NameWithFlags-formatted
	Provided []string // NameWithFlags-formatted
	// ContainsELF, ContainsStaticLib, and ContainsLA mirror the
	// PKG_CONTAINS_* flags set while scanning a package's files.
	ContainsELF       bool
	ContainsStaticLib bool
	ContainsLA        bool
}

// merge folds src into dst, skipping libraries already present (shlibs use
// case-sensitive, flag-qualified identity; duplicates are silently dropped
// exactly as pkg_addshlib_required/provided do).
func (r *Result) merge(src Result) {
	r.ContainsELF = r.ContainsELF || src.ContainsELF
	r.ContainsStaticLib = r.ContainsStaticLib || src.ContainsStaticLib
	r.ContainsLA = r.ContainsLA || src.ContainsLA
	seenReq := make(map[string]bool, len(r.Required))
	for _, s := range r.Required {
		seenReq[s] = true
	}
	for _, s := range src.Required {
		if !seenReq[s] {
			seenReq[s] = true
			r.Required = append(r.Required, s)
		}
	}
	seenProv := make(map[string]bool, len(r.Provided))
	for _, s := range r.Provided {
		seenProv[s] = true
	}
	for _, s := range src.Provided {
		if !seenProv[s] {
			seenProv[s] = true
			r.Provided = append(r.Provided, s)
		}
	}
}

// CleanupRequired removes shlibs a package provides of itself (via its own
// Provided set, an internally-provided set collected alongside it, or a file
// it ships at a path ending in that library name), and any matched by the
// caller's ignore globs/regexes, per pkg_cleanup_shlibs_required.
func CleanupRequired(required, provided, internalProvided []string, filePaths []string, ignore func(lib string) bool) []string {
	provSet := make(map[string]bool, len(provided)+len(internalProvided))
	for _, s := range provided {
		provSet[s] = true
	}
	for _, s := range internalProvided {
		provSet[s] = true
	}
	out := make([]string, 0, len(required))
outer:
	for _, lib := range required {
		if provSet[lib] {
			continue
		}
		if ignore != nil && ignore(lib) {
			continue
		}
		for _, p := range filePaths {
			if pathEndsInComponent(p, lib) {
				continue outer
			}
		}
		out = append(out, lib)
	}
	return out
}

// pathEndsInComponent reports whether p's final path component equals name,
// mirroring the C code's strstr-then-boundary-check idiom
// (lib[-1] == '/' && strlen(lib) == strlen(s)).
func pathEndsInComponent(p, name string) bool {
	if len(p) < len(name)+1 {
		return false
	}
	tail := p[len(p)-len(name):]
	return tail == name && p[len(p)-len(name)-1] == '/'
}

// Analyzer scans a package's on-disk staged files and accumulates their
// shlib requirements, mirroring pkg_analyse_files's per-file dispatch
// between the ELF and Mach-O analysers.
type Analyzer struct {
	HostABI          pkgcore.ABI
	DeveloperMode    bool
	TrackLinuxCompat bool
	AllowBaseShlibs  bool // Darwin only: don't skip /System, /usr/lib, /lib dylibs
}

// AnalyzeFile dispatches fpath to the ELF or Mach-O analyser based on the
// host ABI, matching pkg_analyse_files's "Darwin" prefix check on pkg->abi.
func (a *Analyzer) AnalyzeFile(fpath string) (Result, error) {
	if a.HostABI.OS == pkgcore.OSDarwin {
		return a.analyzeMachO(fpath)
	}
	return a.analyzeELF(fpath)
}

// AnalyzePackage walks every regular file in files (absolute paths staged
// under root), accumulating a single Result, and reports an error only for
// I/O failures distinct from "not a recognized binary" (EPKG_END in the
// original, represented here by a nil, no-op Result from the per-format
// analysers).
func (a *Analyzer) AnalyzePackage(root string, files []string) (Result, error) {
	var total Result
	for _, rel := range files {
		fpath := rel
		if root != "" {
			fpath = joinStaged(root, rel)
		}
		r, err := a.AnalyzeFile(fpath)
		if err != nil {
			if a.DeveloperMode {
				return total, fmt.Errorf("binfmt: analysing %s: %w", fpath, err)
			}
			continue
		}
		total.merge(r)
	}
	return total, nil
}

func joinStaged(root, rel string) string {
	if len(rel) == 0 || rel[0] != '/' {
		return root + "/" + rel
	}
	return root + rel
}
