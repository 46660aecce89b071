package binfmt

import (
	"debug/macho"
	"encoding/binary"
	"strings"

	pkgcore "github.com/freebsd/pkg-sub001"
)

// darwinMajor converts a platform's "min OS version" major component into
// the Darwin kernel major version recorded in a package's ABI string. Only
// the major version is needed: PKG_OS_DARWIN ABI strings carry just the
// major component (pkg_abi_string_only_major_version). The mapping follows
// Apple's well-known version scheme rather than reproducing the original's
// full per-point-release lookup table, since every release it encodes
// reduces to one of these closed-form offsets.
func darwinMajor(platform uint32, major int) int {
	switch platform {
	case platformMacOS:
		if major >= 11 {
			return major + 9
		}
		return major + 4 // macOS 10.x
	case platformIOS, platformIOSSimulator, platformTVOS, platformTVOSSimulator:
		return major + 6
	case platformWatchOS, platformWatchOSSimulator:
		return major + 13
	default:
		return 0
	}
}

const (
	platformMacOS            = 1
	platformIOS              = 2
	platformTVOS             = 3
	platformWatchOS          = 4
	platformIOSSimulator     = 7
	platformTVOSSimulator    = 8
	platformWatchOSSimulator = 9
)

// macho load-command numbers that debug/macho's high-level decoder leaves
// as raw LoadBytes because it has no typed representation for them.
const (
	lcReqDyld          = 0x80000000
	lcIDDylib          = 0xd
	lcLoadWeakDylib    = 0x18 | lcReqDyld
	lcReexportDylib    = 0x1f | lcReqDyld
	lcLazyLoadDylib    = 0x20
	lcLoadUpwardDylib  = 0x23 | lcReqDyld
	lcVersionMinMacOSX = 0x24
	lcVersionMinIOS    = 0x25
	lcVersionMinTVOS   = 0x2f
	lcVersionMinWatch  = 0x30
	lcBuildVersion     = 0x32
)

// analyzeMachO mirrors pkg_analyse_macho/analyse_macho: pick the fat-binary
// slice matching the host arch (or the only slice in a thin binary), then
// walk its load commands collecting LC_ID_DYLIB (provided) and
// LC_{LOAD,LOAD_WEAK,REEXPORT,LAZY_LOAD,LOAD_UPWARD}_DYLIB (required)
// entries, skipping system dylibs unless AllowBaseShlibs is set.
func (a *Analyzer) analyzeMachO(fpath string) (Result, error) {
	f, closeFat, err := openMachOForArch(fpath, a.HostABI.Arch)
	if err != nil || f == nil {
		return Result{}, nil // not a Mach-O file, or no matching slice: no results
	}
	defer func() {
		f.Close()
		if closeFat != nil {
			closeFat()
		}
	}()

	var res Result
	for _, l := range f.Loads {
		switch ld := l.(type) {
		case *macho.Dylib:
			addDylib(&res, ld.Name, a.AllowBaseShlibs, false)
		case macho.LoadBytes:
			raw := ld.Raw()
			if len(raw) < 8 {
				continue
			}
			cmd := binary.LittleEndian.Uint32(raw[0:4])
			switch cmd {
			case lcIDDylib:
				if name, ok := dylibName(raw); ok {
					addDylib(&res, name, a.AllowBaseShlibs, true)
				}
			case lcLoadWeakDylib, lcReexportDylib, lcLazyLoadDylib, lcLoadUpwardDylib:
				if name, ok := dylibName(raw); ok {
					addDylib(&res, name, a.AllowBaseShlibs, false)
				}
			}
		}
	}
	return res, nil
}

// dylibName extracts the NUL-terminated path from a raw dylib_command's
// variable-length tail, whose 4-byte name-offset field sits right after the
// 8-byte (cmd, cmdsize) header, matching Mach-O's dylib_command layout.
func dylibName(raw []byte) (string, bool) {
	if len(raw) < 12 {
		return "", false
	}
	nameOff := binary.LittleEndian.Uint32(raw[8:12])
	if int(nameOff) >= len(raw) {
		return "", false
	}
	tail := raw[nameOff:]
	if i := indexByte0(tail); i >= 0 {
		tail = tail[:i]
	}
	return string(tail), true
}

func indexByte0(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

var systemDylibPrefixes = []string{"/System/", "/usr/lib/", "/lib/"}

// addDylib records name as provided (provides=true, i.e. LC_ID_DYLIB) or
// required, using only its basename: full Darwin paths are ubiquitous but
// pkg's native environment tracks shlibs by basename, which also strips any
// @executable_path/@loader_path/@rpath prefix, matching analyse_macho.
func addDylib(res *Result, name string, allowBase, provides bool) {
	if !allowBase && !provides {
		for _, p := range systemDylibPrefixes {
			if strings.HasPrefix(name, p) {
				return
			}
		}
	}
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	if base == "" {
		return
	}
	if provides {
		res.Provided = append(res.Provided, base)
	} else {
		res.Required = append(res.Required, base)
	}
}

// openMachOForArch opens fpath as a Mach-O file, resolving a fat (universal)
// binary to the slice matching wantArch (or its first slice if wantArch is
// unknown or unmatched, mirroring match_entry's "no hint: first entry"
// fallback). The returned closer releases the underlying FatFile, if any.
func openMachOForArch(fpath string, wantArch pkgcore.Arch) (*macho.File, func(), error) {
	fat, err := macho.OpenFat(fpath)
	if err == nil {
		if len(fat.Arches) == 0 {
			fat.Close()
			return nil, nil, nil
		}
		chosen := fat.Arches[0].File
		for _, arch := range fat.Arches {
			if machoCpuToArch(arch.Cpu) == wantArch {
				chosen = arch.File
				break
			}
		}
		return chosen, func() { fat.Close() }, nil
	}

	f, ferr := macho.Open(fpath)
	if ferr != nil {
		return nil, nil, nil
	}
	return f, nil, nil
}

func machoCpuToArch(cpu macho.Cpu) pkgcore.Arch {
	switch cpu {
	case macho.CpuAmd64:
		return pkgcore.ArchAmd64
	case macho.Cpu386:
		return pkgcore.ArchI386
	case macho.CpuArm64:
		return pkgcore.ArchAarch64
	case macho.CpuArm:
		return pkgcore.ArchArmv7
	case macho.CpuPpc64:
		return pkgcore.ArchPowerpc64
	case macho.CpuPpc:
		return pkgcore.ArchPowerpc
	default:
		return pkgcore.ArchUnknown
	}
}

// ABIFromMachO derives a package's Darwin ABI from fpath, used to bootstrap
// the host's own ABI the way pkg_abi_from_file falls back to Mach-O parsing
// when the ABI_FILE isn't an ELF binary (e.g. on a macOS build host).
func ABIFromMachO(fpath string, archHint pkgcore.Arch) (pkgcore.ABI, bool) {
	f, closeFat, err := openMachOForArch(fpath, archHint)
	if err != nil || f == nil {
		return pkgcore.ABI{}, false
	}
	defer func() {
		f.Close()
		if closeFat != nil {
			closeFat()
		}
	}()

	abi := pkgcore.ABI{OS: pkgcore.OSDarwin, Arch: machoCpuToArch(f.Cpu)}
	if abi.Arch == pkgcore.ArchUnknown {
		return pkgcore.ABI{}, false
	}

	var platform uint32
	var major, minor, patch int
	haveBuildVersion := false
	for _, l := range f.Loads {
		raw, ok := l.(macho.LoadBytes)
		if !ok || len(raw) < 8 {
			continue
		}
		cmd := binary.LittleEndian.Uint32(raw[0:4])
		switch cmd {
		case lcBuildVersion:
			if len(raw) < 16 {
				continue
			}
			platform = binary.LittleEndian.Uint32(raw[8:12])
			minos := binary.LittleEndian.Uint32(raw[12:16])
			major, minor, patch = decodeVersion(minos)
			haveBuildVersion = true
		case lcVersionMinMacOSX, lcVersionMinIOS, lcVersionMinTVOS, lcVersionMinWatch:
			if haveBuildVersion || len(raw) < 12 {
				continue // LC_BUILD_VERSION wins over LC_VERSION_MIN_* in either order
			}
			switch cmd {
			case lcVersionMinMacOSX:
				platform = platformMacOS
			case lcVersionMinIOS:
				platform = platformIOS
			case lcVersionMinTVOS:
				platform = platformTVOS
			case lcVersionMinWatch:
				platform = platformWatchOS
			}
			minos := binary.LittleEndian.Uint32(raw[8:12])
			major, minor, patch = decodeVersion(minos)
		}
	}
	if major == 0 && minor == 0 && patch == 0 && platform == 0 {
		return pkgcore.ABI{}, false
	}
	abi.Major = darwinMajor(platform, major)
	abi.Minor = minor
	abi.Patch = patch
	return abi, true
}

// decodeVersion unpacks Mach-O's X.Y.Z "version32" encoding: major in bits
// 31-16, minor in bits 15-8, patch in bits 7-0.
func decodeVersion(v uint32) (major, minor, patch int) {
	return int(v >> 16 & 0xffff), int(v >> 8 & 0xff), int(v & 0xff)
}
