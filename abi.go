// Package pkgcore implements the core of a binary package manager: ABI
// detection, checksumming, manifest handling, signing, fetching, and the
// transactional installer. The SQLite-backed installed-package database,
// dependency solver, CLI front end, and scripting runtimes are external
// collaborators reached through the narrow interfaces in the pkgdb and
// scripting packages.
package pkgcore

import (
	"fmt"
	"strconv"
	"strings"
)

// OS identifies the target operating system of an ABI.
type OS int

const (
	OSUnknown OS = iota
	OSFreeBSD
	OSNetBSD
	OSDragonFly
	OSLinux
	OSDarwin
)

func (o OS) String() string {
	switch o {
	case OSFreeBSD:
		return "FreeBSD"
	case OSNetBSD:
		return "NetBSD"
	case OSDragonFly:
		return "DragonFly"
	case OSLinux:
		return "Linux"
	case OSDarwin:
		return "Darwin"
	default:
		return "unknown"
	}
}

// ParseOS parses the OS component of an ABI string.
func ParseOS(s string) (OS, bool) {
	switch s {
	case "FreeBSD":
		return OSFreeBSD, true
	case "NetBSD":
		return OSNetBSD, true
	case "DragonFly":
		return OSDragonFly, true
	case "Linux":
		return OSLinux, true
	case "Darwin":
		return OSDarwin, true
	default:
		return OSUnknown, false
	}
}

// Arch identifies the target machine architecture of an ABI.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchI386
	ArchAmd64
	ArchArmv6
	ArchArmv7
	ArchAarch64
	ArchPowerpc
	ArchPowerpc64
	ArchPowerpc64le
	ArchRiscv32
	ArchRiscv64
)

// archNames holds the canonical (FreeBSD/NetBSD/Linux) spelling of each
// architecture. DragonFly and Darwin keep a legacy spelling for some
// entries (see archLegacyNames), matching the on-disk ABI strings that
// existing repositories already publish.
var archNames = map[Arch]string{
	ArchI386:        "i386",
	ArchAmd64:       "amd64",
	ArchArmv6:       "armv6",
	ArchArmv7:       "armv7",
	ArchAarch64:     "aarch64",
	ArchPowerpc:     "powerpc",
	ArchPowerpc64:   "powerpc64",
	ArchPowerpc64le: "powerpc64le",
	ArchRiscv32:     "riscv32",
	ArchRiscv64:     "riscv64",
}

// archLegacyNames is consulted by ABI.String for DragonFly/Darwin targets,
// which historically spelled a handful of architectures differently.
var archLegacyNames = map[Arch]string{
	ArchAmd64: "x86:64",
	ArchI386:  "x86:32",
}

var archByName = func() map[string]Arch {
	m := make(map[string]Arch, len(archNames)+len(archLegacyNames))
	for a, n := range archNames {
		m[n] = a
	}
	for a, n := range archLegacyNames {
		m[n] = a
	}
	return m
}()

func (a Arch) String() string {
	if n, ok := archNames[a]; ok {
		return n
	}
	return "unknown"
}

// ParseArch parses the arch component of an ABI string.
func ParseArch(s string) (Arch, bool) {
	a, ok := archByName[s]
	return a, ok
}

// ABI identifies a package's target operating system, version, and
// architecture (§3). Its string form is "OS:major[.minor]:arch"; whether
// minor is included depends on OS (FreeBSD/NetBSD/Darwin carry only major,
// DragonFly/Linux carry major.minor).
type ABI struct {
	OS    OS
	Major int
	Minor int
	Patch int
	Arch  Arch
}

func (a ABI) archString() string {
	if a.OS == OSDragonFly || a.OS == OSDarwin {
		if n, ok := archLegacyNames[a.Arch]; ok {
			return n
		}
	}
	return a.Arch.String()
}

// String renders the canonical "OS:version:arch" form of a.
func (a ABI) String() string {
	var version string
	switch a.OS {
	case OSDragonFly, OSLinux:
		version = fmt.Sprintf("%d.%d", a.Major, a.Minor)
	default: // FreeBSD, NetBSD, Darwin, Unknown
		version = strconv.Itoa(a.Major)
	}
	return fmt.Sprintf("%s:%s:%s", a.OS.String(), version, a.archString())
}

// ParseABI parses the canonical "OS:version:arch" form produced by String.
// It returns an error rather than a zero value on malformed input so
// callers can distinguish "genuinely unknown ABI" from "parse failure"
// (§8 property 5: ParseABI(String(a)) == a must hold for every a this
// package itself produces).
func ParseABI(s string) (ABI, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return ABI{}, fmt.Errorf("pkgcore: malformed ABI string %q", s)
	}
	os, ok := ParseOS(parts[0])
	if !ok {
		return ABI{}, fmt.Errorf("pkgcore: unknown OS %q in ABI string %q", parts[0], s)
	}
	arch, ok := ParseArch(parts[2])
	if !ok {
		return ABI{}, fmt.Errorf("pkgcore: unknown arch %q in ABI string %q", parts[2], s)
	}
	var major, minor int
	if dot := strings.IndexByte(parts[1], '.'); dot >= 0 {
		var err error
		major, err = strconv.Atoi(parts[1][:dot])
		if err != nil {
			return ABI{}, fmt.Errorf("pkgcore: invalid major version in ABI string %q: %v", s, err)
		}
		minor, err = strconv.Atoi(parts[1][dot+1:])
		if err != nil {
			return ABI{}, fmt.Errorf("pkgcore: invalid minor version in ABI string %q: %v", s, err)
		}
	} else {
		var err error
		major, err = strconv.Atoi(parts[1])
		if err != nil {
			return ABI{}, fmt.Errorf("pkgcore: invalid version in ABI string %q: %v", s, err)
		}
	}
	return ABI{OS: os, Major: major, Minor: minor, Arch: arch}, nil
}

// HasArchSuffix reports whether name ends in a known architecture
// identifier (e.g. "libfoo-amd64") and returns it. Kept from the teacher's
// archs.go, generalized from the fixed {amd64,i686} set to the full Arch
// enum, for selector strings of the form "name-arch" used when a caller
// does not otherwise qualify a package by ABI.
func HasArchSuffix(name string) (Arch, bool) {
	for a, n := range archNames {
		if strings.HasSuffix(name, "-"+n) {
			return a, true
		}
	}
	return ArchUnknown, false
}
