package binfmt

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	pkgcore "github.com/freebsd/pkg-sub001"
)

// noteOSTable maps the GNU ABI-tag "OS descriptor" word (note style 2, used
// on Linux's NT_GNU_ABI_TAG notes) to our OS enum, mirroring pkg_elf.c's
// note_ost table: {Linux, Hurd, Solaris, FreeBSD, NetBSD, Syllable}.
var noteOSTable = [6]pkgcore.OS{
	pkgcore.OSLinux,
	pkgcore.OSUnknown, // GNU Hurd
	pkgcore.OSUnknown, // Solaris
	pkgcore.OSFreeBSD,
	pkgcore.OSNetBSD,
	pkgcore.OSUnknown, // Syllable
}

// analyzeELF mirrors libpkg's analyse_elf: determine the file's ABI from its
// PT_NOTE section, check it's compatible with the host, then record
// DT_NEEDED/DT_SONAME entries as required/provided shlibs.
func (a *Analyzer) analyzeELF(fpath string) (Result, error) {
	fi, err := os.Lstat(fpath)
	if err != nil {
		return Result{}, err
	}
	if fi.Size() == 0 || !fi.Mode().IsRegular() {
		return Result{}, nil // empty file or symlink: no results, not an error
	}

	f, err := elf.Open(fpath)
	if err != nil {
		return Result{}, nil // not an ELF file: no results
	}
	defer f.Close()

	var res Result
	if a.DeveloperMode {
		res.ContainsELF = true
	}

	switch f.Type {
	case elf.ET_DYN, elf.ET_EXEC, elf.ET_REL:
	default:
		return Result{}, nil
	}

	fileABI, ok := elfABI(f)
	if !ok || fileABI.OS == pkgcore.OSUnknown || fileABI.Arch == pkgcore.ArchUnknown {
		return res, nil // a dlopen()-able object may lack a NOTE section
	}

	flags := FlagsFromABI(a.HostABI, fileABI, a.TrackLinuxCompat)
	if flags&FlagLinux == 0 && fileABI.OS != a.HostABI.OS {
		return res, nil // incompatible OS
	}
	if flags&Flag32 == 0 && fileABI.Arch != a.HostABI.Arch {
		return res, nil // incompatible architecture
	}

	needed, err := f.DynString(elf.DT_NEEDED)
	if err != nil {
		return res, nil // not dynamically linked: no results
	}
	soname, _ := f.DynString(elf.DT_SONAME)

	for _, lib := range soname {
		if lib != "" {
			res.Provided = append(res.Provided, NameWithFlags(lib, flags))
		}
	}
	for _, lib := range needed {
		if lib != "" {
			res.Required = append(res.Required, NameWithFlags(lib, flags))
		}
	}

	if a.DeveloperMode {
		switch filepath.Ext(fpath) {
		case ".a":
			res.ContainsStaticLib = true
		case ".la":
			res.ContainsLA = true
		}
	}
	return res, nil
}

// elfABI parses every SHT_NOTE section of f looking for an ABI tag,
// mirroring elf_parse_abi/elf_note_analyse: the last recognized note wins
// (later sections override earlier ones), and the architecture always comes
// from e_machine/.ARM.attributes rather than from the note.
func elfABI(f *elf.File) (pkgcore.ABI, bool) {
	var abi pkgcore.ABI
	found := false
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_NOTE {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		if parseELFNotes(data, f.ByteOrder, &abi) {
			found = true
		}
	}
	abi.Arch = elfArch(f)
	return abi, found
}

// parseELFNotes walks a raw SHT_NOTE section's note records, mirroring
// elf_note_analyse. Each record is namesz/descsz/type (4 bytes each),
// the name padded to a 4-byte boundary, then the desc padded likewise.
func parseELFNotes(data []byte, order binary.ByteOrder, abi *pkgcore.ABI) bool {
	off := 0
	for off+12 <= len(data) {
		namesz := int(order.Uint32(data[off:]))
		descsz := int(order.Uint32(data[off+4:]))
		typ := order.Uint32(data[off+8:])
		off += 12
		if off+namesz > len(data) {
			return false
		}
		name := data[off : off+namesz]
		off += roundup4(namesz)
		if off+descsz > len(data) || off > len(data) {
			return false
		}
		desc := data[off:min(off+descsz, len(data))]
		off += roundup4(descsz)

		nameStr := string(bytes.TrimRight(name, "\x00"))
		switch {
		case nameStr == "GNU" && typ == 1: // NT_GNU_ABI_TAG
			if len(desc) >= 16 {
				var words [4]uint32
				for i := 0; i < 4; i++ {
					words[i] = order.Uint32(desc[i*4:])
				}
				if words[0] < 6 {
					abi.OS = noteOSTable[words[0]]
				} else {
					abi.OS = pkgcore.OSUnknown
				}
				if abi.OS == pkgcore.OSLinux {
					abi.Major, abi.Minor = int(words[1]), int(words[2])
				} else {
					abi.Major, abi.Minor, abi.Patch = int(words[1]), int(words[2]), int(words[3])
				}
				return true
			}
		case (nameStr == "FreeBSD" || nameStr == "DragonFly" || nameStr == "NetBSD" || namesz == 0) && typ == 1: // NT_VERSION
			switch nameStr {
			case "FreeBSD":
				abi.OS = pkgcore.OSFreeBSD
			case "DragonFly":
				abi.OS = pkgcore.OSDragonFly
			case "NetBSD":
				abi.OS = pkgcore.OSNetBSD
			default:
				abi.OS = pkgcore.OSUnknown
			}
			if len(desc) >= 4 {
				version := order.Uint32(desc)
				switch abi.OS {
				case pkgcore.OSFreeBSD:
					abi.Major = int(version) / 100000
					abi.Minor = (int(version) / 1000) % 100
					abi.Patch = int(version) % 1000
				case pkgcore.OSDragonFly:
					abi.Major = int(version) / 100000
					abi.Minor = (((int(version)/100%1000 + 1) / 2) * 2)
				case pkgcore.OSNetBSD:
					abi.Major = (int(version) + 1000000) / 100000000
				}
			}
			return true
		}
	}
	return false
}

func roundup4(n int) int { return (n + 3) &^ 3 }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// elfArch maps an e_machine value (and, for ARM, the .ARM.attributes
// section) to our Arch enum, mirroring elf_parse_arch.
func elfArch(f *elf.File) pkgcore.Arch {
	switch f.Machine {
	case elf.EM_386:
		return pkgcore.ArchI386
	case elf.EM_X86_64:
		return pkgcore.ArchAmd64
	case elf.EM_AARCH64:
		return pkgcore.ArchAarch64
	case elf.EM_ARM:
		for _, sec := range f.Sections {
			if sec.Name != ".ARM.attributes" {
				continue
			}
			data, err := sec.Data()
			if err != nil {
				continue
			}
			return parseARMAttributes(data)
		}
		return pkgcore.ArchUnknown
	case elf.EM_PPC:
		return pkgcore.ArchPowerpc
	case elf.EM_PPC64:
		if f.ByteOrder == binary.BigEndian {
			return pkgcore.ArchPowerpc64
		}
		return pkgcore.ArchPowerpc64le
	case elf.EM_RISCV:
		if f.Class == elf.ELFCLASS32 {
			return pkgcore.ArchRiscv32
		}
		return pkgcore.ArchRiscv64
	}
	return pkgcore.ArchUnknown
}

// parseARMAttributes reads a .ARM.attributes section looking for
// Tag_CPU_arch (tag 6), mirroring aeabi_parse_arm_attributes. It returns
// ArchArmv6 for a Tag_CPU_arch value of 6 and ArchArmv7 for any higher
// value; ARMv4/v5 values (5 and below), unsupported, or malformed sections
// yield ArchUnknown.
func parseARMAttributes(data []byte) pkgcore.Arch {
	if len(data) == 0 || data[0] != 'A' {
		return pkgcore.ArchUnknown
	}
	data = data[1:]
	if len(data) < 4 {
		return pkgcore.ArchUnknown
	}
	sectLen := binary.LittleEndian.Uint32(data)
	if int(sectLen) > len(data) {
		return pkgcore.ArchUnknown
	}
	data = data[4:]

	// Skip the NUL-terminated vendor name.
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return pkgcore.ArchUnknown
	}
	data = data[idx+1:]
	if len(data) == 0 {
		return pkgcore.ArchUnknown
	}

	switch data[0] {
	case 1: // Tag_File
		data = data[1:]
	default:
		return pkgcore.ArchUnknown
	}
	if len(data) < 4 {
		return pkgcore.ArchUnknown
	}
	tagLength := binary.LittleEndian.Uint32(data)
	if tagLength <= 5 || int(tagLength)-4 > len(data)-4 {
		return pkgcore.ArchUnknown
	}
	data = data[4 : tagLength]

	for len(data) > 0 {
		tag := data[0]
		data = data[1:]
		switch {
		case tag == 6: // Tag_CPU_arch
			if len(data) == 0 {
				return pkgcore.ArchUnknown
			}
			val := data[0]
			if val&(1<<7) != 0 {
				return pkgcore.ArchUnknown
			}
			switch {
			case val <= 5:
				return pkgcore.ArchUnknown // ARMv4/v5, unsupported
			case val == 6:
				return pkgcore.ArchArmv6
			default:
				return pkgcore.ArchArmv7
			}
		case tag == 4 || tag == 5 || tag == 32 || tag == 65 || tag == 67:
			idx := bytes.IndexByte(data, 0)
			if idx < 0 {
				return pkgcore.ArchUnknown
			}
			data = data[idx+1:]
		case (tag >= 7 && tag <= 31) || tag == 34 || tag == 36 || tag == 38 ||
			tag == 42 || tag == 44 || tag == 64 || tag == 66 || tag == 68 || tag == 70:
			for len(data) > 0 && data[0]&(1<<7) != 0 {
				data = data[1:]
			}
			if len(data) == 0 {
				return pkgcore.ArchUnknown
			}
			data = data[1:]
		default:
			return pkgcore.ArchUnknown
		}
	}
	return pkgcore.ArchUnknown
}

// ErrNotELF is returned by callers that need to distinguish "not an ELF
// file" from a successful-but-empty analysis; analyzeELF itself never
// returns it, folding that case into a zero Result instead, matching
// pkg_analyse_elf's EPKG_END semantics of "continue, don't fail the build".
var ErrNotELF = fmt.Errorf("binfmt: not an ELF file")
