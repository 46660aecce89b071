package binfmt

import (
	"encoding/binary"
	"testing"

	pkgcore "github.com/freebsd/pkg-sub001"
)

// buildNote assembles one ELF note record: namesz/descsz/type header, the
// NUL-padded name, then the 4-byte-aligned desc.
func buildNote(order binary.ByteOrder, name string, typ uint32, desc []byte) []byte {
	namesz := uint32(len(name) + 1) // NUL included, matching libelf's convention
	descsz := uint32(len(desc))
	buf := make([]byte, 0, 12+roundup4(int(namesz))+roundup4(int(descsz)))
	hdr := make([]byte, 12)
	order.PutUint32(hdr[0:], namesz)
	order.PutUint32(hdr[4:], descsz)
	order.PutUint32(hdr[8:], typ)
	buf = append(buf, hdr...)
	nameBytes := make([]byte, roundup4(int(namesz)))
	copy(nameBytes, name)
	buf = append(buf, nameBytes...)
	descBytes := make([]byte, roundup4(int(descsz)))
	copy(descBytes, desc)
	buf = append(buf, descBytes...)
	return buf
}

func TestParseELFNotesFreeBSDStyle(t *testing.T) {
	order := binary.LittleEndian
	desc := make([]byte, 4)
	osversion := uint32(1302000) // FreeBSD 13.2
	order.PutUint32(desc, osversion)
	data := buildNote(order, "FreeBSD", 1, desc)

	var abi pkgcore.ABI
	if !parseELFNotes(data, order, &abi) {
		t.Fatal("parseELFNotes returned false")
	}
	if abi.OS != pkgcore.OSFreeBSD {
		t.Errorf("OS = %v, want FreeBSD", abi.OS)
	}
	if abi.Major != 13 || abi.Minor != 2 {
		t.Errorf("version = %d.%d, want 13.2", abi.Major, abi.Minor)
	}
}

func TestParseELFNotesGNUABITag(t *testing.T) {
	order := binary.LittleEndian
	desc := make([]byte, 16)
	order.PutUint32(desc[0:], 0) // ELF_NOTE_OS_LINUX
	order.PutUint32(desc[4:], 5)
	order.PutUint32(desc[8:], 15)
	order.PutUint32(desc[12:], 0)
	data := buildNote(order, "GNU", 1, desc)

	var abi pkgcore.ABI
	if !parseELFNotes(data, order, &abi) {
		t.Fatal("parseELFNotes returned false")
	}
	if abi.OS != pkgcore.OSLinux {
		t.Errorf("OS = %v, want Linux", abi.OS)
	}
	if abi.Major != 5 || abi.Minor != 15 {
		t.Errorf("version = %d.%d, want 5.15", abi.Major, abi.Minor)
	}
}

func TestParseARMAttributesV7(t *testing.T) {
	// "A" + section-length(4) + vendor "aeabi\0" + Tag_File(1) + tag_length(4)
	// + Tag_CPU_arch(6) + value(10 = ARMv7)
	var buf []byte
	buf = append(buf, 'A')
	lenPlaceholder := len(buf)
	buf = append(buf, 0, 0, 0, 0) // section length, patched below
	buf = append(buf, []byte("aeabi\x00")...)
	buf = append(buf, 1) // Tag_File
	tagLenOff := len(buf)
	buf = append(buf, 0, 0, 0, 0) // tag_length placeholder
	buf = append(buf, 6)          // Tag_CPU_arch
	buf = append(buf, 10)         // ARMv7
	tagLen := uint32(len(buf) - tagLenOff) // counts itself + content, not the Tag_File byte
	binary.LittleEndian.PutUint32(buf[tagLenOff:], tagLen)
	sectLen := uint32(len(buf) - lenPlaceholder)
	binary.LittleEndian.PutUint32(buf[lenPlaceholder:], sectLen)

	if got := parseARMAttributes(buf); got != pkgcore.ArchArmv7 {
		t.Errorf("parseARMAttributes = %v, want ArchArmv7", got)
	}
}

func TestParseARMAttributesMalformed(t *testing.T) {
	if got := parseARMAttributes(nil); got != pkgcore.ArchUnknown {
		t.Errorf("empty input = %v, want ArchUnknown", got)
	}
	if got := parseARMAttributes([]byte("not-arm-attrs")); got != pkgcore.ArchUnknown {
		t.Errorf("garbage input = %v, want ArchUnknown", got)
	}
}

func TestRoundup4(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8}
	for in, want := range cases {
		if got := roundup4(in); got != want {
			t.Errorf("roundup4(%d) = %d, want %d", in, got, want)
		}
	}
}
