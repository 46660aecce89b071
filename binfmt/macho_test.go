package binfmt

import (
	"encoding/binary"
	"testing"
)

func TestDarwinMajor(t *testing.T) {
	cases := []struct {
		platform uint32
		major    int
		want     int
	}{
		{platformMacOS, 14, 23},  // Sonoma -> Darwin 23
		{platformMacOS, 11, 20},  // Big Sur -> Darwin 20
		{platformMacOS, 10, 14},  // Mojave-era 10.x -> Darwin 10+4
		{platformIOS, 15, 21},
		{platformWatchOS, 8, 21},
		{99, 1, 0}, // unknown platform
	}
	for _, c := range cases {
		if got := darwinMajor(c.platform, c.major); got != c.want {
			t.Errorf("darwinMajor(%d, %d) = %d, want %d", c.platform, c.major, got, c.want)
		}
	}
}

func TestDecodeVersion(t *testing.T) {
	// 14.5.1 packed as major<<16 | minor<<8 | patch
	v := uint32(14)<<16 | uint32(5)<<8 | uint32(1)
	major, minor, patch := decodeVersion(v)
	if major != 14 || minor != 5 || patch != 1 {
		t.Errorf("decodeVersion(%#x) = %d.%d.%d, want 14.5.1", v, major, minor, patch)
	}
}

func TestDylibName(t *testing.T) {
	// dylib_command: cmd(4) cmdsize(4) name-offset(4) timestamp(4)
	// current_version(4) compat_version(4), name string at offset 24.
	name := "/usr/lib/libSystem.B.dylib"
	raw := make([]byte, 24+len(name)+1)
	binary.LittleEndian.PutUint32(raw[0:4], lcIDDylib)
	binary.LittleEndian.PutUint32(raw[8:12], 24) // name offset
	copy(raw[24:], name)

	got, ok := dylibName(raw)
	if !ok || got != name {
		t.Errorf("dylibName = %q, %v, want %q, true", got, ok, name)
	}
}

func TestAddDylibSkipsSystemPathsUnlessBaseAllowed(t *testing.T) {
	var res Result
	addDylib(&res, "/usr/lib/libSystem.B.dylib", false, false)
	if len(res.Required) != 0 {
		t.Errorf("expected system dylib to be skipped, got %v", res.Required)
	}

	addDylib(&res, "/usr/lib/libSystem.B.dylib", true, false)
	if len(res.Required) != 1 || res.Required[0] != "libSystem.B.dylib" {
		t.Errorf("expected basename kept with AllowBaseShlibs, got %v", res.Required)
	}
}

func TestAddDylibProvidesUsesBasename(t *testing.T) {
	var res Result
	addDylib(&res, "@rpath/libfoo.dylib", false, true)
	if len(res.Provided) != 1 || res.Provided[0] != "libfoo.dylib" {
		t.Errorf("expected provided basename, got %v", res.Provided)
	}
}

func TestMachoCpuToArch(t *testing.T) {
	if got := machoCpuToArch(0xdeadbeef); got != 0 {
		t.Errorf("unknown cpu should map to ArchUnknown, got %v", got)
	}
}
