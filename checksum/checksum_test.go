package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestComputeSymlinkS1(t *testing.T) {
	dir := t.TempDir()
	target := "foo"
	link := filepath.Join(dir, "bar")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	got, err := ComputeSymlink(link, SHA256Hex)
	if err != nil {
		t.Fatal(err)
	}
	want := "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"
	if got != want {
		t.Errorf("ComputeSymlink = %q, want %q", got, want)
	}
	if New(SHA256Hex, got).String() != "2$1$"+want {
		t.Errorf("full form = %q", New(SHA256Hex, got).String())
	}
}

func TestComputeFileS2(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo")
	if err := os.WriteFile(path, []byte("bar\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gotHex, err := ComputeFile(path, SHA256Hex)
	if err != nil {
		t.Fatal(err)
	}
	wantHex := "7d865e959b2466918c9863afca942d0fb89d7c9ac0c99bafc3749504ded97730"
	if gotHex != wantHex {
		t.Errorf("sha256_hex = %q, want %q", gotHex, wantHex)
	}

	gotB32, err := ComputeFile(path, Blake2Base32)
	if err != nil {
		t.Fatal(err)
	}
	wantB32 := "gf8mcrnmm6p6hg6wa9xkfb98zo8g6nxu8z4q7s93boz8hzf5ogrsr4qgpsb7utd6speio3op18ocyrsa9ms8jj15byttiq7ofbih8gn"
	if gotB32 != wantB32 {
		t.Errorf("blake2_base32 = %q, want %q", gotB32, wantB32)
	}
}

func TestGenerateIdentityS3(t *testing.T) {
	in := IdentityInput{Name: "test", Origin: "origin", Arch: "*"}
	got, err := GenerateIdentity(in, SHA256Hex)
	if err != nil {
		t.Fatal(err)
	}
	want := "2$1$22c6baf7d22b7035be18ffe04f43717f907f4848b3d5d72bfc44bb8435053ea4"
	if got != want {
		t.Errorf("GenerateIdentity = %q, want %q", got, want)
	}
}

func TestValidS5(t *testing.T) {
	if Valid("mehe") {
		t.Error(`Valid("mehe") = true, want false`)
	}
	ok := New(SHA256Hex, "7d865e959b2466918c9863afca942d0fb89d7c9ac0c99bafc3749504ded97730").String()
	if !Valid(ok) {
		t.Errorf("Valid(%q) = false, want true", ok)
	}
	if Valid("2$42$deadbeef") {
		t.Error(`Valid("2$42$deadbeef") = true, want false (unknown type)`)
	}
	if Valid("1$1$deadbeef") {
		t.Error(`Valid("1$1$deadbeef") = true, want false (old version)`)
	}
}

func TestParseRoundTrip(t *testing.T) {
	text := "2$1$deadbeef"
	c, err := Parse(text)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.String(); got != text {
		t.Errorf("Parse(%q).String() = %q", text, got)
	}
	if got, want := c.FileString(), "1$deadbeef"; got != want {
		t.Errorf("FileString() = %q, want %q", got, want)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "nodollarsigns", "2$notanumber$abcd", "2$99$abcd"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestTypeSize(t *testing.T) {
	for typ, want := range map[Type]int{
		SHA256Hex:     32,
		Blake2Base32:  64,
		Blake2sBase32: 32,
	} {
		got, err := TypeSize(typ)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("TypeSize(%d) = %d, want %d", typ, got, want)
		}
	}
	if _, err := TypeSize(typeUnknown); err == nil {
		t.Error("TypeSize(typeUnknown) succeeded, want error")
	}
}
