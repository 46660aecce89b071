// Package checksum computes and parses the versioned content checksums
// used as a package's stable identity (§4.1 of the core spec). The digest
// algorithm, z-base32 alphabet, and pkg-identity field list mirror
// libpkg's pkg_checksum.c byte-for-byte so that existing repositories'
// checksums keep validating.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
)

// Type is the numeric checksum-type enum embedded in a Checksum's text
// form. The ordering is load-bearing: it matches libpkg's
// pkg_hash_type_t exactly, so existing "VERSION$TYPE$DIGEST" strings parse
// the same way here as they do there.
type Type int

const (
	SHA256Base32 Type = iota
	SHA256Hex
	Blake2Base32
	SHA256Raw
	Blake2Raw
	Blake2sBase32
	Blake2sRaw
	typeUnknown
)

// CurrentVersion is the checksum format version this package produces.
// Only checksums at this version are considered Valid.
const CurrentVersion = 2

// z-base32, the human-oriented base-32 alphabet (Zimmermann).
const b32alphabet = "ybndrfg8ejkmcpqxot1uwisza345h769"

// TypeSize returns the raw digest length in bytes for typ, so that
// raw-returning callers can size their buffers without guessing.
func TypeSize(typ Type) (int, error) {
	switch typ {
	case SHA256Base32, SHA256Hex, SHA256Raw:
		return sha256.Size, nil
	case Blake2Base32, Blake2Raw:
		return blake2b.Size, nil
	case Blake2sBase32, Blake2sRaw:
		return blake2s.Size, nil
	default:
		return 0, fmt.Errorf("checksum: unsupported type %d", typ)
	}
}

func hashOf(typ Type, data []byte) ([]byte, error) {
	switch typ {
	case SHA256Base32, SHA256Hex, SHA256Raw:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case Blake2Base32, Blake2Raw:
		sum := blake2b.Sum512(data)
		return sum[:], nil
	case Blake2sBase32, Blake2sRaw:
		sum := blake2s.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("checksum: unsupported type %d", typ)
	}
}

func encode(typ Type, raw []byte) (string, error) {
	switch typ {
	case SHA256Base32, Blake2Base32, Blake2sBase32:
		return encodeBase32(raw), nil
	case SHA256Hex, SHA256Raw, Blake2Raw, Blake2sRaw:
		// Raw types still need a printable digest text form; the raw bytes
		// themselves are exposed through ComputeRaw for callers who asked
		// for them explicitly.
		return hex.EncodeToString(raw), nil
	default:
		return "", fmt.Errorf("checksum: unsupported type %d", typ)
	}
}

// encodeBase32 implements the same bit-packing as libpkg's
// pkg_checksum_encode_base32: 5 input bytes become 8 output characters,
// processed as a running "remain" accumulator rather than a lookup table.
func encodeBase32(in []byte) string {
	var out strings.Builder
	remain := -1
	for i, b := range in {
		switch i % 5 {
		case 0:
			x := int(b)
			remain = int(b) >> 5
			out.WriteByte(b32alphabet[x&0x1F])
		case 1:
			x := remain | int(b)<<3
			out.WriteByte(b32alphabet[x&0x1F])
			out.WriteByte(b32alphabet[(x>>5)&0x1F])
			remain = x >> 10
		case 2:
			x := remain | int(b)<<1
			out.WriteByte(b32alphabet[x&0x1F])
			remain = x >> 5
		case 3:
			x := remain | int(b)<<4
			out.WriteByte(b32alphabet[x&0x1F])
			out.WriteByte(b32alphabet[(x>>5)&0x1F])
			remain = (x >> 10) & 0x3
		case 4:
			x := remain | int(b)<<2
			out.WriteByte(b32alphabet[x&0x1F])
			out.WriteByte(b32alphabet[(x>>5)&0x1F])
			remain = -1
		}
	}
	if remain >= 0 {
		out.WriteByte(b32alphabet[remain])
	}
	return out.String()
}

// Checksum is a parsed "VERSION$TYPE$DIGEST" value (§4.1, §4.3 "sum").
type Checksum struct {
	Version int
	Type    Type
	Digest  string // the encoded digest, not including VERSION$TYPE$
}

// String renders the full "VERSION$TYPE$DIGEST" form.
func (c Checksum) String() string {
	return fmt.Sprintf("%d$%d$%s", c.Version, int(c.Type), c.Digest)
}

// FileString renders the on-disk-file form, which drops the VERSION$
// prefix: "TYPE$DIGEST".
func (c Checksum) FileString() string {
	return fmt.Sprintf("%d$%s", int(c.Type), c.Digest)
}

// Compute hashes data with typ and returns its encoded text form (without
// the VERSION$TYPE$ envelope — callers building a full Checksum wrap this
// themselves via New).
func Compute(data []byte, typ Type) (string, error) {
	raw, err := hashOf(typ, data)
	if err != nil {
		return "", err
	}
	return encode(typ, raw)
}

// ComputeRaw hashes data with typ and returns the raw digest bytes. The
// caller can size a buffer ahead of time with TypeSize.
func ComputeRaw(data []byte, typ Type) ([]byte, error) {
	return hashOf(typ, data)
}

// ComputeReader hashes everything read from r with typ. It reads to EOF;
// no seek restoration is required or attempted.
func ComputeReader(r io.Reader, typ Type) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return Compute(data, typ)
}

// ComputeFile hashes the full contents of the file at path.
func ComputeFile(path string, typ Type) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ComputeReader(f, typ)
}

// ComputeSymlink digests the *target* string of the symlink at path (the
// readlink(2) result), not the file it points to (§4.1).
func ComputeSymlink(path string, typ Type) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", err
	}
	return Compute([]byte(target), typ)
}

// New wraps an already-computed digest text in the current-version
// envelope.
func New(typ Type, digest string) Checksum {
	return Checksum{Version: CurrentVersion, Type: typ, Digest: digest}
}

// Parse parses the "VERSION$TYPE$DIGEST" text form. It returns an error for
// malformed text or an unrecognized type.
func Parse(text string) (Checksum, error) {
	parts := strings.SplitN(text, "$", 3)
	if len(parts) != 3 {
		return Checksum{}, fmt.Errorf("checksum: malformed checksum %q", text)
	}
	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return Checksum{}, fmt.Errorf("checksum: invalid version in %q: %w", text, err)
	}
	typ, err := strconv.Atoi(parts[1])
	if err != nil {
		return Checksum{}, fmt.Errorf("checksum: invalid type in %q: %w", text, err)
	}
	if typ < 0 || Type(typ) >= typeUnknown {
		return Checksum{}, fmt.Errorf("checksum: unknown checksum type %d", typ)
	}
	return Checksum{Version: version, Type: Type(typ), Digest: parts[2]}, nil
}

// Valid reports whether text is a syntactically valid, current-version
// checksum: at least 4 characters, a "$"-delimited version and type, with
// the version equal to CurrentVersion and the type known (§8 S5).
func Valid(text string) bool {
	if len(text) < 4 {
		return false
	}
	sep := strings.IndexByte(text, '$')
	if sep < 0 || sep == len(text)-1 {
		return false
	}
	version, err := strconv.Atoi(text[:sep])
	if err != nil || version != CurrentVersion {
		return false
	}
	rest := text[sep+1:]
	sep2 := strings.IndexByte(rest, '$')
	if sep2 < 0 || sep2 == len(rest)-1 {
		return false
	}
	typ, err := strconv.Atoi(rest[:sep2])
	if err != nil || typ < 0 || Type(typ) >= typeUnknown {
		return false
	}
	return true
}

// ValidationResult is the outcome of Validate.
type ValidationResult int

const (
	Ok ValidationResult = iota
	Mismatch
	IoError
)

// Validate recomputes the checksum of the file at path and compares it
// against expectedText, using whichever type expectedText declares.
func Validate(path, expectedText string) (ValidationResult, error) {
	expected, err := Parse(expectedText)
	if err != nil {
		return IoError, err
	}
	got, err := ComputeFile(path, expected.Type)
	if err != nil {
		return IoError, err
	}
	if got != expected.Digest {
		return Mismatch, nil
	}
	return Ok, nil
}

// identityEntry is one (field, value) pair fed into the pkg-identity
// digest, mirroring libpkg's pkg_checksum_entry.
type identityEntry struct {
	field, value string
}

// IdentityInput is the subset of a package's fields the pkg-identity
// digest is computed over (§4.1 "Pkg-identity digest").
type IdentityInput struct {
	Name, Origin, Version, Arch string
	Options                     []struct{ Key, Value string }
	ShlibsRequired              []string
	ShlibsProvided              []string
	Users                       []string
	Groups                      []string
	DepUIDs                     []string
}

// GenerateIdentity computes a package's identity checksum: the "2$TYPE$…"
// digest over a sorted sequence of (field, value) entries covering name,
// origin, version, arch, one entry per option, per required/provided
// shlib, per user, per group, and per dependency uid. Entries are sorted
// by (field, value) and hashed by concatenating field and value bytes with
// no separator, exactly as libpkg's pkg_checksum_generate does.
func GenerateIdentity(in IdentityInput, typ Type) (string, error) {
	var entries []identityEntry
	if in.Name != "" {
		entries = append(entries, identityEntry{"name", in.Name})
	}
	if in.Origin != "" {
		entries = append(entries, identityEntry{"origin", in.Origin})
	}
	if in.Version != "" {
		entries = append(entries, identityEntry{"version", in.Version})
	}
	if in.Arch != "" {
		entries = append(entries, identityEntry{"arch", in.Arch})
	}
	for _, o := range in.Options {
		entries = append(entries, identityEntry{o.Key, o.Value})
	}
	for _, s := range in.ShlibsRequired {
		entries = append(entries, identityEntry{"required_shlib", s})
	}
	for _, s := range in.ShlibsProvided {
		entries = append(entries, identityEntry{"provided_shlib", s})
	}
	for _, u := range in.Users {
		entries = append(entries, identityEntry{"user", u})
	}
	for _, g := range in.Groups {
		entries = append(entries, identityEntry{"group", g})
	}
	for _, d := range in.DepUIDs {
		entries = append(entries, identityEntry{"depend", d})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].field != entries[j].field {
			return entries[i].field < entries[j].field
		}
		return entries[i].value < entries[j].value
	})

	h := sha256.New()
	switch typ {
	case SHA256Base32, SHA256Hex, SHA256Raw:
		// h is already sha256; fall through.
	default:
		// Only the SHA-256 family is wired for identity digests today,
		// matching libpkg's checksum_types table which only implements
		// SHA256_BASE32/SHA256_HEX hash functions (BLAKE2 entries share
		// the same table slot but are never reached by
		// pkg_checksum_generate's callers).
		return "", fmt.Errorf("checksum: identity digest does not support type %d", typ)
	}
	for _, e := range entries {
		io.WriteString(h, e.field)
		io.WriteString(h, e.value)
	}
	raw := h.Sum(nil)
	digest, err := encode(typ, raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d$%d$%s", CurrentVersion, int(typ), digest), nil
}
