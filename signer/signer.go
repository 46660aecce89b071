// Package signer implements the pluggable digital-signature providers of
// §4.4: RSA (legacy and corrected pre-hash profiles), ECDSA, and Ed25519,
// plus the fingerprint trust model used when a repository's
// signature_type is "fingerprint" rather than a single embedded pubkey.
//
// Every implementation satisfies the same narrow plugin contract the spec
// describes for libpkg's signer plugins: new/sign/verify over a path (or
// file descriptor) and an opaque signature blob. Go's interface values take
// the place of the C plugin vtable.
package signer

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Type identifies a signature scheme. The wire magic "$PKGSIGN:TYPE$"
// embeds the lowercase String() spelling of one of these.
type Type int

const (
	// RSA is the legacy profile: PKCS1v15 over SHA1(hex(SHA256(data))),
	// preserved exactly for backward compatibility with existing signed
	// repositories (§9 open question).
	RSA Type = iota
	// RSA2 is the corrected profile: PKCS1v15 over the raw SHA-256 digest.
	RSA2
	ECDSA
	Ed25519
)

func (t Type) String() string {
	switch t {
	case RSA:
		return "rsa"
	case RSA2:
		return "rsa2"
	case ECDSA:
		return "ecdsa"
	case Ed25519:
		return "eddsa"
	default:
		return "unknown"
	}
}

// ParseType parses the TYPE component of a "$PKGSIGN:TYPE$" magic or a
// repository's configured signature_type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "rsa":
		return RSA, nil
	case "rsa2":
		return RSA2, nil
	case "ecdsa":
		return ECDSA, nil
	case "eddsa", "ed25519":
		return Ed25519, nil
	default:
		return 0, fmt.Errorf("signer: unknown signature type %q", s)
	}
}

// magicPrefix/magicSuffix frame the embedded signature type tag that
// precedes the raw signature bytes inside a packaged archive (§4.4).
const (
	magicPrefix = "$PKGSIGN:"
	magicSuffix = "$"
)

// WrapMagic prepends the "$PKGSIGN:TYPE$" magic to a raw signature blob.
func WrapMagic(t Type, sig []byte) []byte {
	out := make([]byte, 0, len(magicPrefix)+8+len(magicSuffix)+len(sig))
	out = append(out, magicPrefix...)
	out = append(out, t.String()...)
	out = append(out, magicSuffix...)
	out = append(out, sig...)
	return out
}

// UnwrapMagic splits a signature blob into its Type and raw bytes. A blob
// with no recognized magic is assumed to be "rsa", per §4.4: "if the magic
// is absent the signature is assumed to be rsa".
func UnwrapMagic(blob []byte) (Type, []byte) {
	if !bytes.HasPrefix(blob, []byte(magicPrefix)) {
		return RSA, blob
	}
	rest := blob[len(magicPrefix):]
	end := bytes.IndexByte(rest, '$')
	if end < 0 {
		return RSA, blob
	}
	typ, err := ParseType(string(rest[:end]))
	if err != nil {
		return RSA, blob
	}
	return typ, rest[end+1:]
}

// Signer is the plugin contract of §4.4: sign(ctx, path, &sig, &len) /
// verify(ctx, key_path, sig, sig_len, fd) translated to Go methods. Each
// concrete signer is stateless once constructed (its exported fields carry
// any provider-specific configuration, such as a loaded private key).
type Signer interface {
	Type() Type
	// Sign computes a signature over r's full contents, returning the raw
	// (unwrapped) signature bytes.
	Sign(r io.Reader) ([]byte, error)
	// Verify checks sig against r's full contents using the public key
	// material the Signer was constructed with.
	Verify(r io.Reader, sig []byte) error
}

// CertVerifier is satisfied by signers that can also verify against an
// inline key blob rather than one baked into the Signer at construction
// time — libpkg's verify_cert plugin entry point, used by the fingerprint
// trust model (§4.4) where the public key travels inside the signed
// archive itself.
type CertVerifier interface {
	VerifyCert(keyBytes []byte, r io.Reader, sig []byte) error
}
