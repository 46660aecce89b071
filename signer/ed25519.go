package signer

import (
	"crypto/ed25519"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Ed25519Signer implements the Ed25519 profile of §4.4: a one-shot
// signature over BLAKE2(raw) of the archive contents (Ed25519 is itself
// already a one-shot, non-prehashed scheme, but the spec calls for signing
// the BLAKE2 digest rather than the raw bytes, matching libpkg's
// pkg_repo_signing pass for this provider).
type Ed25519Signer struct {
	Priv ed25519.PrivateKey
	Pub  ed25519.PublicKey
}

func (s *Ed25519Signer) Type() Type { return Ed25519 }

func blake2Digest(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	sum := blake2b.Sum512(data)
	return sum[:], nil
}

func (s *Ed25519Signer) Sign(r io.Reader) ([]byte, error) {
	if len(s.Priv) == 0 {
		return nil, fmt.Errorf("signer: ed25519: no private key configured")
	}
	digest, err := blake2Digest(r)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(s.Priv, digest), nil
}

func (s *Ed25519Signer) Verify(r io.Reader, sig []byte) error {
	if len(s.Pub) == 0 {
		return fmt.Errorf("signer: ed25519: no public key configured")
	}
	digest, err := blake2Digest(r)
	if err != nil {
		return err
	}
	if !ed25519.Verify(s.Pub, digest, sig) {
		return fmt.Errorf("signer: ed25519: signature verification failed")
	}
	return nil
}

// VerifyCert verifies sig against an inline raw 32-byte Ed25519 public key,
// for the fingerprint trust model's embedded-pubkey records (§4.4).
func (s *Ed25519Signer) VerifyCert(keyBytes []byte, r io.Reader, sig []byte) error {
	if len(keyBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("signer: ed25519: invalid public key length %d", len(keyBytes))
	}
	digest, err := blake2Digest(r)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(keyBytes), digest, sig) {
		return fmt.Errorf("signer: ed25519: certificate signature verification failed")
	}
	return nil
}
