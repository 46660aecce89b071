package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
)

// RSASigner implements both RSA profiles of §4.4. Legacy signs
// SHA1(hex(SHA256(data))) with PKCS1v15 ("a historical quirk preserved for
// compatibility: the pre-hashed input is the 64-char hex string, not the
// raw digest"); the corrected profile signs the raw SHA-256 digest
// directly. Which profile Sign uses is fixed at construction; Verify
// always tries both so existing signed repositories keep validating
// regardless of which profile produced them (§9 open question).
type RSASigner struct {
	Priv   *rsa.PrivateKey // nil for a verify-only Signer
	Pub    *rsa.PublicKey
	Legacy bool // Sign uses the legacy pre-hash profile when true
}

func (s *RSASigner) Type() Type {
	if s.Legacy {
		return RSA
	}
	return RSA2
}

// legacyPreHash reproduces libpkg's historical "sign the hex string" input:
// SHA1 over the 64-character lowercase hex encoding of SHA256(data).
func legacyPreHash(data []byte) [sha1.Size]byte {
	sum256 := sha256.Sum256(data)
	hexDigest := hex.EncodeToString(sum256[:])
	return sha1.Sum([]byte(hexDigest))
}

func (s *RSASigner) Sign(r io.Reader) ([]byte, error) {
	if s.Priv == nil {
		return nil, fmt.Errorf("signer: rsa: no private key configured")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if s.Legacy {
		h := legacyPreHash(data)
		return rsa.SignPKCS1v15(rand.Reader, s.Priv, crypto.SHA1, h[:])
	}
	h := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, s.Priv, crypto.SHA256, h[:])
}

// Verify tries the corrected (raw-digest) profile first, then falls back to
// the legacy pre-hash profile, so either signing path validates against the
// same public key without the caller needing to know which one produced
// the signature.
func (s *RSASigner) Verify(r io.Reader, sig []byte) error {
	if s.Pub == nil {
		return fmt.Errorf("signer: rsa: no public key configured")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	h := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(s.Pub, crypto.SHA256, h[:], sig); err == nil {
		return nil
	}
	legacy := legacyPreHash(data)
	if err := rsa.VerifyPKCS1v15(s.Pub, crypto.SHA1, legacy[:], sig); err == nil {
		return nil
	}
	return fmt.Errorf("signer: rsa: signature verification failed (tried rsa2 and legacy rsa profiles)")
}

// VerifyCert verifies sig against an inline PKIX-DER-encoded RSA public key,
// for the fingerprint trust model's embedded-pubkey records (§4.4).
func (s *RSASigner) VerifyCert(keyBytes []byte, r io.Reader, sig []byte) error {
	pub, err := x509.ParsePKIXPublicKey(keyBytes)
	if err != nil {
		return fmt.Errorf("signer: rsa: parsing embedded public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("signer: rsa: embedded public key is not RSA")
	}
	tmp := &RSASigner{Pub: rsaPub}
	return tmp.Verify(r, sig)
}
