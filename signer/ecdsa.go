package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"
)

// ECDSASigner implements the ECDSA profile of §4.4: SHA-256 over the
// archive content, DER-encoded as an ECDSA-Sig-Value {r, s}.
type ECDSASigner struct {
	Priv *ecdsa.PrivateKey
	Pub  *ecdsa.PublicKey
}

func (s *ECDSASigner) Type() Type { return ECDSA }

// ecdsaSigValue is the ASN.1 ECDSA-Sig-Value SEQUENCE { r, s INTEGER }.
type ecdsaSigValue struct {
	R, S *big.Int
}

func (s *ECDSASigner) Sign(r io.Reader) ([]byte, error) {
	if s.Priv == nil {
		return nil, fmt.Errorf("signer: ecdsa: no private key configured")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(data)
	rr, ss, err := ecdsa.Sign(rand.Reader, s.Priv, h[:])
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(ecdsaSigValue{R: rr, S: ss})
}

func (s *ECDSASigner) Verify(r io.Reader, sig []byte) error {
	if s.Pub == nil {
		return fmt.Errorf("signer: ecdsa: no public key configured")
	}
	var v ecdsaSigValue
	if _, err := asn1.Unmarshal(sig, &v); err != nil {
		return fmt.Errorf("signer: ecdsa: malformed DER signature: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	h := sha256.Sum256(data)
	if !ecdsa.Verify(s.Pub, h[:], v.R, v.S) {
		return fmt.Errorf("signer: ecdsa: signature verification failed")
	}
	return nil
}

// VerifyCert verifies sig against an inline PKIX-DER-encoded ECDSA public
// key, for the fingerprint trust model's embedded-pubkey records (§4.4).
func (s *ECDSASigner) VerifyCert(keyBytes []byte, r io.Reader, sig []byte) error {
	pub, err := x509.ParsePKIXPublicKey(keyBytes)
	if err != nil {
		return fmt.Errorf("signer: ecdsa: parsing embedded public key: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("signer: ecdsa: embedded public key is not ECDSA")
	}
	tmp := &ECDSASigner{Pub: ecPub}
	return tmp.Verify(r, sig)
}
