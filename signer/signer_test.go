package signer

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"testing"
)

func TestRSASignVerifyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("package archive bytes")

	for _, legacy := range []bool{false, true} {
		s := &RSASigner{Priv: priv, Pub: &priv.PublicKey, Legacy: legacy}
		sig, err := s.Sign(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("legacy=%v: Sign: %v", legacy, err)
		}
		v := &RSASigner{Pub: &priv.PublicKey}
		if err := v.Verify(bytes.NewReader(data), sig); err != nil {
			t.Fatalf("legacy=%v: Verify: %v", legacy, err)
		}
	}
}

func TestRSAVerifyRejectsTamperedData(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	s := &RSASigner{Priv: priv, Pub: &priv.PublicKey}
	sig, err := s.Sign(bytes.NewReader([]byte("original")))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(bytes.NewReader([]byte("tampered")), sig); err == nil {
		t.Fatal("Verify should have rejected tampered data")
	}
}

func TestECDSASignVerifyRoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	s := &ECDSASigner{Priv: priv, Pub: &priv.PublicKey}
	data := []byte("repo archive")
	sig, err := s.Sign(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(bytes.NewReader(data), sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	s := &Ed25519Signer{Priv: priv, Pub: pub}
	data := []byte("pkg contents")
	sig, err := s.Sign(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(bytes.NewReader(data), sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := (&Ed25519Signer{}).VerifyCert(pub, bytes.NewReader(data), sig); err != nil {
		t.Fatalf("VerifyCert: %v", err)
	}
}

func TestMagicWrapUnwrap(t *testing.T) {
	sig := []byte{0x01, 0x02, 0x03}
	wrapped := WrapMagic(ECDSA, sig)
	typ, unwrapped := UnwrapMagic(wrapped)
	if typ != ECDSA {
		t.Fatalf("type = %v, want ECDSA", typ)
	}
	if !bytes.Equal(unwrapped, sig) {
		t.Fatalf("unwrapped = %v, want %v", unwrapped, sig)
	}
}

func TestUnwrapMagicAbsentDefaultsToRSA(t *testing.T) {
	typ, sig := UnwrapMagic([]byte("rawsigbytes"))
	if typ != RSA {
		t.Fatalf("type = %v, want RSA", typ)
	}
	if string(sig) != "rawsigbytes" {
		t.Fatalf("sig = %q", sig)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []Record{
		{Tag: tagPubkey, Name: "key1", SigType: "eddsa", Payload: []byte{1, 2, 3}},
		{Tag: tagSignature, Name: "key1", SigType: "eddsa", Payload: []byte{4, 5, 6}},
	}
	for _, rec := range want {
		if err := WriteRecord(&buf, rec); err != nil {
			t.Fatal(err)
		}
	}
	got, err := ReadRecords(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i].Name || got[i].SigType != want[i].SigType || !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFingerprintVerifyTrustedAndRevoked(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("signed archive content")
	s := &Ed25519Signer{Priv: priv}
	realSig, err := s.Sign(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	records := []Record{
		{Tag: tagPubkey, Name: "repo-key", SigType: "eddsa", Payload: pub},
		{Tag: tagSignature, Name: "repo-key", SigType: "eddsa", Payload: realSig},
	}
	fp := Fingerprint(pub)
	dataReader := func() (io.Reader, error) { return bytes.NewReader(data), nil }

	trusted := &TrustStore{Trusted: map[string]bool{fp: true}, Revoked: map[string]bool{}}
	if err := VerifyFingerprintMode(records, trusted, dataReader); err != nil {
		t.Fatalf("expected success for trusted fingerprint, got %v", err)
	}

	revoked := &TrustStore{Trusted: map[string]bool{fp: true}, Revoked: map[string]bool{fp: true}}
	if err := VerifyFingerprintMode(records, revoked, dataReader); err == nil {
		t.Fatal("expected failure for revoked fingerprint")
	}
}
