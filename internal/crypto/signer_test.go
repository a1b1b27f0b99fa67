package crypto

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

// Well-known test key; never fund this address.
const testKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

const testAddress = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"

func TestNewSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Address() != testAddress {
		t.Fatalf("address = %s, want %s", s.Address(), testAddress)
	}

	// 0x prefix is accepted.
	s2, err := NewSigner("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner with prefix: %v", err)
	}
	if s2.Address() != s.Address() {
		t.Fatalf("prefixed key derived different address %s", s2.Address())
	}
}

func TestNewSignerRejectsInvalidKey(t *testing.T) {
	for _, key := range []string{"", "zz", "deadbeef"} {
		if _, err := NewSigner(key); err == nil {
			t.Fatalf("NewSigner(%q) succeeded, want error", key)
		}
	}
}

func TestSignDigest(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	digest := sha256.Sum256([]byte("bundle digest input"))

	sig, err := s.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("v = %d, want 27 or 28", v)
	}

	// Deterministic: same digest and key produce the same signature.
	sig2, err := s.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("second SignDigest: %v", err)
	}
	if !bytes.Equal(sig, sig2) {
		t.Fatal("signatures differ for identical digest")
	}
}

func TestSignDigestRejectsWrongLength(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if _, err := s.SignDigest([]byte("short")); err == nil {
		t.Fatal("SignDigest accepted a non-32-byte digest")
	}
}
