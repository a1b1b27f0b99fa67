package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs 32-byte bundle digests with a secp256k1 key. Instances
// are built per invocation from secret material resolved at execution
// time and must be discarded with it; they hold the raw key in memory
// and are never serialised.
//
// ethcrypto.Sign is deterministic for a fixed (digest, key) pair, so
// identical unsigned bundles produce identical signatures run-to-run.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key
// (with or without 0x prefix).
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the checksummed hex address derived from the signer's
// private key.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignDigest signs a 32-byte digest and returns the 65-byte signature
// (r || s || v, with v in {27, 28}).
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto/signer: digest must be 32 bytes, got %d", len(digest))
	}

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; relays expect v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return sig, nil
}
