package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("invalid secp256k1 public key")
)

// PrivateKeySize is the length of a raw secp256k1 scalar.
const PrivateKeySize = 32

// SharedSecret derives the symmetric key both sides of an offer exchange use.
// The remote key is x-only (32 bytes) or compressed (33 bytes); either way it
// is lifted to the even-Y point before the multiplication. The result is
// SHA-256 of the X coordinate of the shared point.
func SharedSecret(privateKey, remotePubKey []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPrivateKey, PrivateKeySize, len(privateKey))
	}

	var compressed [33]byte
	compressed[0] = 0x02
	switch len(remotePubKey) {
	case 32:
		copy(compressed[1:], remotePubKey)
	case 33:
		copy(compressed[1:], remotePubKey[1:])
	default:
		return nil, fmt.Errorf("%w: must be 32 or 33 bytes, got %d", ErrInvalidPublicKey, len(remotePubKey))
	}

	pub, err := btcec.ParsePubKey(compressed[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	priv, _ := btcec.PrivKeyFromBytes(privateKey)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidPrivateKey)
	}

	x := btcec.GenerateSharedSecret(priv, pub)
	sum := sha256.Sum256(x)
	return sum[:], nil
}
