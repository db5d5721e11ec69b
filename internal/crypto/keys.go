package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// ParsePrivateKey decodes a 64-character hex secret key.
func ParsePrivateKey(keyHex string) ([]byte, error) {
	if len(keyHex) != 2*PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidPrivateKey, 2*PrivateKeySize, len(keyHex))
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex encoding", ErrInvalidPrivateKey)
	}
	return key, nil
}

// GeneratePrivateKey returns a fresh secret key as hex.
func GeneratePrivateKey() (string, error) {
	for {
		var b [PrivateKeySize]byte
		if _, err := rand.Read(b[:]); err != nil {
			return "", err
		}
		priv, _ := btcec.PrivKeyFromBytes(b[:])
		if !priv.Key.IsZero() {
			return hex.EncodeToString(b[:]), nil
		}
	}
}

// PublicKeyHex returns the BIP-340 x-only public key for a raw secret key.
func PublicKeyHex(privateKey []byte) (string, error) {
	if len(privateKey) != PrivateKeySize {
		return "", fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPrivateKey, PrivateKeySize, len(privateKey))
	}
	_, pub := btcec.PrivKeyFromBytes(privateKey)
	return hex.EncodeToString(schnorr.SerializePubKey(pub)), nil
}
