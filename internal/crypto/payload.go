package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

const (
	// Version is the only framing version this package reads or writes.
	Version   byte = 1
	NonceSize      = chacha20.NonceSizeX // 24
	KeySize        = chacha20.KeySize    // 32

	headerSize = 1 + NonceSize
)

var (
	ErrUnsupportedVersion = errors.New("encryption version unsupported")
	ErrShortPayload       = errors.New("payload too short")
	ErrInvalidSecret      = errors.New("invalid shared secret")
)

// Payload is an XChaCha20 ciphertext and the nonce it was produced with.
// There is no authentication tag: decrypting with the wrong secret returns
// garbage rather than an error.
type Payload struct {
	Nonce      [NonceSize]byte
	Ciphertext []byte
}

// Encrypt XORs plaintext with the keystream for secret and a fresh nonce.
func Encrypt(plaintext, secret []byte) (*Payload, error) {
	p := &Payload{}
	if _, err := rand.Read(p.Nonce[:]); err != nil {
		return nil, err
	}
	ct, err := xor(secret, p.Nonce[:], plaintext)
	if err != nil {
		return nil, err
	}
	p.Ciphertext = ct
	return p, nil
}

// Decrypt recovers the plaintext of p under secret.
func Decrypt(p *Payload, secret []byte) ([]byte, error) {
	return xor(secret, p.Nonce[:], p.Ciphertext)
}

func xor(secret, nonce, in []byte) ([]byte, error) {
	if len(secret) != KeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidSecret, KeySize, len(secret))
	}
	c, err := chacha20.NewUnauthenticatedCipher(secret, nonce)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	c.XORKeyStream(out, in)
	return out, nil
}

// Frame encodes p as base64(version || nonce || ciphertext).
func Frame(p *Payload) string {
	wire := make([]byte, 0, headerSize+len(p.Ciphertext))
	wire = append(wire, Version)
	wire = append(wire, p.Nonce[:]...)
	wire = append(wire, p.Ciphertext...)
	return base64.StdEncoding.EncodeToString(wire)
}

// Unframe is the inverse of Frame.
func Unframe(s string) (*Payload, error) {
	wire, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	if len(wire) == 0 {
		return nil, ErrShortPayload
	}
	if wire[0] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, wire[0])
	}
	if len(wire) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, minimum %d", ErrShortPayload, len(wire), headerSize)
	}

	p := &Payload{Ciphertext: append([]byte(nil), wire[headerSize:]...)}
	copy(p.Nonce[:], wire[1:headerSize])
	return p, nil
}
