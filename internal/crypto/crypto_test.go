package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func generateTestKeypair(t *testing.T) ([]byte, []byte) {
	t.Helper()
	privHex, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	priv, err := ParsePrivateKey(privHex)
	if err != nil {
		t.Fatal(err)
	}
	pubHex, err := PublicKeyHex(priv)
	if err != nil {
		t.Fatal(err)
	}
	pub, _ := hex.DecodeString(pubHex)
	return priv, pub
}

func testSecret(t *testing.T) []byte {
	t.Helper()
	a, _ := generateTestKeypair(t)
	_, b := generateTestKeypair(t)
	s, err := SharedSecret(a, b)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSharedSecretSymmetry(t *testing.T) {
	for i := 0; i < 16; i++ {
		alicePriv, alicePub := generateTestKeypair(t)
		bobPriv, bobPub := generateTestKeypair(t)

		ab, err := SharedSecret(alicePriv, bobPub)
		if err != nil {
			t.Fatal(err)
		}
		ba, err := SharedSecret(bobPriv, alicePub)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(ab, ba) {
			t.Fatalf("shared secrets differ: %x vs %x", ab, ba)
		}
		if len(ab) != 32 {
			t.Fatalf("expected 32-byte secret, got %d", len(ab))
		}
	}
}

func TestSharedSecretIgnoresParityByte(t *testing.T) {
	priv, _ := generateTestKeypair(t)
	_, remote := generateTestKeypair(t)

	xOnly, err := SharedSecret(priv, remote)
	if err != nil {
		t.Fatal(err)
	}
	odd, err := SharedSecret(priv, append([]byte{0x03}, remote...))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(xOnly, odd) {
		t.Fatal("parity byte should be forced to the even convention")
	}
}

func TestSharedSecretWithOddCompressedKey(t *testing.T) {
	// Whatever the real parity of the peer key, both sides agree because
	// only the X coordinate of the shared point is used.
	for i := 0; i < 16; i++ {
		alicePriv, _ := generateTestKeypair(t)
		bobPriv, bobXOnly := generateTestKeypair(t)

		_, alicePoint := btcec.PrivKeyFromBytes(alicePriv)
		aliceCompressed := alicePoint.SerializeCompressed()

		ab, err := SharedSecret(alicePriv, bobXOnly)
		if err != nil {
			t.Fatal(err)
		}
		ba, err := SharedSecret(bobPriv, aliceCompressed)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(ab, ba) {
			t.Fatal("shared secrets differ for compressed peer key")
		}
	}
}

func TestSharedSecretInvalidPrivateKeyLength(t *testing.T) {
	_, pub := generateTestKeypair(t)
	_, err := SharedSecret(make([]byte, 31), pub)
	if !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey, got %v", err)
	}
}

func TestSharedSecretInvalidPublicKey(t *testing.T) {
	priv, _ := generateTestKeypair(t)
	if _, err := SharedSecret(priv, make([]byte, 16)); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey for short key, got %v", err)
	}
	// x = p (field prime) is not a valid coordinate.
	bad, _ := hex.DecodeString("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f")
	if _, err := SharedSecret(priv, bad); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey for off-curve key, got %v", err)
	}
}

func TestParsePrivateKey(t *testing.T) {
	if _, err := ParsePrivateKey("abcd"); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey for short hex, got %v", err)
	}
	notHex := "zz" + string(bytes.Repeat([]byte("0"), 62))
	if _, err := ParsePrivateKey(notHex); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey for bad hex, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	secret := testSecret(t)
	for _, msg := range []string{
		"",
		"Hello Bob!",
		`{"offer":"abc123","amount":21}`,
		"Hello \U0001F30D❤️ 日本語",
	} {
		p, err := Encrypt([]byte(msg), secret)
		if err != nil {
			t.Fatal(err)
		}
		if len(p.Ciphertext) != len(msg) {
			t.Fatalf("ciphertext length %d, plaintext length %d", len(p.Ciphertext), len(msg))
		}
		pt, err := Decrypt(p, secret)
		if err != nil {
			t.Fatal(err)
		}
		if string(pt) != msg {
			t.Fatalf("expected %q, got %q", msg, pt)
		}
	}
}

func TestFreshNonces(t *testing.T) {
	secret := testSecret(t)
	p1, _ := Encrypt([]byte("same"), secret)
	p2, _ := Encrypt([]byte("same"), secret)
	if p1.Nonce == p2.Nonce {
		t.Fatal("nonces should differ between calls")
	}
	if bytes.Equal(p1.Ciphertext, p2.Ciphertext) {
		t.Fatal("ciphertexts should differ for same plaintext")
	}
}

func TestWrongSecretProducesGarbage(t *testing.T) {
	p, _ := Encrypt([]byte("secret invoice"), testSecret(t))
	pt, err := Decrypt(p, testSecret(t))
	if err != nil {
		t.Fatalf("stream cipher should not fail on wrong key: %v", err)
	}
	if string(pt) == "secret invoice" {
		t.Fatal("wrong secret should not recover plaintext")
	}
}

func TestInvalidSecretLength(t *testing.T) {
	if _, err := Encrypt([]byte("x"), make([]byte, 16)); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrInvalidSecret, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	secret := testSecret(t)
	p, _ := Encrypt([]byte("test"), secret)

	s := Frame(p)
	wire, _ := base64.StdEncoding.DecodeString(s)
	// 1 (version) + 24 (nonce) + 4 (plaintext)
	if len(wire) != 29 {
		t.Fatalf("expected wire length 29, got %d", len(wire))
	}
	if wire[0] != Version {
		t.Fatalf("expected version byte %d, got %d", Version, wire[0])
	}

	got, err := Unframe(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nonce != p.Nonce || !bytes.Equal(got.Ciphertext, p.Ciphertext) {
		t.Fatal("unframe mismatch")
	}
	pt, _ := Decrypt(got, secret)
	if string(pt) != "test" {
		t.Fatalf("expected 'test', got %q", pt)
	}
}

func TestUnframeEmptyCiphertext(t *testing.T) {
	p, _ := Encrypt(nil, testSecret(t))
	got, err := Unframe(Frame(p))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Ciphertext) != 0 {
		t.Fatalf("expected empty ciphertext, got %d bytes", len(got.Ciphertext))
	}
}

func TestUnframeUnsupportedVersion(t *testing.T) {
	for _, v := range []byte{0, 2, 0xff} {
		for _, n := range []int{0, 24, 100} {
			wire := append([]byte{v}, make([]byte, n)...)
			_, err := Unframe(base64.StdEncoding.EncodeToString(wire))
			if !errors.Is(err, ErrUnsupportedVersion) {
				t.Fatalf("version %d, %d trailing bytes: expected ErrUnsupportedVersion, got %v", v, n, err)
			}
		}
	}
}

func TestUnframeTruncated(t *testing.T) {
	wire := append([]byte{Version}, make([]byte, 10)...)
	_, err := Unframe(base64.StdEncoding.EncodeToString(wire))
	if !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
	if _, err := Unframe(""); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload for empty input, got %v", err)
	}
}

func TestUnframeInvalidBase64(t *testing.T) {
	if _, err := Unframe("!!not base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestIdentifiers(t *testing.T) {
	if NewSessionID() == NewSessionID() {
		t.Fatal("session ids should be unique")
	}
	if NewUUIDv7().Version() != 7 {
		t.Fatal("expected UUID v7")
	}
}
