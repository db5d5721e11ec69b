// Package noffer encodes and decodes NIP-69 offer pointers ("noffer1...").
//
// A pointer is a bech32 string whose payload is a list of TLV records:
//
//	0  seller public key (32 bytes, x-only)
//	1  relay URL (UTF-8)
//	2  offer identifier (UTF-8)
//	3  price type (1 byte)
//	4  price (uint32, big-endian, optional)
package noffer

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// HRP is the human-readable prefix of every offer pointer.
const HRP = "noffer"

// MaxEncodedLength bounds the accepted pointer string, well above the
// 90 characters BIP-173 allows.
const MaxEncodedLength = 5000

const (
	tagPubKey    uint8 = 0
	tagRelay     uint8 = 1
	tagOffer     uint8 = 2
	tagPriceType uint8 = 3
	tagPrice     uint8 = 4
)

var (
	ErrInvalidEncoding = errors.New("invalid noffer encoding")
	ErrInvalidPrefix   = errors.New("expected noffer prefix")
	ErrMissingField    = errors.New("missing TLV field")
	ErrInvalidField    = errors.New("invalid TLV field")
)

// PriceType tells the payer how the seller prices the offer.
type PriceType uint8

const (
	PriceFixed       PriceType = 0
	PriceVariable    PriceType = 1
	PriceSpontaneous PriceType = 2
)

func (t PriceType) String() string {
	switch t {
	case PriceFixed:
		return "fixed"
	case PriceVariable:
		return "variable"
	case PriceSpontaneous:
		return "spontaneous"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Pointer is the decoded identity of an offer.
type Pointer struct {
	PubKey    [32]byte
	Relay     string
	Offer     string
	PriceType PriceType
	Price     *uint32 // nil: ask the seller
}

// PubKeyHex returns the seller key as lowercase hex.
func (p *Pointer) PubKeyHex() string {
	return hex.EncodeToString(p.PubKey[:])
}

// Decode parses a noffer string.
func Decode(s string) (*Pointer, error) {
	if len(s) > MaxEncodedLength {
		return nil, fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidEncoding, len(s), MaxEncodedLength)
	}
	hrp, words, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if hrp != HRP {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidPrefix, hrp)
	}
	data, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	tlv, err := ParseTLV(data)
	if err != nil {
		return nil, err
	}
	return fromRecords(tlv)
}

func fromRecords(tlv Records) (*Pointer, error) {
	p := &Pointer{}

	pk, ok := tlv.First(tagPubKey)
	if !ok {
		return nil, fmt.Errorf("%w: TLV %d", ErrMissingField, tagPubKey)
	}
	if len(pk) != 32 {
		return nil, fmt.Errorf("%w: TLV %d should be 32 bytes, got %d", ErrInvalidField, tagPubKey, len(pk))
	}
	copy(p.PubKey[:], pk)

	relay, err := requiredString(tlv, tagRelay)
	if err != nil {
		return nil, err
	}
	p.Relay = relay

	offer, err := requiredString(tlv, tagOffer)
	if err != nil {
		return nil, err
	}
	p.Offer = offer

	pt, ok := tlv.First(tagPriceType)
	if !ok || len(pt) == 0 {
		return nil, fmt.Errorf("%w: TLV %d", ErrMissingField, tagPriceType)
	}
	p.PriceType = PriceType(pt[0])

	if price, ok := tlv.First(tagPrice); ok {
		if len(price) < 4 {
			return nil, fmt.Errorf("%w: TLV %d should hold 4 bytes, got %d", ErrInvalidField, tagPrice, len(price))
		}
		v := binary.BigEndian.Uint32(price[:4])
		p.Price = &v
	}

	return p, nil
}

func requiredString(tlv Records, t uint8) (string, error) {
	v, ok := tlv.First(t)
	if !ok || len(v) == 0 {
		return "", fmt.Errorf("%w: TLV %d", ErrMissingField, t)
	}
	if !utf8.Valid(v) {
		return "", fmt.Errorf("%w: TLV %d is not UTF-8", ErrInvalidField, t)
	}
	return string(v), nil
}

// Encode is the inverse of Decode.
func Encode(p *Pointer) (string, error) {
	if p.Relay == "" {
		return "", fmt.Errorf("%w: TLV %d", ErrMissingField, tagRelay)
	}
	if p.Offer == "" {
		return "", fmt.Errorf("%w: TLV %d", ErrMissingField, tagOffer)
	}

	tlv := make(Records)
	tlv.Append(tagPubKey, p.PubKey[:])
	tlv.Append(tagRelay, []byte(p.Relay))
	tlv.Append(tagOffer, []byte(p.Offer))
	tlv.Append(tagPriceType, []byte{byte(p.PriceType)})
	if p.Price != nil {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], *p.Price)
		tlv.Append(tagPrice, b[:])
	}

	data, err := tlv.Bytes()
	if err != nil {
		return "", err
	}
	words, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	s, err := bech32.Encode(HRP, words)
	if err != nil {
		return "", err
	}
	if len(s) > MaxEncodedLength {
		return "", fmt.Errorf("%w: encoded pointer is %d characters", ErrInvalidEncoding, len(s))
	}
	return s, nil
}
