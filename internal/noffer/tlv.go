package noffer

import (
	"errors"
	"fmt"
	"sort"
)

// ErrTruncated is returned when a TLV record claims more bytes than remain.
var ErrTruncated = errors.New("truncated TLV record")

// Records maps a one-byte tag to its values in order of appearance.
type Records map[uint8][][]byte

// ParseTLV scans data as a sequence of tag(1) | length(1) | value(length)
// records. It never returns a partial result.
func ParseTLV(data []byte) (Records, error) {
	out := make(Records)
	rest := data
	for len(rest) > 0 {
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: tag %d has no length byte", ErrTruncated, rest[0])
		}
		t, l := rest[0], int(rest[1])
		rest = rest[2:]
		if len(rest) < l {
			return nil, fmt.Errorf("%w: not enough data to read on TLV %d", ErrTruncated, t)
		}
		out[t] = append(out[t], append([]byte(nil), rest[:l]...))
		rest = rest[l:]
	}
	return out, nil
}

// First returns the first value recorded under tag t.
func (r Records) First(t uint8) ([]byte, bool) {
	vs := r[t]
	if len(vs) == 0 {
		return nil, false
	}
	return vs[0], true
}

// Append adds a value under tag t.
func (r Records) Append(t uint8, v []byte) {
	r[t] = append(r[t], v)
}

// Bytes serializes the records with tags in ascending order. Values keep their
// relative order within a tag.
func (r Records) Bytes() ([]byte, error) {
	tags := make([]int, 0, len(r))
	for t := range r {
		tags = append(tags, int(t))
	}
	sort.Ints(tags)

	var buf []byte
	for _, t := range tags {
		for _, v := range r[uint8(t)] {
			if len(v) > 0xff {
				return nil, fmt.Errorf("TLV %d value too long: %d bytes", t, len(v))
			}
			buf = append(buf, uint8(t), uint8(len(v)))
			buf = append(buf, v...)
		}
	}
	return buf, nil
}
