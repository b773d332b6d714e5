// Package group holds the committee-wide bookkeeping the leader and
// backup state machines share: the participation bitmap and its wire
// encoding. Point/scalar aggregation itself lives in the crypto
// package; this package only tracks *which* committee indices
// participated.
package group

import (
	"encoding/binary"

	"github.com/Workiva/go-datastructures/bitarray"
	"github.com/pkg/errors"
)

// ErrShortBitmap is returned when decoding a bitmap from too few bytes.
var ErrShortBitmap = errors.New("group: bitmap frame too short")

// Bitmap is a fixed-size, committee-indexed participation vector.
type Bitmap struct {
	n    int
	bits bitarray.BitArray
}

// NewBitmap allocates an empty bitmap over a committee of size n.
func NewBitmap(n int) *Bitmap {
	return &Bitmap{n: n, bits: bitarray.NewBitArray(uint64(n))}
}

// N returns the committee size this bitmap is sized for.
func (b *Bitmap) N() int { return b.n }

// Set marks committee index i as participating.
func (b *Bitmap) Set(i int) {
	_ = b.bits.SetBit(uint64(i))
}

// Clear removes committee index i from the participation set.
func (b *Bitmap) Clear(i int) {
	_ = b.bits.ClearBit(uint64(i))
}

// Has reports whether committee index i is marked as participating.
func (b *Bitmap) Has(i int) bool {
	ok, _ := b.bits.GetBit(uint64(i))
	return ok
}

// Indices returns the sorted set of participating committee indices.
func (b *Bitmap) Indices() []int {
	set := b.bits.GetSetBits()
	out := make([]int, len(set))
	for i, v := range set {
		out[i] = int(v)
	}
	return out
}

// PopCount returns the number of participating committee indices.
func (b *Bitmap) PopCount() int {
	return len(b.bits.GetSetBits())
}

// Clone returns an independent copy of b.
func (b *Bitmap) Clone() *Bitmap {
	nb := NewBitmap(b.n)
	for _, i := range b.Indices() {
		nb.Set(i)
	}
	return nb
}

// MarshalBinary encodes the bitmap as a 2-byte bit-length prefix
// followed by ceil(n/8) bytes, bit i set iff committee index i
// participates (LSB-first within each byte).
func (b *Bitmap) MarshalBinary() []byte {
	nbytes := (b.n + 7) / 8
	out := make([]byte, 2+nbytes)
	binary.BigEndian.PutUint16(out[0:2], uint16(b.n))
	for _, i := range b.Indices() {
		out[2+i/8] |= 1 << uint(i%8)
	}
	return out
}

// UnmarshalBitmap decodes a bitmap from its wire form, returning the
// number of bytes consumed.
func UnmarshalBitmap(data []byte) (*Bitmap, int, error) {
	if len(data) < 2 {
		return nil, 0, ErrShortBitmap
	}
	nbits := int(binary.BigEndian.Uint16(data[0:2]))
	nbytes := (nbits + 7) / 8
	if len(data) < 2+nbytes {
		return nil, 0, ErrShortBitmap
	}
	bm := NewBitmap(nbits)
	for i := 0; i < nbits; i++ {
		if data[2+i/8]&(1<<uint(i%8)) != 0 {
			bm.Set(i)
		}
	}
	return bm, 2 + nbytes, nil
}
