package arena

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Bitmap is a fixed capacity bit set over fragment sequence numbers.
// Index 0 is never used since sequence numbers start at 1.
type Bitmap struct {
	n    uint
	bits *bitset.BitSet
}

func NewBitmap(n int) *Bitmap {
	if n < 0 {
		panic(fmt.Sprintf("negative bitmap capacity %d", n))
	}
	return &Bitmap{n: uint(n), bits: bitset.New(uint(n))}
}

// Set marks i, setting it twice has no further effect.
func (b *Bitmap) Set(i int) {
	b.check(i)
	b.bits.Set(uint(i))
}

func (b *Bitmap) IsSet(i int) bool {
	b.check(i)
	return b.bits.Test(uint(i))
}

// Len is the capacity.
func (b *Bitmap) Len() int {
	return int(b.n)
}

// Count is the number of set bits.
func (b *Bitmap) Count() int {
	return int(b.bits.Count())
}

// bitset grows on Set, the capacity here is fixed so overflow is a caller bug.
func (b *Bitmap) check(i int) {
	if i < 0 || uint(i) >= b.n {
		panic(fmt.Sprintf("bitmap index %d out of range [0, %d)", i, b.n))
	}
}
