// Package bitmap provides a compact set of non-negative row ids backed by
// 64-bit words. The query index keeps one bitmap per metadata pair and
// intersects them to find candidate rows.
package bitmap

import "math/bits"

// Bitmap is a fixed-capacity bitset. The zero value is an empty set with no
// capacity.
type Bitmap struct {
	data []uint64
	size int
}

// New allocates a bitmap for ids in [0, size). A size <= 0 yields an empty
// set that ignores every Add.
func New(size int) *Bitmap {
	if size <= 0 {
		return &Bitmap{}
	}
	return &Bitmap{data: make([]uint64, (size+63)/64), size: size}
}

// Add sets id. Ids outside the capacity passed to New are ignored.
func (b *Bitmap) Add(id int) {
	if id < 0 || id >= b.size {
		return
	}
	b.data[id/64] |= 1 << uint(id%64)
}

// Has reports whether id is set.
func (b *Bitmap) Has(id int) bool {
	if id < 0 || id >= b.size {
		return false
	}
	return b.data[id/64]&(1<<uint(id%64)) != 0
}

// Count returns the number of ids set.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.data {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	out := &Bitmap{size: b.size}
	if b.data != nil {
		out.data = append([]uint64(nil), b.data...)
	}
	return out
}

// And intersects b with o in place and returns b. Ids beyond o's capacity
// are cleared.
func (b *Bitmap) And(o *Bitmap) *Bitmap {
	for i := range b.data {
		if i < len(o.data) {
			b.data[i] &= o.data[i]
		} else {
			b.data[i] = 0
		}
	}
	return b
}

// IDs returns the set ids in ascending order.
func (b *Bitmap) IDs() []int {
	out := make([]int, 0, b.Count())
	for i, w := range b.data {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			out = append(out, i*64+tz)
			w &= w - 1
		}
	}
	return out
}
