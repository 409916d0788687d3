package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		wantLen int // backing words
	}{
		{name: "zero size", size: 0, wantLen: 0},
		{name: "negative size", size: -5, wantLen: 0},
		{name: "one id", size: 1, wantLen: 1},
		{name: "exactly one word", size: 64, wantLen: 1},
		{name: "spills into second word", size: 65, wantLen: 2},
		{name: "large", size: 150_000_000, wantLen: (150_000_000 + 63) / 64},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Len(t, New(tt.size).data, tt.wantLen)
		})
	}
}

func TestAddHasBounds(t *testing.T) {
	t.Parallel()

	b := New(65)
	for _, id := range []int{0, 63, 64, -1, 65, 1000} {
		b.Add(id)
	}
	assert.True(t, b.Has(0))
	assert.True(t, b.Has(63))
	assert.True(t, b.Has(64), "last id inside capacity")
	assert.False(t, b.Has(65))
	assert.False(t, b.Has(-1))
	assert.Equal(t, 3, b.Count())
	assert.Equal(t, []int{0, 63, 64}, b.IDs())
}

func TestZeroValue(t *testing.T) {
	t.Parallel()

	var b Bitmap
	b.Add(3)
	assert.False(t, b.Has(3))
	assert.Zero(t, b.Count())
	assert.Empty(t, b.IDs())
}

func TestAndClone(t *testing.T) {
	t.Parallel()

	a := New(200)
	c := New(200)
	for _, id := range []int{1, 5, 70, 130, 199} {
		a.Add(id)
	}
	for _, id := range []int{5, 70, 100, 199} {
		c.Add(id)
	}

	got := a.Clone().And(c)
	assert.Equal(t, []int{5, 70, 199}, got.IDs())
	// The receiver of Clone is untouched.
	assert.Equal(t, 5, a.Count())

	short := New(64)
	short.Add(5)
	assert.Equal(t, []int{5}, a.Clone().And(short).IDs())
}
