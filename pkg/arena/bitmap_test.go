package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap(t *testing.T) {
	b := NewBitmap(9)
	assert.Equal(t, 9, b.Len())
	for i := 0; i < b.Len(); i++ {
		assert.False(t, b.IsSet(i))
	}

	b.Set(3)
	assert.True(t, b.IsSet(3))
	for i := 0; i < 5; i++ {
		b.Set(3)
	}
	assert.True(t, b.IsSet(3))
	assert.Equal(t, 1, b.Count())

	b.Set(8)
	for i := 0; i < b.Len(); i++ {
		assert.Equal(t, i == 3 || i == 8, b.IsSet(i), "bit %d", i)
	}
}

func TestBitmapOutOfRange(t *testing.T) {
	b := NewBitmap(4)
	assert.Panics(t, func() { b.Set(4) })
	assert.Panics(t, func() { b.IsSet(4) })
	assert.Panics(t, func() { b.Set(-1) })
	assert.Equal(t, 4, b.Len())
}
