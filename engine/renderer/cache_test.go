package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheCreatesOncePerKey(t *testing.T) {
	c := NewCache[string, int]("test", 4)
	calls := 0
	create := func() (int, error) {
		calls++
		return calls * 10, nil
	}

	v, slot, err := c.GetOrCreate("a", create)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.EqualValues(t, 0, slot)

	v, slot, err = c.GetOrCreate("a", create)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.EqualValues(t, 0, slot)
	assert.Equal(t, 1, calls)

	_, slot, err = c.GetOrCreate("b", create)
	require.NoError(t, err)
	assert.EqualValues(t, 1, slot)
	assert.Equal(t, 20, c.At(1))
	assert.Equal(t, 2, c.Len())
}

func TestCacheFullDoesNotCallCreate(t *testing.T) {
	c := NewCache[int, string]("mesh", 2)
	for i := 0; i < 2; i++ {
		_, _, err := c.GetOrCreate(i, func() (string, error) { return "x", nil })
		require.NoError(t, err)
	}

	called := false
	_, _, err := c.GetOrCreate(3, func() (string, error) {
		called = true
		return "y", nil
	})
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.False(t, called)

	// hits still work on a full cache
	v, slot, err := c.GetOrCreate(1, func() (string, error) { return "z", nil })
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	assert.EqualValues(t, 1, slot)
}

func TestCacheFailedCreateLeavesNoEntry(t *testing.T) {
	c := NewCache[string, int]("texture", 2)
	boom := errors.New("decode failed")
	_, _, err := c.GetOrCreate("broken.png", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	_, _, ok := c.Get("broken.png")
	assert.False(t, ok)
}

func TestCacheReset(t *testing.T) {
	c := NewCache[string, int]("material", 2)
	_, _, _ = c.GetOrCreate("a", func() (int, error) { return 1, nil })
	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 2, c.Cap())

	_, slot, err := c.GetOrCreate("b", func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.EqualValues(t, 0, slot)
}
