package renderer

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
)

// Cache is a fixed-capacity arena with a key index. Slots are handed out in
// insertion order and never reused, so a slot stays valid for the cache's life.
type Cache[K comparable, V any] struct {
	name  string
	slots []V
	index map[K]uint32
}

func NewCache[K comparable, V any](name string, capacity uint32) *Cache[K, V] {
	return &Cache[K, V]{
		name:  name,
		slots: make([]V, 0, capacity),
		index: make(map[K]uint32, capacity),
	}
}

// Get returns the value and slot stored under key.
func (c *Cache[K, V]) Get(key K) (V, uint32, bool) {
	slot, ok := c.index[key]
	if !ok {
		var zero V
		return zero, 0, false
	}
	return c.slots[slot], slot, true
}

// At returns the value stored in slot. It panics on an unknown slot.
func (c *Cache[K, V]) At(slot uint32) V {
	return c.slots[slot]
}

// GetOrCreate returns the cached value for key or stores the result of create.
// create is not called on a hit, nor when the cache is full.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, uint32, error) {
	if v, slot, ok := c.Get(key); ok {
		return v, slot, nil
	}
	var zero V
	if len(c.slots) == cap(c.slots) {
		return zero, 0, fmt.Errorf("%s cache holds %d entries: %w", c.name, cap(c.slots), core.ErrCapacityExceeded)
	}
	v, err := create()
	if err != nil {
		return zero, 0, err
	}
	slot := uint32(len(c.slots))
	c.slots = append(c.slots, v)
	c.index[key] = slot
	return v, slot, nil
}

func (c *Cache[K, V]) Len() int {
	return len(c.slots)
}

func (c *Cache[K, V]) Cap() int {
	return cap(c.slots)
}

// Reset forgets every entry. Releasing the values is the owner's job.
func (c *Cache[K, V]) Reset() {
	clear(c.slots)
	c.slots = c.slots[:0]
	clear(c.index)
}
