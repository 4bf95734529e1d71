package vulkan

import (
	"sync"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// LockGroup names a set of Vulkan objects that need external synchronization.
type LockGroup string

const (
	QueueManagement       LockGroup = "queue_management"
	CommandPoolManagement LockGroup = "command_pool_management"
	DescriptorManagement  LockGroup = "descriptor_management"
	PipelineManagement    LockGroup = "pipeline_management"
)

// VulkanLockPool hands out one mutex per lock group.
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	l, exists := vs.locks[group]
	if !exists {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	vs.mu.Unlock()

	l.Lock()
	return l
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	defer l.Unlock()

	return fn()
}

// handleTable maps the opaque renderer handles to the Vulkan objects behind
// them. Handle zero is never issued.
type handleTable[H metadata.Handle, V any] struct {
	mu    sync.RWMutex
	next  uint64
	items map[H]V
}

func newHandleTable[H metadata.Handle, V any]() *handleTable[H, V] {
	return &handleTable[H, V]{items: make(map[H]V)}
}

func (t *handleTable[H, V]) add(v V) H {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := H(t.next)
	t.items[h] = v
	return h
}

func (t *handleTable[H, V]) get(h H) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[h]
	return v, ok
}

// remove forgets h and returns the object it referred to.
func (t *handleTable[H, V]) remove(h H) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	if ok {
		delete(t.items, h)
	}
	return v, ok
}

func (t *handleTable[H, V]) removeIf(match func(V) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, v := range t.items {
		if match(v) {
			delete(t.items, h)
		}
	}
}

func (t *handleTable[H, V]) contains(match func(V) bool) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, v := range t.items {
		if match(v) {
			return true
		}
	}
	return false
}

func (t *handleTable[H, V]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
