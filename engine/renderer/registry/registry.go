// Package registry holds the scoped release lists that own GPU object teardown.
package registry

import (
	"github.com/spaghettifunk/lumen/engine/core"
)

// Disposable is anything that can release the resources it owns.
type Disposable interface {
	Release()
}

// ReleaseFunc adapts a plain function to Disposable.
type ReleaseFunc func()

func (f ReleaseFunc) Release() {
	f()
}

// Registry runs release actions in reverse registration order.
// Flush must only be called once the device no longer uses the objects.
type Registry struct {
	name  string
	items []Disposable
}

func New(name string) *Registry {
	return &Registry{name: name}
}

func (r *Registry) Name() string {
	return r.name
}

// Push registers d; nil values are ignored.
func (r *Registry) Push(d Disposable) {
	if d == nil {
		return
	}
	r.items = append(r.items, d)
}

func (r *Registry) PushFunc(f func()) {
	if f == nil {
		return
	}
	r.items = append(r.items, ReleaseFunc(f))
}

// Flush releases everything from newest to oldest and empties the registry.
// Calling it again on an empty registry does nothing.
func (r *Registry) Flush() {
	if len(r.items) == 0 {
		return
	}
	core.LogDebug("flushing %d resources from registry '%s'", len(r.items), r.name)
	for i := len(r.items) - 1; i >= 0; i-- {
		d := r.items[i]
		r.items[i] = nil
		d.Release()
	}
	r.items = r.items[:0]
}

func (r *Registry) Len() int {
	return len(r.items)
}
