// Package registry maps subscription keys to handlers in insertion order.
package registry

import (
	"github.com/coachpo/herald/errs"
	"github.com/coachpo/herald/pkg/delivery"
)

// Registry stores handlers keyed by subscription key. It is not safe for
// concurrent use.
type Registry struct {
	order   []delivery.Key
	entries map[delivery.Key]delivery.Handler
}

// New constructs an empty registry.
func New() *Registry {
	r := new(Registry)
	r.entries = make(map[delivery.Key]delivery.Handler)
	return r
}

// Add stores fn under a freshly issued key.
func (r *Registry) Add(fn delivery.Handler) delivery.Key {
	key := delivery.NewKey()
	for r.Has(key) {
		key = delivery.NewKey()
	}
	r.entries[key] = fn
	r.order = append(r.order, key)
	return key
}

// Has reports whether key is live.
func (r *Registry) Has(key delivery.Key) bool {
	_, ok := r.entries[key]
	return ok
}

// Remove deletes key. Removing an unknown or already removed key fails.
func (r *Registry) Remove(key delivery.Key) error {
	if !r.Has(key) {
		return errs.NotFound("registry/remove", key.String(), "subscription key does not exist")
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Values returns the live handlers in insertion order.
func (r *Registry) Values() []delivery.Handler {
	out := make([]delivery.Handler, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.entries[k])
	}
	return out
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	return len(r.order)
}
