package catalog

import (
	"github.com/coachpo/herald/errs"
	"github.com/coachpo/herald/pkg/store"
)

// Stores binds event and group names to store adapters.
type Stores struct {
	bindings map[string][]store.Store
}

// NewStores constructs an empty binding table.
func NewStores() *Stores {
	s := new(Stores)
	s.bindings = make(map[string][]store.Store)
	return s
}

// Bind appends stores to the binding for name. Nil stores are skipped and a
// call without stores creates no binding.
func (s *Stores) Bind(name string, stores ...store.Store) {
	for _, st := range stores {
		if st == nil {
			continue
		}
		s.bindings[name] = append(s.bindings[name], st)
	}
}

// Has reports whether name has at least one bound store.
func (s *Stores) Has(name string) bool {
	return len(s.bindings[name]) > 0
}

// Lookup returns the stores bound to name, or nil.
func (s *Stores) Lookup(name string) []store.Store {
	return s.bindings[name]
}

// Get returns a copy of the stores bound to name or a NotFound error.
func (s *Stores) Get(name string) ([]store.Store, error) {
	bound := s.bindings[name]
	if len(bound) == 0 {
		return nil, errs.NotFound("catalog/stores", name, "no store bound to this name")
	}
	out := make([]store.Store, len(bound))
	copy(out, bound)
	return out, nil
}
