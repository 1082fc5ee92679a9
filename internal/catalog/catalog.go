// Package catalog holds the named events and groups of a bus in one
// namespace, together with the store bindings for those names.
package catalog

import (
	"strings"

	"github.com/coachpo/herald/errs"
	"github.com/coachpo/herald/internal/channel"
)

// Kind tags a catalog entry as an event or a group.
type Kind uint8

const (
	// KindEvent marks a registered event.
	KindEvent Kind = iota + 1
	// KindGroup marks a group of events.
	KindGroup
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Entry is one named event or group.
type Entry struct {
	Name    string
	Kind    Kind
	Channel *channel.Channel
	// Members lists the member event names of a group, deduplicated, in
	// declaration order. It is nil for events.
	Members []string
}

// Catalog is the single namespace shared by events and groups. It is not
// safe for concurrent use.
type Catalog struct {
	entries map[string]*Entry
	events  []string
	groups  []string
	// memberOf maps an event name to the groups naming it, in group
	// creation order. Events need not be registered to appear here.
	memberOf map[string][]*Entry
}

// New constructs an empty catalog.
func New() *Catalog {
	c := new(Catalog)
	c.entries = make(map[string]*Entry)
	c.memberOf = make(map[string][]*Entry)
	return c
}

// Lookup returns the entry registered under name.
func (c *Catalog) Lookup(name string) (*Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Has reports whether name is a known event or group.
func (c *Catalog) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Resolve returns the entry for name or a NotFound error tagged with op.
func (c *Catalog) Resolve(op, name string) (*Entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, errs.NotFound(op, name, "no event or group with this name")
	}
	return e, nil
}

// CheckAvailable fails with AlreadyExists when name is taken by an event or
// a group.
func (c *Catalog) CheckAvailable(op, name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.Invalid(op, "name must not be empty")
	}
	if e, ok := c.entries[name]; ok {
		return errs.AlreadyExists(op, name, e.Kind.String()+" with this name already exists")
	}
	return nil
}

// AddEvent registers an event owning ch.
func (c *Catalog) AddEvent(name string, ch *channel.Channel) (*Entry, error) {
	if err := c.CheckAvailable("catalog/add-event", name); err != nil {
		return nil, err
	}
	e := &Entry{Name: name, Kind: KindEvent, Channel: ch}
	c.entries[name] = e
	c.events = append(c.events, name)
	return e, nil
}

// AddGroup registers a group over members owning ch. Members are not
// required to exist yet.
func (c *Catalog) AddGroup(name string, members []string, ch *channel.Channel) (*Entry, error) {
	if err := c.CheckAvailable("catalog/add-group", name); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, errs.Invalid("catalog/add-group", "group needs at least one member event")
	}
	seen := make(map[string]struct{}, len(members))
	ordered := make([]string, 0, len(members))
	for _, m := range members {
		if strings.TrimSpace(m) == "" {
			return nil, errs.Invalid("catalog/add-group", "member event names must not be empty")
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		ordered = append(ordered, m)
	}

	e := &Entry{Name: name, Kind: KindGroup, Channel: ch, Members: ordered}
	c.entries[name] = e
	c.groups = append(c.groups, name)
	for _, m := range ordered {
		c.memberOf[m] = append(c.memberOf[m], e)
	}
	return e, nil
}

// GroupsOf returns the groups containing event, in group creation order.
func (c *Catalog) GroupsOf(event string) []*Entry {
	groups := c.memberOf[event]
	if len(groups) == 0 {
		return nil
	}
	out := make([]*Entry, len(groups))
	copy(out, groups)
	return out
}

// GroupNamesOf is GroupsOf reduced to names.
func (c *Catalog) GroupNamesOf(event string) []string {
	groups := c.memberOf[event]
	if len(groups) == 0 {
		return nil
	}
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Name)
	}
	return out
}

// Events returns the registered event names in registration order.
func (c *Catalog) Events() []string {
	return append([]string(nil), c.events...)
}

// Groups returns the group names in creation order.
func (c *Catalog) Groups() []string {
	return append([]string(nil), c.groups...)
}
