// Package store defines the adapter contract the bus uses to persist values
// published on an event or group, plus in-memory adapters.
package store

import "context"

// Store persists values published through the bus.
//
// The bus calls adapters sequentially from the goroutine driving it and never
// inspects what Get returns. Adapters shared across buses must synchronise
// themselves.
type Store interface {
	// Put records value for eventName. groupName is empty unless the value
	// reached the store through a group fan-out.
	Put(ctx context.Context, eventName string, value any, groupName string) error
	// Remove drops what the store holds for eventName and reports whether
	// anything was removed. groupNames lists the groups containing eventName.
	Remove(ctx context.Context, eventName string, value any, groupNames []string) (bool, error)
	// Get returns an opaque snapshot of the store contents.
	Get(ctx context.Context) (any, error)
}
