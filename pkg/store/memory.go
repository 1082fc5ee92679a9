package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachpo/herald/internal/clone"
)

// LatestStore keeps the most recent value per event name.
type LatestStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewLatestStore creates an empty LatestStore.
func NewLatestStore() *LatestStore {
	s := new(LatestStore)
	s.values = make(map[string]any)
	return s
}

// Put replaces the value held for eventName.
func (s *LatestStore) Put(ctx context.Context, eventName string, value any, _ string) error {
	if err := ctxErr(ctx, "latest store put"); err != nil {
		return err
	}
	s.mu.Lock()
	s.values[eventName] = value
	s.mu.Unlock()
	return nil
}

// Remove forgets the value held for eventName.
func (s *LatestStore) Remove(ctx context.Context, eventName string, _ any, _ []string) (bool, error) {
	if err := ctxErr(ctx, "latest store remove"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[eventName]
	delete(s.values, eventName)
	return ok, nil
}

// Get returns a map[string]any copy of the stored values.
func (s *LatestStore) Get(ctx context.Context) (any, error) {
	if err := ctxErr(ctx, "latest store get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = clone.MustValue(v)
	}
	return out, nil
}

// HistoryStore appends every value per event name in publish order.
type HistoryStore struct {
	mu     sync.RWMutex
	values map[string][]any
}

// NewHistoryStore creates an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	s := new(HistoryStore)
	s.values = make(map[string][]any)
	return s
}

// Put appends value to the history of eventName.
func (s *HistoryStore) Put(ctx context.Context, eventName string, value any, _ string) error {
	if err := ctxErr(ctx, "history store put"); err != nil {
		return err
	}
	s.mu.Lock()
	s.values[eventName] = append(s.values[eventName], value)
	s.mu.Unlock()
	return nil
}

// Remove drops the whole history of eventName.
func (s *HistoryStore) Remove(ctx context.Context, eventName string, _ any, _ []string) (bool, error) {
	if err := ctxErr(ctx, "history store remove"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[eventName]
	delete(s.values, eventName)
	return ok, nil
}

// Get returns a map[string][]any copy of the stored histories.
func (s *HistoryStore) Get(ctx context.Context) (any, error) {
	if err := ctxErr(ctx, "history store get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]any, len(s.values))
	for k, list := range s.values {
		cp := make([]any, len(list))
		for i, v := range list {
			cp[i] = clone.MustValue(v)
		}
		out[k] = cp
	}
	return out, nil
}

func ctxErr(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s context: %w", op, ctx.Err())
	default:
		return nil
	}
}
