package bus

import (
	"context"
	"errors"

	"github.com/coachpo/herald/pkg/delivery"
)

type putCall struct {
	event string
	value any
	group string
}

type removeCall struct {
	event  string
	value  any
	groups []string
}

// recordingStore remembers every call made to it.
type recordingStore struct {
	puts     []putCall
	removes  []removeCall
	gets     int
	snapshot any
	err      error
}

func (s *recordingStore) Put(_ context.Context, event string, value any, group string) error {
	s.puts = append(s.puts, putCall{event: event, value: value, group: group})
	return s.err
}

func (s *recordingStore) Remove(_ context.Context, event string, value any, groups []string) (bool, error) {
	s.removes = append(s.removes, removeCall{event: event, value: value, groups: groups})
	return s.err == nil, s.err
}

func (s *recordingStore) Get(context.Context) (any, error) {
	s.gets++
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

var errStoreDown = errors.New("store down")

type delivered struct {
	value any
	meta  delivery.Metadata
}

type sink struct {
	got []delivered
}

func (s *sink) handle(v any, m delivery.Metadata) {
	s.got = append(s.got, delivered{value: v, meta: m})
}

// live drops store primers.
func (s *sink) live() []delivered {
	var out []delivered
	for _, d := range s.got {
		if !d.meta.IsStore {
			out = append(out, d)
		}
	}
	return out
}

func (s *sink) values() []any {
	var out []any
	for _, d := range s.live() {
		out = append(out, d.value)
	}
	return out
}
