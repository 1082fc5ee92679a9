// Package delivery defines the values handed to subscribers of the bus.
package delivery

import "github.com/google/uuid"

// Key identifies a single subscription. Keys are random, never reused and
// cannot be derived from the event name, so only the holder of a Key can
// destroy the subscription it names.
type Key struct {
	id uuid.UUID
}

// NewKey returns a fresh subscription key.
func NewKey() Key {
	return Key{id: uuid.New()}
}

// String returns the textual form of the key.
func (k Key) String() string {
	return k.id.String()
}

// IsZero reports whether k is the zero Key, which is never issued.
func (k Key) IsZero() bool {
	return k.id == uuid.Nil
}

// ParseKey parses the textual form produced by String.
func ParseKey(s string) (Key, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Key{}, err
	}
	return Key{id: id}, nil
}

// StreamInfo describes an armed stream countdown at the time of delivery.
type StreamInfo struct {
	// StreamNum is the countdown length the stream was armed with.
	StreamNum int `json:"streamNum"`
	// StreamsLeft counts the stream deliveries remaining, including this one.
	StreamsLeft int  `json:"streamsLeft"`
	Streaming   bool `json:"streaming"`
}

// Metadata accompanies every value handed to a Handler.
type Metadata struct {
	IsStore  bool        `json:"isStore"`
	IsStream bool        `json:"isStream"`
	Stream   *StreamInfo `json:"stream,omitempty"`
	IsOnce   bool        `json:"isOnce"`
}

// Handler receives published values.
type Handler func(value any, meta Metadata)
