// Package channel implements the delivery primitive shared by events and groups.
package channel

import (
	"github.com/coachpo/herald/internal/registry"
	"github.com/coachpo/herald/pkg/delivery"
)

// Observer receives delivery notifications from a channel.
type Observer interface {
	Buffered(channel string)
	Delivered(channel string, subscribers int, meta delivery.Metadata)
}

// Copier returns an independent copy of a delivered value.
type Copier func(v any) any

// Option configures a Channel.
type Option func(*Channel)

// WithObserver attaches a delivery observer.
func WithObserver(o Observer) Option {
	return func(c *Channel) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithCopier sets the function used to give each subscriber its own copy of
// a value when more than one subscriber is registered.
func WithCopier(fn Copier) Option {
	return func(c *Channel) {
		if fn != nil {
			c.copy = fn
		}
	}
}

type stream struct {
	total     int
	remaining int
}

// Channel buffers values while it has no subscribers and delivers them
// synchronously once it has. It is not safe for concurrent use.
type Channel struct {
	name     string
	registry *registry.Registry
	observer Observer
	copy     Copier

	empty   bool
	pending []any

	// queue holds values published while a delivery is in progress so that
	// handlers publishing back into the channel observe FIFO order.
	queue    []any
	draining bool

	stream *stream

	onceSent  bool
	onceValue any
}

// New constructs an empty channel.
func New(name string, opts ...Option) *Channel {
	c := new(Channel)
	c.name = name
	c.registry = registry.New()
	c.empty = true
	c.copy = func(v any) any { return v }
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Name returns the event or group name the channel belongs to.
func (c *Channel) Name() string {
	return c.name
}

// IsEmpty reports whether the channel currently has no subscribers.
func (c *Channel) IsEmpty() bool {
	return c.empty
}

// Pending returns the number of buffered values awaiting a first subscriber.
func (c *Channel) Pending() int {
	return len(c.pending)
}

// Len returns the number of live subscriptions.
func (c *Channel) Len() int {
	return c.registry.Len()
}

// HasKey reports whether key belongs to this channel.
func (c *Channel) HasKey(key delivery.Key) bool {
	return c.registry.Has(key)
}

// Subscribe registers fn. When the channel is empty, fn first receives every
// primer (flagged as store values) and then the buffered values in publish
// order.
func (c *Channel) Subscribe(fn delivery.Handler, primers ...any) delivery.Key {
	wasEmpty := c.empty
	key := c.registry.Add(fn)
	c.empty = false
	if !wasEmpty {
		return key
	}

	for _, p := range primers {
		fn(p, delivery.Metadata{IsStore: true})
	}

	buffered := c.pending
	c.pending = nil
	c.enqueue(buffered...)
	return key
}

// Publish delivers v to every subscriber, or buffers it when there are none.
func (c *Channel) Publish(v any) {
	if c.empty {
		c.pending = append(c.pending, v)
		if c.observer != nil {
			c.observer.Buffered(c.name)
		}
		return
	}
	c.enqueue(v)
}

// SetOnce replaces the value handed to the next Once caller.
func (c *Channel) SetOnce(v any) {
	c.onceValue = v
}

// Once hands the once value to fn unless a previous Once call already
// claimed it. fn is never registered for later deliveries.
func (c *Channel) Once(fn delivery.Handler) bool {
	if c.onceSent {
		return false
	}
	c.onceSent = true
	fn(c.onceValue, delivery.Metadata{IsOnce: true})
	return true
}

// OnceSent reports whether the once value has been claimed.
func (c *Channel) OnceSent() bool {
	return c.onceSent
}

// StartStream arms a countdown that tags the next n deliveries.
func (c *Channel) StartStream(n int) {
	if n <= 0 {
		c.stream = nil
		return
	}
	c.stream = &stream{total: n, remaining: n}
}

// Streaming reports whether a stream countdown is armed.
func (c *Channel) Streaming() bool {
	return c.stream != nil
}

// Destroy removes the subscription identified by key. The channel returns
// to buffering once its last subscription is gone; once and stream state
// are kept.
func (c *Channel) Destroy(key delivery.Key) error {
	if err := c.registry.Remove(key); err != nil {
		return err
	}
	if c.registry.Len() == 0 {
		c.empty = true
	}
	return nil
}

func (c *Channel) enqueue(values ...any) {
	c.queue = append(c.queue, values...)
	if c.draining {
		return
	}
	c.draining = true
	defer func() { c.draining = false }()

	for len(c.queue) > 0 {
		if c.empty {
			c.pending = append(c.pending, c.queue...)
			c.queue = nil
			return
		}
		v := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.deliver(v)
	}
	c.queue = nil
}

func (c *Channel) deliver(v any) {
	meta := c.nextMetadata()
	fns := c.registry.Values()

	// Every subscriber but the last gets its own copy, taken before any
	// handler runs, so no handler observes another's mutations.
	values := make([]any, len(fns))
	for i := range fns {
		if i == len(fns)-1 {
			values[i] = v
			continue
		}
		values[i] = c.copy(v)
	}

	for i, fn := range fns {
		m := meta
		if meta.Stream != nil {
			s := *meta.Stream
			m.Stream = &s
		}
		fn(values[i], m)
	}
	if c.observer != nil {
		c.observer.Delivered(c.name, len(fns), meta)
	}
}

func (c *Channel) nextMetadata() delivery.Metadata {
	if c.stream == nil {
		return delivery.Metadata{}
	}
	info := &delivery.StreamInfo{
		StreamNum:   c.stream.total,
		StreamsLeft: c.stream.remaining,
		Streaming:   true,
	}
	c.stream.remaining--
	if c.stream.remaining <= 0 {
		c.stream = nil
	}
	return delivery.Metadata{IsStream: true, Stream: info}
}
