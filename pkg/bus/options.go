package bus

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/herald/internal/observability"
)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for lifecycle and store failure messages.
func WithLogger(logger observability.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMeter sets the meter bus instruments are created from.
func WithMeter(meter metric.Meter) Option {
	return func(b *Bus) {
		if meter != nil {
			b.meter = meter
		}
	}
}

// WithCloner replaces the deep copy applied to payloads before they reach a
// store or a channel. It must return an independent copy or an error.
func WithCloner(fn func(any) (any, error)) Option {
	return func(b *Bus) {
		if fn != nil {
			b.clone = fn
		}
	}
}

type publishOptions struct {
	once   bool
	stream bool
}

// PublishOption modifies a single Publish call.
type PublishOption func(*publishOptions)

// WithOnce stashes the payload for the next Once caller instead of delivering
// it. Stores are not written.
func WithOnce() PublishOption {
	return func(o *publishOptions) { o.once = true }
}

// WithStream marks the publish as part of a stream. Delivery is unchanged;
// the flag exists so callers can state intent, and it conflicts with
// WithOnce.
func WithStream() PublishOption {
	return func(o *publishOptions) { o.stream = true }
}
