// Package bus implements an in-process publish/subscribe bus with named
// events, groups of events, optional store adapters, once delivery and
// stream countdowns.
//
// Delivery is synchronous: Publish returns after every subscriber has been
// called. A Bus is not safe for concurrent use. Handlers may call back into
// the Bus. A Publish made from a handler writes its stores immediately but
// its deliveries wait until the value being dispatched has reached its event
// and every group, so each channel sees values in publish order.
package bus

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/herald/errs"
	"github.com/coachpo/herald/internal/catalog"
	"github.com/coachpo/herald/internal/channel"
	"github.com/coachpo/herald/internal/clone"
	"github.com/coachpo/herald/internal/observability"
	"github.com/coachpo/herald/internal/telemetry"
	"github.com/coachpo/herald/pkg/delivery"
	"github.com/coachpo/herald/pkg/store"
)

// Kind tells events and groups apart.
type Kind = catalog.Kind

const (
	// KindEvent marks a registered event.
	KindEvent = catalog.KindEvent
	// KindGroup marks a group of events.
	KindGroup = catalog.KindGroup
)

// Bus routes published values to subscribers and store adapters.
type Bus struct {
	names    *catalog.Catalog
	stores   *catalog.Stores
	channels *channel.Collection

	logger observability.Logger
	meter  metric.Meter
	clone  func(any) (any, error)
	in     instruments

	// pending holds channel publishes not yet delivered; dispatching is set
	// while the outermost Publish drains it.
	pending     []pendingPublish
	dispatching bool
}

type pendingPublish struct {
	entry   *catalog.Entry
	payload any
}

// New constructs an empty Bus.
func New(opts ...Option) *Bus {
	b := new(Bus)
	b.names = catalog.New()
	b.stores = catalog.NewStores()
	b.channels = channel.NewCollection()
	b.logger = observability.Log()
	b.clone = clone.Value
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.meter == nil {
		b.meter = otel.Meter("bus")
	}
	b.in = newInstruments(b.meter)
	return b
}

// Register creates the event name and binds stores to it.
func (b *Bus) Register(name string, stores ...store.Store) error {
	if err := b.names.CheckAvailable("bus/register", name); err != nil {
		return err
	}
	ch := b.newChannel(name, telemetry.ChannelKindEvent)
	if _, err := b.names.AddEvent(name, ch); err != nil {
		return err
	}
	b.channels.Add(ch)
	b.stores.Bind(name, stores...)
	b.logger.Debug("event registered",
		observability.Field{Key: "name", Value: name},
		observability.Field{Key: "stores", Value: len(stores)})
	return nil
}

// Group creates a group over events and binds stores to the group name.
// The member events do not have to be registered yet.
func (b *Bus) Group(name string, events []string, stores ...store.Store) error {
	if err := b.names.CheckAvailable("bus/group", name); err != nil {
		return err
	}
	ch := b.newChannel(name, telemetry.ChannelKindGroup)
	if _, err := b.names.AddGroup(name, events, ch); err != nil {
		return err
	}
	b.channels.Add(ch)
	b.stores.Bind(name, stores...)
	b.logger.Debug("group created",
		observability.Field{Key: "name", Value: name},
		observability.Field{Key: "events", Value: events},
		observability.Field{Key: "stores", Value: len(stores)})
	return nil
}

// Subscribe registers fn on the event or group name. The first subscriber of
// a channel without subscribers first receives one value per bound store
// (the store's Get snapshot, flagged IsStore) and then every value buffered
// while the channel had no subscribers.
func (b *Bus) Subscribe(ctx context.Context, name string, fn delivery.Handler) (delivery.Key, error) {
	if fn == nil {
		return delivery.Key{}, errs.Invalid("bus/subscribe", "handler must not be nil")
	}
	entry, err := b.names.Resolve("bus/subscribe", name)
	if err != nil {
		return delivery.Key{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var primers []any
	if entry.Channel.IsEmpty() {
		for _, st := range b.stores.Lookup(name) {
			snap, err := st.Get(ctx)
			if err != nil {
				b.in.addStoreError(ctx, name, "store.get")
				b.logger.Error("store snapshot failed",
					observability.Field{Key: "name", Value: name},
					observability.Field{Key: "error", Value: err})
				return delivery.Key{}, errs.New("bus/subscribe", errs.CodeStore,
					errs.WithName(name),
					errs.WithMessage("reading store snapshot for first subscriber"),
					errs.WithCause(err))
			}
			primers = append(primers, snap)
		}
	}

	kind := entry.Kind.String()
	key := entry.Channel.Subscribe(fn, primers...)
	b.in.addDeliveries(ctx, name, telemetry.DeliveryStore, len(primers))
	b.in.addSubscribers(ctx, name, kind, 1)
	b.logger.Debug("subscribed",
		observability.Field{Key: "name", Value: name},
		observability.Field{Key: "kind", Value: kind},
		observability.Field{Key: "key", Value: key.String()})
	return key, nil
}

// Once hands fn the value stashed by the last Publish made WithOnce on name,
// or nil if there is none. Only the first Once call on a channel delivers;
// later calls return nil without invoking fn.
func (b *Bus) Once(name string, fn delivery.Handler) error {
	if fn == nil {
		return errs.Invalid("bus/once", "handler must not be nil")
	}
	entry, err := b.names.Resolve("bus/once", name)
	if err != nil {
		return err
	}
	if entry.Channel.Once(fn) {
		b.in.addDeliveries(context.Background(), name, telemetry.DeliveryOnce, 1)
	}
	return nil
}

// Stream tags the next n deliveries on name with a countdown. n == 0 disarms
// a running countdown.
func (b *Bus) Stream(name string, n int) error {
	if n < 0 {
		return errs.New("bus/stream", errs.CodeInvalid,
			errs.WithName(name), errs.WithMessage("stream length must not be negative"))
	}
	entry, err := b.names.Resolve("bus/stream", name)
	if err != nil {
		return err
	}
	entry.Channel.StartStream(n)
	return nil
}

// Publish delivers data on the event name and on every group containing it,
// writing a copy to the stores bound to each. Store failures do not stop
// delivery; they are returned together once delivery has finished.
func (b *Bus) Publish(ctx context.Context, name string, data any, opts ...PublishOption) error {
	var po publishOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&po)
		}
	}
	entry, err := b.resolveEvent("bus/publish", name)
	if err != nil {
		return err
	}
	if po.once && po.stream {
		return errs.New("bus/publish", errs.CodeInvalid,
			errs.WithName(name), errs.WithMessage("once and stream cannot be combined"))
	}
	payload, err := b.validateClone("bus/publish", name, data)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if po.once {
		entry.Channel.SetOnce(payload)
		return nil
	}
	return b.storeError("bus/publish", name, b.dispatch(ctx, "bus/publish", entry, data, true))
}

// PublishRemove asks every store bound to each name in eventsToRemove to drop
// its values, then delivers data like Publish without writing to stores.
// Stores receive the groups containing name.
func (b *Bus) PublishRemove(ctx context.Context, name string, data any, eventsToRemove []string) error {
	entry, err := b.resolveEvent("bus/publish-remove", name)
	if err != nil {
		return err
	}
	for _, target := range eventsToRemove {
		if !b.names.Has(target) {
			return errs.NotFound("bus/publish-remove", target, "no event or group to remove values for")
		}
	}
	if _, err := b.validateClone("bus/publish-remove", name, data); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	groups := b.names.GroupNamesOf(name)
	var failures []error
	for _, target := range eventsToRemove {
		for _, st := range b.stores.Lookup(target) {
			if _, err := st.Remove(ctx, target, b.copy(data), groups); err != nil {
				b.in.addStoreError(ctx, target, "store.remove")
				failures = append(failures, err)
			}
		}
	}
	b.dispatch(ctx, "bus/publish-remove", entry, data, false)
	return b.storeError("bus/publish-remove", name, failures)
}

// Snapshot returns the stores bound to name.
func (b *Bus) Snapshot(name string) ([]store.Store, error) {
	return b.stores.Get(name)
}

// Destroy cancels the subscription identified by key.
func (b *Bus) Destroy(key delivery.Key) error {
	ch, err := b.channels.Destroy(key)
	if err != nil {
		return errs.New("bus/destroy", errs.CodeNotFound,
			errs.WithName(key.String()),
			errs.WithMessage("subscription key does not exist"),
			errs.WithCause(err))
	}
	kind := ""
	if entry, ok := b.names.Lookup(ch.Name()); ok {
		kind = entry.Kind.String()
	}
	b.in.addSubscribers(context.Background(), ch.Name(), kind, -1)
	b.logger.Debug("subscription destroyed",
		observability.Field{Key: "name", Value: ch.Name()},
		observability.Field{Key: "key", Value: key.String()})
	return nil
}

// Has reports whether name is a registered event or group.
func (b *Bus) Has(name string) bool {
	return b.names.Has(name)
}

// Kind reports whether name is an event or a group.
func (b *Bus) Kind(name string) (Kind, bool) {
	entry, ok := b.names.Lookup(name)
	if !ok {
		return 0, false
	}
	return entry.Kind, true
}

// GroupsOf returns the groups containing event, in creation order.
func (b *Bus) GroupsOf(event string) []string {
	return b.names.GroupNamesOf(event)
}

// SubscriberCount returns the number of live subscriptions on name.
func (b *Bus) SubscriberCount(name string) (int, error) {
	entry, err := b.names.Resolve("bus/subscriber-count", name)
	if err != nil {
		return 0, err
	}
	return entry.Channel.Len(), nil
}

func (b *Bus) newChannel(name, kind string) *channel.Channel {
	return channel.New(name,
		channel.WithObserver(channelObserver{in: b.in, kind: kind}),
		channel.WithCopier(b.copy))
}

func (b *Bus) resolveEvent(op, name string) (*catalog.Entry, error) {
	entry, ok := b.names.Lookup(name)
	if !ok || entry.Kind != KindEvent {
		return nil, errs.NotFound(op, name, "no event with this name")
	}
	return entry, nil
}

func (b *Bus) validateClone(op, name string, data any) (any, error) {
	payload, err := b.clone(data)
	if err != nil {
		if errs.Is(err, errs.CodeClone) {
			return nil, err
		}
		return nil, errs.New(op, errs.CodeClone,
			errs.WithName(name),
			errs.WithMessage("payload cannot be copied"),
			errs.WithCause(err))
	}
	return payload, nil
}

// copy is used once a payload is known to be cloneable.
func (b *Bus) copy(v any) any {
	out, err := b.clone(v)
	if err != nil {
		b.logger.Error("payload copy failed", observability.Field{Key: "error", Value: err})
		return v
	}
	return out
}

// dispatch writes data to the stores of the event and of every group
// containing it and queues a copy for each channel, event first. The
// outermost call delivers the queue. It returns the store failures.
func (b *Bus) dispatch(ctx context.Context, op string, event *catalog.Entry, data any, writeStores bool) []error {
	start := time.Now()
	name := event.Name
	result := telemetry.ResultOK
	defer func() {
		if b.in.publishDuration != nil {
			b.in.publishDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000,
				metric.WithAttributes(telemetry.OperationResultAttributes(telemetry.Environment(), name, op, result)...))
		}
	}()

	var failures []error
	put := func(binding, group string) {
		for _, st := range b.stores.Lookup(binding) {
			if err := st.Put(ctx, name, b.copy(data), group); err != nil {
				b.in.addStoreError(ctx, binding, "store.put")
				failures = append(failures, err)
			}
		}
	}

	owner := !b.dispatching
	if owner {
		b.dispatching = true
		defer func() {
			b.dispatching = false
			b.pending = nil
		}()
	}

	if writeStores {
		put(name, "")
	}
	b.enqueue(event, data)

	for _, group := range b.names.GroupsOf(name) {
		if writeStores {
			put(name, group.Name)
			put(group.Name, group.Name)
		}
		b.enqueue(group, data)
	}

	if owner {
		b.drain(ctx)
	}

	if len(failures) > 0 {
		result = telemetry.ResultError
	}
	return failures
}

func (b *Bus) enqueue(entry *catalog.Entry, data any) {
	b.pending = append(b.pending, pendingPublish{entry: entry, payload: b.copy(data)})
}

// drain delivers pending publishes in FIFO order, including those queued by
// handlers while it runs.
func (b *Bus) drain(ctx context.Context) {
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending[0] = pendingPublish{}
		b.pending = b.pending[1:]
		b.publishOn(ctx, next.entry, next.payload)
	}
}

func (b *Bus) publishOn(ctx context.Context, entry *catalog.Entry, payload any) {
	if b.in.published != nil {
		b.in.published.Add(ctx, 1, metric.WithAttributes(
			telemetry.ChannelAttributes(telemetry.Environment(), entry.Name, entry.Kind.String())...))
	}
	entry.Channel.Publish(payload)
}

func (b *Bus) storeError(op, name string, failures []error) error {
	joined := observability.AggregateErrors(b.logger, op, failures,
		observability.Field{Key: "name", Value: name})
	if joined == nil {
		return nil
	}
	return errs.New(op, errs.CodeStore,
		errs.WithName(name),
		errs.WithMessage("one or more store adapters failed"),
		errs.WithCause(joined))
}
