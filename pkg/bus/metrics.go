package bus

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/herald/internal/telemetry"
	"github.com/coachpo/herald/pkg/delivery"
)

type instruments struct {
	published       metric.Int64Counter
	deliveries      metric.Int64Counter
	buffered        metric.Int64Counter
	subscribers     metric.Int64UpDownCounter
	storeErrors     metric.Int64Counter
	publishDuration metric.Float64Histogram
	fanout          metric.Int64Histogram
}

func newInstruments(meter metric.Meter) instruments {
	var in instruments
	in.published, _ = meter.Int64Counter("bus.events.published",
		metric.WithDescription("Number of values published to the bus"),
		metric.WithUnit("{event}"))
	in.deliveries, _ = meter.Int64Counter("bus.deliveries",
		metric.WithDescription("Number of handler invocations"),
		metric.WithUnit("{delivery}"))
	in.buffered, _ = meter.Int64Counter("bus.events.buffered",
		metric.WithDescription("Number of values buffered by channels without subscribers"),
		metric.WithUnit("{event}"))
	in.subscribers, _ = meter.Int64UpDownCounter("bus.subscribers",
		metric.WithDescription("Number of live subscriptions"),
		metric.WithUnit("{subscriber}"))
	in.storeErrors, _ = meter.Int64Counter("bus.store.errors",
		metric.WithDescription("Number of failed store adapter calls"),
		metric.WithUnit("{error}"))
	in.publishDuration, _ = meter.Float64Histogram("bus.publish.duration",
		metric.WithDescription("Latency of bus publish operations"),
		metric.WithUnit("ms"))
	in.fanout, _ = meter.Int64Histogram("bus.fanout.size",
		metric.WithDescription("Subscribers reached by one delivery"),
		metric.WithUnit("{subscriber}"))
	return in
}

func (in instruments) addDeliveries(ctx context.Context, channel, kind string, n int) {
	if in.deliveries == nil || n == 0 {
		return
	}
	in.deliveries.Add(ctx, int64(n), metric.WithAttributes(
		telemetry.DeliveryAttributes(telemetry.Environment(), channel, kind)...))
}

func (in instruments) addSubscribers(ctx context.Context, channel, kind string, delta int64) {
	if in.subscribers == nil {
		return
	}
	in.subscribers.Add(ctx, delta, metric.WithAttributes(
		telemetry.ChannelAttributes(telemetry.Environment(), channel, kind)...))
}

func (in instruments) addStoreError(ctx context.Context, channel, operation string) {
	if in.storeErrors == nil {
		return
	}
	in.storeErrors.Add(ctx, 1, metric.WithAttributes(
		telemetry.OperationResultAttributes(telemetry.Environment(), channel, operation, telemetry.ResultError)...))
}

// channelObserver forwards channel notifications to the bus instruments.
type channelObserver struct {
	in   instruments
	kind string
}

func (o channelObserver) Buffered(channel string) {
	if o.in.buffered == nil {
		return
	}
	o.in.buffered.Add(context.Background(), 1, metric.WithAttributes(
		telemetry.ChannelAttributes(telemetry.Environment(), channel, o.kind)...))
}

func (o channelObserver) Delivered(channel string, subscribers int, meta delivery.Metadata) {
	ctx := context.Background()
	kind := telemetry.DeliveryLive
	if meta.IsStream {
		kind = telemetry.DeliveryStream
	}
	o.in.addDeliveries(ctx, channel, kind, subscribers)
	if o.in.fanout != nil {
		o.in.fanout.Record(ctx, int64(subscribers), metric.WithAttributes(
			telemetry.ChannelAttributes(telemetry.Environment(), channel, o.kind)...))
	}
}
