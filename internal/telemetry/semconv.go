package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for bus telemetry, following the OpenTelemetry
// namespace.attribute_name convention.
const (
	AttrEnvironment = attribute.Key("environment")

	// Channel attributes
	AttrChannel     = attribute.Key("bus.channel")
	AttrChannelKind = attribute.Key("bus.channel.kind")
	AttrDelivery    = attribute.Key("bus.delivery")

	AttrOperation = attribute.Key("operation")
	AttrResult    = attribute.Key("result")
)

// Channel kind values
const (
	ChannelKindEvent = "event"
	ChannelKindGroup = "group"
)

// Delivery kind values
const (
	DeliveryLive   = "live"
	DeliveryStream = "stream"
	DeliveryStore  = "store"
	DeliveryOnce   = "once"
)

// Result values
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// ChannelAttributes returns common attributes for per-channel metrics.
func ChannelAttributes(environment, channel, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrChannel.String(channel),
		AttrChannelKind.String(kind),
	}
}

// DeliveryAttributes returns attributes for delivery counters.
func DeliveryAttributes(environment, channel, delivery string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrChannel.String(channel),
		AttrDelivery.String(delivery),
	}
}

// OperationResultAttributes returns attributes for operation outcome metrics.
func OperationResultAttributes(environment, channel, operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrChannel.String(channel),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}
