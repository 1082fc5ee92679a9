package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/coachpo/herald/errs"
	"github.com/coachpo/herald/internal/observability"
	"github.com/coachpo/herald/pkg/delivery"
	"github.com/coachpo/herald/pkg/store"
)

func TestPublishBeforeSubscribeReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))

	for i := 1; i <= 4; i++ {
		require.NoError(t, b.Publish(ctx, "e", i))
	}

	first := new(sink)
	_, err := b.Subscribe(ctx, "e", first.handle)
	require.NoError(t, err)
	require.Equal(t, []any{1, 2, 3, 4}, first.values())

	second := new(sink)
	_, err = b.Subscribe(ctx, "e", second.handle)
	require.NoError(t, err)
	require.Empty(t, second.got)

	require.NoError(t, b.Publish(ctx, "e", 5))
	require.Equal(t, []any{1, 2, 3, 4, 5}, first.values())
	require.Equal(t, []any{5}, second.values())
}

func TestPublishDeliversToAllSubscribersBeforeReturning(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))

	var order []string
	for _, tag := range []string{"a", "b", "c"} {
		tag := tag
		_, err := b.Subscribe(ctx, "e", func(any, delivery.Metadata) { order = append(order, tag) })
		require.NoError(t, err)
	}

	require.NoError(t, b.Publish(ctx, "e", "x"))
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestOnceDeliversToFirstCallerOnly(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))
	require.NoError(t, b.Publish(ctx, "e", map[string]any{"token": "t1"}, WithOnce()))

	first, second := new(sink), new(sink)
	require.NoError(t, b.Once("e", first.handle))
	require.NoError(t, b.Once("e", second.handle))

	require.Len(t, first.got, 1)
	require.Equal(t, map[string]any{"token": "t1"}, first.got[0].value)
	require.True(t, first.got[0].meta.IsOnce)
	require.Empty(t, second.got)
}

func TestOnceWithoutStashedValueDeliversNil(t *testing.T) {
	b := New()
	require.NoError(t, b.Group("g", []string{"e"}))

	s := new(sink)
	require.NoError(t, b.Once("g", s.handle))
	require.Len(t, s.got, 1)
	require.Nil(t, s.got[0].value)
	require.True(t, s.got[0].meta.IsOnce)
}

func TestPublishOnceSkipsStoresDeliveryAndGroups(t *testing.T) {
	ctx := context.Background()
	st, gst := new(recordingStore), new(recordingStore)
	b := New()
	require.NoError(t, b.Register("e", st))
	require.NoError(t, b.Group("g", []string{"e"}, gst))

	ev, gr := new(sink), new(sink)
	_, err := b.Subscribe(ctx, "e", ev.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "g", gr.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "e", "secret", WithOnce()))

	require.Empty(t, st.puts)
	require.Empty(t, gst.puts)
	require.Empty(t, ev.live())
	require.Empty(t, gr.live())

	// The group channel has its own once state.
	gonce := new(sink)
	require.NoError(t, b.Once("g", gonce.handle))
	require.Nil(t, gonce.got[0].value)
}

func TestStreamTagsNextDeliveries(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))
	s := new(sink)
	_, err := b.Subscribe(ctx, "e", s.handle)
	require.NoError(t, err)

	require.NoError(t, b.Stream("e", 3))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, "e", i))
	}

	got := s.live()
	require.Len(t, got, 5)
	for i, left := range []int{3, 2, 1} {
		require.True(t, got[i].meta.IsStream, "delivery %d", i)
		require.Equal(t, left, got[i].meta.Stream.StreamsLeft)
		require.True(t, got[i].meta.Stream.Streaming)
	}
	for _, d := range got[3:] {
		require.False(t, d.meta.IsStream)
		require.Nil(t, d.meta.Stream)
	}
}

func TestStreamValidation(t *testing.T) {
	b := New()
	require.NoError(t, b.Register("e"))

	require.True(t, errs.Is(b.Stream("e", -1), errs.CodeInvalid))
	require.True(t, errs.Is(b.Stream("missing", 2), errs.CodeNotFound))
	require.NoError(t, b.Stream("e", 0))
}

func TestNamesAreUniqueAcrossEventsAndGroups(t *testing.T) {
	b := New()
	require.NoError(t, b.Register("x"))
	require.True(t, errs.Is(b.Register("x"), errs.CodeAlreadyExists))
	require.True(t, errs.Is(b.Group("x", []string{"a"}), errs.CodeAlreadyExists))

	require.NoError(t, b.Group("y", []string{"x"}))
	require.True(t, errs.Is(b.Register("y"), errs.CodeAlreadyExists))
	require.True(t, errs.Is(b.Group("y", []string{"x"}), errs.CodeAlreadyExists))
}

func TestUnknownNamesAndKeys(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Group("g", []string{"e"}))

	require.True(t, errs.Is(b.Publish(ctx, "missing", 1), errs.CodeNotFound))
	require.True(t, errs.Is(b.Publish(ctx, "g", 1), errs.CodeNotFound))
	require.True(t, errs.Is(b.Destroy(delivery.NewKey()), errs.CodeNotFound))
	require.True(t, errs.Is(b.Once("missing", func(any, delivery.Metadata) {}), errs.CodeNotFound))

	_, err := b.Subscribe(ctx, "missing", func(any, delivery.Metadata) {})
	require.True(t, errs.Is(err, errs.CodeNotFound))

	// Member events are resolved on publish.
	require.True(t, errs.Is(b.Publish(ctx, "e", 1), errs.CodeNotFound))
}

func TestNilHandlers(t *testing.T) {
	b := New()
	require.NoError(t, b.Register("e"))
	_, err := b.Subscribe(context.Background(), "e", nil)
	require.True(t, errs.Is(err, errs.CodeInvalid))
	require.True(t, errs.Is(b.Once("e", nil), errs.CodeInvalid))
}

func TestGroupFanOutCopiesForStoresAndSubscribers(t *testing.T) {
	ctx := context.Background()
	s, g := new(recordingStore), new(recordingStore)
	b := New()
	for _, name := range []string{"e1", "e2", "e3"} {
		require.NoError(t, b.Register(name, s))
	}
	require.NoError(t, b.Group("g", []string{"e1", "e2", "e3"}, g))

	_, err := b.Subscribe(ctx, "g", func(v any, m delivery.Metadata) {
		if m.IsStore {
			return
		}
		v.(map[string]any)["name"] = "mutated"
	})
	require.NoError(t, err)

	payload := map[string]any{"name": "e1"}
	require.NoError(t, b.Publish(ctx, "e1", payload))

	require.Equal(t, []putCall{
		{event: "e1", value: map[string]any{"name": "e1"}, group: ""},
		{event: "e1", value: map[string]any{"name": "e1"}, group: "g"},
	}, s.puts)
	require.Equal(t, []putCall{
		{event: "e1", value: map[string]any{"name": "e1"}, group: "g"},
	}, g.puts)
	require.Equal(t, "e1", payload["name"])
}

func TestGroupReceivesMemberEventsInPublishOrder(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Group("g", []string{"b", "a"}))
	require.NoError(t, b.Register("a"))
	require.NoError(t, b.Register("b"))

	gs := new(sink)
	_, err := b.Subscribe(ctx, "g", gs.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "a", "a1"))
	require.NoError(t, b.Publish(ctx, "b", "b1"))
	require.NoError(t, b.Publish(ctx, "a", "a2"))
	require.Equal(t, []any{"a1", "b1", "a2"}, gs.values())
}

func TestGroupBuffersUntilSubscribed(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))
	require.NoError(t, b.Group("g", []string{"e"}))

	ev := new(sink)
	_, err := b.Subscribe(ctx, "e", ev.handle)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "e", 1))
	require.NoError(t, b.Publish(ctx, "e", 2))

	gs := new(sink)
	_, err = b.Subscribe(ctx, "g", gs.handle)
	require.NoError(t, err)
	require.Equal(t, []any{1, 2}, gs.values())
	require.Equal(t, []any{1, 2}, ev.values())
}

func TestSubscribersGetIndependentCopies(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))

	_, err := b.Subscribe(ctx, "e", func(v any, _ delivery.Metadata) {
		v.(map[string]any)["seen"] = true
	})
	require.NoError(t, err)
	var second map[string]any
	_, err = b.Subscribe(ctx, "e", func(v any, _ delivery.Metadata) {
		second = v.(map[string]any)
	})
	require.NoError(t, err)

	payload := map[string]any{"n": 1}
	require.NoError(t, b.Publish(ctx, "e", payload))
	require.Equal(t, map[string]any{"n": 1}, second)
	require.Equal(t, map[string]any{"n": 1}, payload)
}

func TestOnceAndStreamConflict(t *testing.T) {
	ctx := context.Background()
	st := new(recordingStore)
	b := New()
	require.NoError(t, b.Register("e", st))
	s := new(sink)
	_, err := b.Subscribe(ctx, "e", s.handle)
	require.NoError(t, err)

	err = b.Publish(ctx, "e", 1, WithOnce(), WithStream())
	require.True(t, errs.Is(err, errs.CodeInvalid))
	require.Empty(t, st.puts)
	require.Empty(t, s.live())

	once := new(sink)
	require.NoError(t, b.Once("e", once.handle))
	require.Nil(t, once.got[0].value)
}

func TestWithStreamAloneDelivers(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))
	s := new(sink)
	_, err := b.Subscribe(ctx, "e", s.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "e", 1, WithStream()))
	require.Equal(t, []any{1}, s.values())
}

func TestFirstSubscriberPrimedWithStoreSnapshots(t *testing.T) {
	ctx := context.Background()
	first := &recordingStore{snapshot: "snap-1"}
	second := &recordingStore{snapshot: "snap-2"}
	b := New()
	require.NoError(t, b.Register("e", first, second))
	require.NoError(t, b.Publish(ctx, "e", "buffered"))

	s := new(sink)
	key, err := b.Subscribe(ctx, "e", s.handle)
	require.NoError(t, err)
	require.Len(t, s.got, 3)
	require.Equal(t, delivered{value: "snap-1", meta: delivery.Metadata{IsStore: true}}, s.got[0])
	require.Equal(t, delivered{value: "snap-2", meta: delivery.Metadata{IsStore: true}}, s.got[1])
	require.Equal(t, "buffered", s.got[2].value)

	late := new(sink)
	_, err = b.Subscribe(ctx, "e", late.handle)
	require.NoError(t, err)
	require.Empty(t, late.got)
	require.Equal(t, 1, first.gets)

	// The channel stays active while late is subscribed.
	require.NoError(t, b.Destroy(key))
	require.NoError(t, b.Publish(ctx, "e", "x"))
	require.Equal(t, []any{"x"}, late.values())
	again := new(sink)
	_, err = b.Subscribe(ctx, "e", again.handle)
	require.NoError(t, err)
	require.Empty(t, again.got)
}

func TestPrimingAfterAllSubscribersLeave(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{snapshot: "snap"}
	b := New()
	require.NoError(t, b.Register("e", st))

	s := new(sink)
	key, err := b.Subscribe(ctx, "e", s.handle)
	require.NoError(t, err)
	require.NoError(t, b.Destroy(key))

	again := new(sink)
	_, err = b.Subscribe(ctx, "e", again.handle)
	require.NoError(t, err)
	require.Len(t, again.got, 1)
	require.True(t, again.got[0].meta.IsStore)
	require.Equal(t, 2, st.gets)
}

func TestSubscribeFailsWhenSnapshotFails(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{err: errStoreDown}
	b := New()
	require.NoError(t, b.Register("e", st))

	_, err := b.Subscribe(ctx, "e", func(any, delivery.Metadata) {})
	require.True(t, errs.Is(err, errs.CodeStore))
	require.ErrorIs(t, err, errStoreDown)

	n, err := b.SubscriberCount("e")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStoreFailuresReturnedAfterDelivery(t *testing.T) {
	ctx := context.Background()
	broken := &recordingStore{err: errStoreDown}
	healthy := new(recordingStore)
	b := New()
	require.NoError(t, b.Register("e", broken, healthy))
	require.NoError(t, b.Group("g", []string{"e"}, broken))

	s := new(sink)
	_, err := b.Subscribe(ctx, "g", s.handle)
	require.Error(t, err)

	gs := new(sink)
	broken.err = nil
	_, err = b.Subscribe(ctx, "g", gs.handle)
	require.NoError(t, err)
	broken.err = errStoreDown

	err = b.Publish(ctx, "e", "v")
	require.True(t, errs.Is(err, errs.CodeStore))
	require.ErrorIs(t, err, errStoreDown)
	require.Len(t, healthy.puts, 2)
	require.Len(t, broken.puts, 3)
	require.Equal(t, []any{"v"}, gs.values())
}

func TestPublishRemove(t *testing.T) {
	ctx := context.Background()
	s, g := new(recordingStore), new(recordingStore)
	b := New()
	require.NoError(t, b.Register("e1", s))
	require.NoError(t, b.Register("e2", s))
	require.NoError(t, b.Group("g", []string{"e1", "e2"}, g))

	ev, gs := new(sink), new(sink)
	_, err := b.Subscribe(ctx, "e1", ev.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "g", gs.handle)
	require.NoError(t, err)

	require.NoError(t, b.PublishRemove(ctx, "e1", "gone", []string{"e1", "g"}))

	require.Equal(t, []removeCall{{event: "e1", value: "gone", groups: []string{"g"}}}, s.removes)
	require.Equal(t, []removeCall{{event: "g", value: "gone", groups: []string{"g"}}}, g.removes)
	require.Empty(t, s.puts)
	require.Empty(t, g.puts)
	require.Equal(t, []any{"gone"}, ev.values())
	require.Equal(t, []any{"gone"}, gs.values())
}

func TestPublishRemoveValidatesTargetsFirst(t *testing.T) {
	ctx := context.Background()
	s := new(recordingStore)
	b := New()
	require.NoError(t, b.Register("e1", s))
	ev := new(sink)
	_, err := b.Subscribe(ctx, "e1", ev.handle)
	require.NoError(t, err)

	err = b.PublishRemove(ctx, "e1", "v", []string{"e1", "nope"})
	require.True(t, errs.Is(err, errs.CodeNotFound))
	require.Empty(t, s.removes)
	require.Empty(t, ev.live())

	err = b.PublishRemove(ctx, "nope", "v", nil)
	require.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestPublishRemoveFromHandler(t *testing.T) {
	ctx := context.Background()
	st := store.NewLatestStore()
	b := New()
	require.NoError(t, b.Register("created", st))
	require.NoError(t, b.Register("deleted"))

	_, err := b.Subscribe(ctx, "created", func(v any, m delivery.Metadata) {
		if m.IsStore {
			return
		}
		require.NoError(t, b.PublishRemove(ctx, "deleted", v, []string{"created"}))
	})
	require.NoError(t, err)
	ds := new(sink)
	_, err = b.Subscribe(ctx, "deleted", ds.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "created", "id-1"))
	require.Equal(t, []any{"id-1"}, ds.values())

	snap, err := st.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, snap)
}

func TestReentrantPublishKeepsChannelOrder(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))

	var seen []any
	_, err := b.Subscribe(ctx, "e", func(v any, _ delivery.Metadata) {
		seen = append(seen, v)
		if v == "first" {
			require.NoError(t, b.Publish(ctx, "e", "nested"))
		}
	})
	require.NoError(t, err)
	late := new(sink)
	_, err = b.Subscribe(ctx, "e", late.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "e", "first"))
	require.Equal(t, []any{"first", "nested"}, seen)
	require.Equal(t, []any{"first", "nested"}, late.values())
}

func TestGroupOrderHoldsForPublishesFromHandlers(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e1"))
	require.NoError(t, b.Register("e2"))
	require.NoError(t, b.Group("g", []string{"e1", "e2"}))

	_, err := b.Subscribe(ctx, "e1", func(v any, _ delivery.Metadata) {
		require.NoError(t, b.Publish(ctx, "e2", "from-"+v.(string)))
	})
	require.NoError(t, err)
	e2 := new(sink)
	_, err = b.Subscribe(ctx, "e2", e2.handle)
	require.NoError(t, err)
	gs := new(sink)
	_, err = b.Subscribe(ctx, "g", gs.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "e1", "a"))
	require.NoError(t, b.Publish(ctx, "e1", "b"))

	require.Equal(t, []any{"a", "from-a", "b", "from-b"}, gs.values())
	require.Equal(t, []any{"from-a", "from-b"}, e2.values())
}

func TestPublishFromHandlerWritesStoresBeforeReturning(t *testing.T) {
	ctx := context.Background()
	st := new(recordingStore)
	b := New()
	require.NoError(t, b.Register("e1"))
	require.NoError(t, b.Register("e2", st))

	var putsSeen int
	_, err := b.Subscribe(ctx, "e1", func(any, delivery.Metadata) {
		require.NoError(t, b.Publish(ctx, "e2", "x"))
		putsSeen = len(st.puts)
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "e1", "v"))
	require.Equal(t, 1, putsSeen)
}

func TestSnapshot(t *testing.T) {
	a, c := store.NewLatestStore(), store.NewHistoryStore()
	b := New()
	require.NoError(t, b.Register("e", a))
	require.NoError(t, b.Group("g", []string{"e"}, c))
	require.NoError(t, b.Register("bare"))

	got, err := b.Snapshot("e")
	require.NoError(t, err)
	require.Equal(t, []store.Store{a}, got)

	got, err = b.Snapshot("g")
	require.NoError(t, err)
	require.Equal(t, []store.Store{c}, got)

	_, err = b.Snapshot("bare")
	require.True(t, errs.Is(err, errs.CodeNotFound))
	_, err = b.Snapshot("missing")
	require.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))
	require.NoError(t, b.Group("g", []string{"e"}))

	s := new(sink)
	ek, err := b.Subscribe(ctx, "e", s.handle)
	require.NoError(t, err)
	gk, err := b.Subscribe(ctx, "g", func(any, delivery.Metadata) {})
	require.NoError(t, err)

	require.NoError(t, b.Destroy(gk))
	require.NoError(t, b.Destroy(ek))
	require.True(t, errs.Is(b.Destroy(ek), errs.CodeNotFound))

	require.NoError(t, b.Publish(ctx, "e", "after"))
	require.Empty(t, s.got)

	again := new(sink)
	_, err = b.Subscribe(ctx, "e", again.handle)
	require.NoError(t, err)
	require.Equal(t, []any{"after"}, again.values())
}

func TestCloneFailurePreventsWrites(t *testing.T) {
	ctx := context.Background()
	st := new(recordingStore)
	b := New()
	require.NoError(t, b.Register("e", st))
	s := new(sink)
	_, err := b.Subscribe(ctx, "e", s.handle)
	require.NoError(t, err)

	err = b.Publish(ctx, "e", map[string]any{"ch": make(chan int)})
	require.True(t, errs.Is(err, errs.CodeClone))
	require.Empty(t, st.puts)
	require.Empty(t, s.live())
}

func TestWithClonerWrapsFailures(t *testing.T) {
	boom := errors.New("boom")
	b := New(WithCloner(func(any) (any, error) { return nil, boom }))
	require.NoError(t, b.Register("e"))

	err := b.Publish(context.Background(), "e", 1)
	require.True(t, errs.Is(err, errs.CodeClone))
	require.ErrorIs(t, err, boom)
}

func TestIntrospection(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register("e"))
	require.NoError(t, b.Group("g1", []string{"e"}))
	require.NoError(t, b.Group("g2", []string{"e", "other"}))

	require.True(t, b.Has("e"))
	require.False(t, b.Has("nope"))

	kind, ok := b.Kind("g1")
	require.True(t, ok)
	require.Equal(t, KindGroup, kind)
	kind, ok = b.Kind("e")
	require.True(t, ok)
	require.Equal(t, KindEvent, kind)
	_, ok = b.Kind("nope")
	require.False(t, ok)

	require.Equal(t, []string{"g1", "g2"}, b.GroupsOf("e"))
	require.Equal(t, []string{"g2"}, b.GroupsOf("other"))

	_, err := b.Subscribe(ctx, "g2", func(any, delivery.Metadata) {})
	require.NoError(t, err)
	n, err := b.SubscriberCount("g2")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = b.SubscriberCount("nope")
	require.True(t, errs.Is(err, errs.CodeNotFound))
}

type errorLogger struct {
	messages []string
}

func (l *errorLogger) Debug(string, ...observability.Field) {}
func (l *errorLogger) Info(string, ...observability.Field)  {}
func (l *errorLogger) Error(msg string, _ ...observability.Field) {
	l.messages = append(l.messages, msg)
}

func TestWithLoggerReceivesStoreFailures(t *testing.T) {
	logger := new(errorLogger)
	b := New(WithLogger(logger))
	require.NoError(t, b.Register("e", &recordingStore{err: errStoreDown}))

	require.Error(t, b.Publish(context.Background(), "e", 1))
	require.Equal(t, []string{"operation errors"}, logger.messages)
}

func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	b := New(WithMeter(provider.Meter("bus-test")))
	require.NoError(t, b.Register("e"))
	require.NoError(t, b.Group("g", []string{"e"}))
	require.NoError(t, b.Publish(ctx, "e", 1))

	_, err := b.Subscribe(ctx, "e", func(any, delivery.Metadata) {})
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "e", func(any, delivery.Metadata) {})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "e", 2))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	require.Equal(t, int64(4), sumInt64(rm, "bus.events.published"))
	require.Equal(t, int64(3), sumInt64(rm, "bus.events.buffered"))
	require.Equal(t, int64(3), sumInt64(rm, "bus.deliveries"))
	require.Equal(t, int64(2), sumInt64(rm, "bus.subscribers"))
}

func sumInt64(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
