package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/coachpo/herald/errs"
	"github.com/coachpo/herald/internal/config"
	"github.com/coachpo/herald/internal/observability"
	"github.com/coachpo/herald/pkg/bus"
	"github.com/coachpo/herald/pkg/delivery"
)

const (
	opPublish       = "publish"
	opPublishRemove = "publishRemove"
	opOnce          = "once"
	opStream        = "stream"
	opSubscribe     = "subscribe"
	opDestroy       = "destroy"
	opSnapshot      = "snapshot"

	onceHandle   = "once"
	maxLineBytes = 1 << 20
)

// command is one NDJSON replay instruction.
type command struct {
	Op           string          `json:"op"`
	Name         string          `json:"name,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Once         bool            `json:"once,omitempty"`
	Stream       bool            `json:"stream,omitempty"`
	Count        int             `json:"count,omitempty"`
	Events       []string        `json:"events,omitempty"`
	Subscription string          `json:"subscription,omitempty"`
}

func parseCommand(line []byte) (command, error) {
	var cmd command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return command{}, fmt.Errorf("decode command: %w", err)
	}
	cmd.Op = strings.TrimSpace(cmd.Op)
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Subscription = strings.TrimSpace(cmd.Subscription)

	switch cmd.Op {
	case opPublish, opPublishRemove, opOnce, opStream, opSubscribe, opSnapshot:
		if cmd.Name == "" {
			return command{}, fmt.Errorf("%s: name required", cmd.Op)
		}
	case opDestroy:
		if cmd.Subscription == "" {
			return command{}, fmt.Errorf("destroy: subscription required")
		}
	case "":
		return command{}, fmt.Errorf("op required")
	default:
		return command{}, fmt.Errorf("unknown op %q", cmd.Op)
	}
	return cmd, nil
}

func (c command) value() (any, error) {
	if len(c.Data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(c.Data, &v); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return v, nil
}

type deliveryRecord struct {
	Subscription string            `json:"subscription"`
	Name         string            `json:"name"`
	Value        any               `json:"value"`
	Meta         delivery.Metadata `json:"meta"`
}

type ackRecord struct {
	Op           string `json:"op"`
	Name         string `json:"name,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	Key          string `json:"key,omitempty"`
}

type snapshotRecord struct {
	Op     string `json:"op"`
	Name   string `json:"name"`
	Stores []any  `json:"stores"`
}

type errorRecord struct {
	Line  int    `json:"line"`
	Op    string `json:"op,omitempty"`
	Error string `json:"error"`
}

// replayer drives a Bus from NDJSON commands and writes every delivery as an
// NDJSON record. It must be used from a single goroutine.
type replayer struct {
	bus     *bus.Bus
	enc     *json.Encoder
	logger  observability.Logger
	limiter *rate.Limiter

	subs     map[string]delivery.Key
	next     int
	failures int
}

func newReplayer(b *bus.Bus, out io.Writer, logger observability.Logger, cfg config.ReplayConfig) *replayer {
	if logger == nil {
		logger = observability.Nop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &replayer{
		bus:     b,
		enc:     json.NewEncoder(out),
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		subs:    make(map[string]delivery.Key),
	}
}

// replay executes commands from in until EOF or ctx is cancelled. Failed
// commands are reported and counted without stopping the replay.
func (r *replayer) replay(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay stopped at line %d: %w", line, err)
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("replay paused at line %d: %w", line, err)
		}

		cmd, err := parseCommand(raw)
		if err == nil {
			err = r.execute(ctx, cmd)
		}
		if err != nil {
			r.failures++
			r.logger.Error("replay command failed",
				observability.Field{Key: "line", Value: line},
				observability.Field{Key: "op", Value: cmd.Op},
				observability.Field{Key: "error", Value: err})
			r.emit(errorRecord{Line: line, Op: cmd.Op, Error: err.Error()})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	return nil
}

func (r *replayer) execute(ctx context.Context, cmd command) error {
	switch cmd.Op {
	case opPublish:
		v, err := cmd.value()
		if err != nil {
			return err
		}
		var opts []bus.PublishOption
		if cmd.Once {
			opts = append(opts, bus.WithOnce())
		}
		if cmd.Stream {
			opts = append(opts, bus.WithStream())
		}
		return r.bus.Publish(ctx, cmd.Name, v, opts...)
	case opPublishRemove:
		v, err := cmd.value()
		if err != nil {
			return err
		}
		return r.bus.PublishRemove(ctx, cmd.Name, v, cmd.Events)
	case opOnce:
		return r.bus.Once(cmd.Name, r.handler(onceHandle, cmd.Name))
	case opStream:
		return r.bus.Stream(cmd.Name, cmd.Count)
	case opSubscribe:
		_, err := r.subscribe(ctx, cmd.Name)
		return err
	case opDestroy:
		return r.destroy(cmd.Subscription)
	case opSnapshot:
		return r.snapshot(ctx, cmd.Name)
	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
}

// subscribe registers a printing handler on name and returns its handle.
// Handles are assigned before subscribing so store and buffered deliveries
// made during the call already carry it.
func (r *replayer) subscribe(ctx context.Context, name string) (string, error) {
	handle := "s" + strconv.Itoa(r.next+1)
	key, err := r.bus.Subscribe(ctx, name, r.handler(handle, name))
	if err != nil {
		return "", err
	}
	r.next++
	r.subs[handle] = key
	r.emit(ackRecord{Op: opSubscribe, Name: name, Subscription: handle, Key: key.String()})
	return handle, nil
}

func (r *replayer) destroy(handle string) error {
	key, ok := r.subs[handle]
	if !ok {
		return errs.NotFound("herald/destroy", handle, "unknown subscription handle")
	}
	if err := r.bus.Destroy(key); err != nil {
		return err
	}
	delete(r.subs, handle)
	r.emit(ackRecord{Op: opDestroy, Subscription: handle})
	return nil
}

func (r *replayer) snapshot(ctx context.Context, name string) error {
	stores, err := r.bus.Snapshot(name)
	if err != nil {
		return err
	}
	values := make([]any, 0, len(stores))
	for _, st := range stores {
		v, err := st.Get(ctx)
		if err != nil {
			return errs.New("herald/snapshot", errs.CodeStore, errs.WithName(name), errs.WithCause(err))
		}
		values = append(values, v)
	}
	r.emit(snapshotRecord{Op: opSnapshot, Name: name, Stores: values})
	return nil
}

func (r *replayer) handler(handle, name string) delivery.Handler {
	return func(value any, meta delivery.Metadata) {
		r.emit(deliveryRecord{Subscription: handle, Name: name, Value: value, Meta: meta})
	}
}

func (r *replayer) emit(record any) {
	if err := r.enc.Encode(record); err != nil {
		r.logger.Error("write record", observability.Field{Key: "error", Value: err})
	}
}
