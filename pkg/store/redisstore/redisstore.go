// Package redisstore persists bus values in Redis.
//
// Layout under a key prefix P:
//
//	P:latest          hash  event -> JSON of the last value
//	P:history:<event> list  JSON values in publish order
//	P:group:<group>   hash  event -> JSON of the last value seen through the group
//	P:groups          set   group names that have a hash
package redisstore

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/coachpo/herald/errs"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "herald"

// Snapshot is the value returned by Store.Get.
type Snapshot struct {
	Latest map[string]any            `json:"latest"`
	Groups map[string]map[string]any `json:"groups,omitempty"`
}

// Store implements store.Store on top of a Redis client.
type Store struct {
	client redis.Cmdable
	prefix string
}

// New wraps an existing client. An empty prefix falls back to DefaultPrefix.
func New(client redis.Cmdable, prefix string) *Store {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Connect initializes a Redis client from a redis:// URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// Prefix returns the key prefix in use.
func (s *Store) Prefix() string {
	return s.prefix
}

func (s *Store) latestKey() string { return s.prefix + ":latest" }

func (s *Store) historyKey(event string) string { return s.prefix + ":history:" + event }

func (s *Store) groupKey(group string) string { return s.prefix + ":group:" + group }

func (s *Store) groupsKey() string { return s.prefix + ":groups" }

// Put records value as the latest for eventName and appends it to its history.
func (s *Store) Put(ctx context.Context, eventName string, value any, groupName string) error {
	if s.client == nil {
		return errs.New("redisstore/put", errs.CodeStore, errs.WithMessage("redis client not configured"))
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.latestKey(), eventName, raw)
		p.RPush(ctx, s.historyKey(eventName), raw)
		if groupName != "" {
			p.HSet(ctx, s.groupKey(groupName), eventName, raw)
			p.SAdd(ctx, s.groupsKey(), groupName)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", eventName, err)
	}
	return nil
}

// Remove drops eventName from the latest hash, its history and the hashes of
// groupNames.
func (s *Store) Remove(ctx context.Context, eventName string, _ any, groupNames []string) (bool, error) {
	if s.client == nil {
		return false, errs.New("redisstore/remove", errs.CodeStore, errs.WithMessage("redis client not configured"))
	}
	var counts []*redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		counts = append(counts,
			p.HDel(ctx, s.latestKey(), eventName),
			p.Del(ctx, s.historyKey(eventName)))
		for _, g := range groupNames {
			counts = append(counts, p.HDel(ctx, s.groupKey(g), eventName))
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis remove %s: %w", eventName, err)
	}
	var removed int64
	for _, c := range counts {
		removed += c.Val()
	}
	return removed > 0, nil
}

// Get returns a *Snapshot with the latest values and the per-group hashes.
func (s *Store) Get(ctx context.Context) (any, error) {
	if s.client == nil {
		return nil, errs.New("redisstore/get", errs.CodeStore, errs.WithMessage("redis client not configured"))
	}
	latest, err := s.client.HGetAll(ctx, s.latestKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get latest: %w", err)
	}
	snap := &Snapshot{Latest: make(map[string]any, len(latest))}
	if err := decodeInto(snap.Latest, latest); err != nil {
		return nil, err
	}

	groups, err := s.client.SMembers(ctx, s.groupsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get groups: %w", err)
	}
	if len(groups) == 0 {
		return snap, nil
	}
	snap.Groups = make(map[string]map[string]any, len(groups))
	for _, g := range groups {
		fields, err := s.client.HGetAll(ctx, s.groupKey(g)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis get group %s: %w", g, err)
		}
		values := make(map[string]any, len(fields))
		if err := decodeInto(values, fields); err != nil {
			return nil, err
		}
		snap.Groups[g] = values
	}
	return snap, nil
}

// History returns every value recorded for eventName in publish order.
func (s *Store) History(ctx context.Context, eventName string) ([]any, error) {
	if s.client == nil {
		return nil, errs.New("redisstore/history", errs.CodeStore, errs.WithMessage("redis client not configured"))
	}
	raws, err := s.client.LRange(ctx, s.historyKey(eventName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history %s: %w", eventName, err)
	}
	out := make([]any, 0, len(raws))
	for _, raw := range raws {
		v, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func encode(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", errs.New("redisstore/encode", errs.CodeStore,
			errs.WithMessage("value cannot be encoded as JSON"), errs.WithCause(err))
	}
	return string(raw), nil
}

func decode(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, errs.New("redisstore/decode", errs.CodeStore,
			errs.WithMessage("stored value is not valid JSON"), errs.WithCause(err))
	}
	return v, nil
}

func decodeInto(dst map[string]any, fields map[string]string) error {
	for k, raw := range fields {
		v, err := decode(raw)
		if err != nil {
			return err
		}
		dst[k] = v
	}
	return nil
}
