// Package config manages herald configuration loading and validation.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultServiceName    = "herald"
	defaultRedisPrefix    = "herald"
	defaultConnectTimeout = 30 * time.Second
	defaultMaxConns       = 8
)

// EventConfig declares an event and the stores bound to it.
type EventConfig struct {
	Name   string   `yaml:"name"`
	Stores []string `yaml:"stores"`
}

// GroupConfig declares a group over member events.
type GroupConfig struct {
	Name   string   `yaml:"name"`
	Events []string `yaml:"events"`
	Stores []string `yaml:"stores"`
}

// RedisConfig configures a Redis-backed store.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// StoreConfig declares a named store adapter.
type StoreConfig struct {
	Kind  StoreKind   `yaml:"kind"`
	Redis RedisConfig `yaml:"redis"`
	// Namespace separates Postgres stores sharing the same table. Defaults to
	// the store name.
	Namespace string `yaml:"namespace"`
}

// DatabaseConfig configures the Postgres connection shared by postgres stores.
type DatabaseConfig struct {
	DSN           string `yaml:"dsn"`
	MaxConns      int32  `yaml:"maxConns"`
	RunMigrations bool   `yaml:"runMigrations"`
}

// ReplayConfig paces command replay. A zero rate replays as fast as possible.
type ReplayConfig struct {
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// AppConfig is the herald CLI configuration sourced from YAML.
type AppConfig struct {
	Environment    Environment            `yaml:"environment"`
	Events         []EventConfig          `yaml:"events"`
	Groups         []GroupConfig          `yaml:"groups"`
	Stores         map[string]StoreConfig `yaml:"stores"`
	Subscribe      []string               `yaml:"subscribe"`
	Database       DatabaseConfig         `yaml:"database"`
	Replay         ReplayConfig           `yaml:"replay"`
	Telemetry      TelemetryConfig        `yaml:"telemetry"`
	ConnectTimeout time.Duration          `yaml:"connectTimeout"`
}

// Default returns an empty topology with default settings.
func Default() AppConfig {
	cfg := AppConfig{
		Environment:    EnvDev,
		Stores:         map[string]StoreConfig{},
		Replay:         ReplayConfig{RatePerSecond: 0, Burst: 1},
		Telemetry:      TelemetryConfig{ServiceName: defaultServiceName},
		ConnectTimeout: defaultConnectTimeout,
	}
	cfg.Database.MaxConns = defaultMaxConns
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadOrDefault loads configPath, or returns Default when it is empty.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) == "" {
		cfg := Default()
		cfg.normalise()
		return cfg, nil
	}
	return Load(ctx, configPath)
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(normalizeName(string(c.Environment)))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	for i := range c.Events {
		c.Events[i].Name = strings.TrimSpace(c.Events[i].Name)
		c.Events[i].Stores = trimAll(c.Events[i].Stores)
	}
	for i := range c.Groups {
		c.Groups[i].Name = strings.TrimSpace(c.Groups[i].Name)
		c.Groups[i].Events = trimAll(c.Groups[i].Events)
		c.Groups[i].Stores = trimAll(c.Groups[i].Stores)
	}
	c.Subscribe = trimAll(c.Subscribe)

	stores := make(map[string]StoreConfig, len(c.Stores))
	for name, sc := range c.Stores {
		sc.Kind = StoreKind(normalizeName(string(sc.Kind)))
		sc.Redis.URL = strings.TrimSpace(sc.Redis.URL)
		sc.Redis.Prefix = strings.TrimSpace(sc.Redis.Prefix)
		if sc.Kind == StoreRedis && sc.Redis.Prefix == "" {
			sc.Redis.Prefix = defaultRedisPrefix
		}
		sc.Namespace = strings.TrimSpace(sc.Namespace)
		if sc.Kind == StorePostgres && sc.Namespace == "" {
			sc.Namespace = strings.TrimSpace(name)
		}
		stores[strings.TrimSpace(name)] = sc
	}
	c.Stores = stores

	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = defaultMaxConns
	}
	if c.Replay.Burst <= 0 {
		c.Replay.Burst = 1
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	needsDatabase := false
	for name, sc := range c.Stores {
		if name == "" {
			return fmt.Errorf("store names must not be empty")
		}
		switch sc.Kind {
		case StoreMemoryLatest, StoreMemoryHistory:
		case StoreRedis:
			if sc.Redis.URL == "" {
				return fmt.Errorf("store %q: redis url required", name)
			}
		case StorePostgres:
			needsDatabase = true
		default:
			return fmt.Errorf("store %q: unknown kind %q", name, sc.Kind)
		}
	}
	if needsDatabase && c.Database.DSN == "" {
		return fmt.Errorf("database dsn required by postgres stores")
	}

	names := make(map[string]string, len(c.Events)+len(c.Groups))
	for _, ev := range c.Events {
		if ev.Name == "" {
			return fmt.Errorf("event names must not be empty")
		}
		if kind, dup := names[ev.Name]; dup {
			return fmt.Errorf("event %q already declared as %s", ev.Name, kind)
		}
		names[ev.Name] = "event"
		if err := c.checkStoreRefs("event", ev.Name, ev.Stores); err != nil {
			return err
		}
	}
	for _, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("group names must not be empty")
		}
		if kind, dup := names[g.Name]; dup {
			return fmt.Errorf("group %q already declared as %s", g.Name, kind)
		}
		names[g.Name] = "group"
		if len(g.Events) == 0 {
			return fmt.Errorf("group %q needs at least one event", g.Name)
		}
		for _, ev := range g.Events {
			if ev == "" {
				return fmt.Errorf("group %q lists an empty event name", g.Name)
			}
		}
		if err := c.checkStoreRefs("group", g.Name, g.Stores); err != nil {
			return err
		}
	}
	for _, name := range c.Subscribe {
		if _, ok := names[name]; !ok {
			return fmt.Errorf("subscribe: %q is not a declared event or group", name)
		}
	}

	if c.Replay.RatePerSecond < 0 {
		return fmt.Errorf("replay ratePerSecond must be >= 0")
	}
	if c.Replay.Burst <= 0 {
		return fmt.Errorf("replay burst must be > 0")
	}

	if c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry serviceName required")
	}

	return nil
}

func (c AppConfig) checkStoreRefs(kind, name string, refs []string) error {
	for _, ref := range refs {
		if _, ok := c.Stores[ref]; !ok {
			return fmt.Errorf("%s %q: unknown store %q", kind, name, ref)
		}
	}
	return nil
}

func trimAll(values []string) []string {
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}
	return values
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
