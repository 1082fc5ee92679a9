// Command herald builds a bus from a YAML topology, replays NDJSON commands
// against it and prints every delivery as NDJSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/herald/internal/config"
	"github.com/coachpo/herald/internal/observability"
	"github.com/coachpo/herald/internal/telemetry"
	"github.com/coachpo/herald/pkg/bus"
)

const (
	heraldLoggerPrefix       = "herald "
	shutdownTimeout          = 15 * time.Second
	lifecycleShutdownTimeout = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

type flags struct {
	configPath string
	inputPath  string
	debug      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	stdLogger := newHeraldLogger()
	logger := observability.NewTextLogger(stdLogger, opts.debug)
	observability.SetLogger(logger)

	appCfg, err := config.LoadOrDefault(ctx, opts.configPath)
	if err != nil {
		stdLogger.Printf("load config: %v", err)
		return 1
	}
	stdLogger.Printf("configuration initialised: env=%s, events=%d, groups=%d, stores=%d",
		appCfg.Environment, len(appCfg.Events), len(appCfg.Groups), len(appCfg.Stores))

	telemetryProvider, err := initTelemetry(ctx, stdLogger, appCfg.Environment, appCfg.Telemetry)
	if err != nil {
		stdLogger.Printf("initialize telemetry: %v", err)
		return 1
	}

	stores, err := buildStores(ctx, logger, appCfg)
	if err != nil {
		stdLogger.Printf("initialise stores: %v", err)
		shutdownTelemetry(stdLogger, telemetryProvider)
		return 1
	}

	b, err := buildBus(appCfg, stores,
		bus.WithLogger(logger),
		bus.WithMeter(telemetryProvider.Meter("bus")))
	if err != nil {
		stdLogger.Printf("initialise bus: %v", err)
		stores.Close()
		shutdownTelemetry(stdLogger, telemetryProvider)
		return 1
	}

	input, closeInput, err := openInput(opts.inputPath)
	if err != nil {
		stdLogger.Printf("open input: %v", err)
		stores.Close()
		shutdownTelemetry(stdLogger, telemetryProvider)
		return 1
	}
	defer closeInput()

	r := newReplayer(b, os.Stdout, logger, appCfg.Replay)
	for _, name := range appCfg.Subscribe {
		if _, err := r.subscribe(ctx, name); err != nil {
			stdLogger.Printf("subscribe %s: %v", name, err)
			r.failures++
		}
	}

	var lifecycle conc.WaitGroup
	done := make(chan error, 1)
	lifecycle.Go(func() {
		done <- r.replay(ctx, input)
	})

	exitCode := 0
	select {
	case err := <-done:
		if err != nil {
			stdLogger.Printf("replay: %v", err)
			exitCode = 1
		}
		stdLogger.Printf("replay finished: failures=%d", r.failures)
		if r.failures > 0 && exitCode == 0 {
			exitCode = 1
		}
	case <-ctx.Done():
		stdLogger.Print("shutdown signal received, stopping replay")
		exitCode = 130
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, stdLogger, gracefulShutdownConfig{
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		stores:     stores,
		telemetry:  telemetryProvider,
	})
	stdLogger.Printf("shutdown completed in %v", time.Since(shutdownStart))
	return exitCode
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to topology configuration file (defaults to an empty topology)")
	flag.StringVar(&f.inputPath, "input", "-", "NDJSON command file, or - for stdin")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newHeraldLogger writes to stderr so stdout carries only NDJSON records.
func newHeraldLogger() *log.Logger {
	return log.New(os.Stderr, heraldLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func openInput(path string) (io.Reader, func(), error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(filepath.Clean(path)) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open commands: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func initTelemetry(ctx context.Context, logger *log.Logger, env config.Environment, cfg config.TelemetryConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.OTLPEndpoint
		telemetryCfg.Enabled = true
	}
	if cfg.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.ServiceName
	}
	telemetryCfg.Environment = string(env)
	telemetryCfg.OTLPInsecure = telemetryCfg.OTLPInsecure || cfg.OTLPInsecure
	telemetryCfg.EnableMetrics = cfg.EnableMetrics

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}

	if telemetryCfg.Enabled && telemetryCfg.EnableMetrics {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	} else {
		logger.Printf("telemetry disabled")
	}
	return provider, nil
}

type gracefulShutdownConfig struct {
	mainCancel    context.CancelFunc
	lifecycle     *conc.WaitGroup
	replayTimeout time.Duration
	stores        *storeSet
	telemetry     *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	replayStopped := true
	if cfg.lifecycle != nil {
		timeout := cfg.replayTimeout
		if timeout <= 0 {
			timeout = lifecycleShutdownTimeout
		}
		// A replay blocked on stdin cannot be interrupted; give up after the timeout.
		shutdownStep("waiting for replay", timeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				replayStopped = false
				return fmt.Errorf("timeout waiting for replay: %w", stepCtx.Err())
			}
		})
	}

	if cfg.stores != nil {
		if replayStopped {
			shutdownStep("closing stores", lifecycleShutdownTimeout, func(context.Context) error {
				cfg.stores.Close()
				return nil
			})
		} else {
			// The replay may still be inside a store call.
			logger.Print("shutdown: replay still running, leaving stores open")
		}
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}

func shutdownTelemetry(logger *log.Logger, provider *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		logger.Printf("shutdown telemetry: %v", err)
	}
}
