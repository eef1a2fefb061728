// Package cmd holds the startup plumbing shared by the macrotable commands:
// env then flag configuration, log prefixes, and a telemetry-wrapped run loop.
package cmd

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"

	"github.com/louisbranch/macrotable/internal/platform/config"
	"github.com/louisbranch/macrotable/internal/platform/otel"
	"github.com/louisbranch/macrotable/internal/platform/timeouts"
)

// Service names, used as the OTel service name and the log prefix.
const (
	ServiceMacros   = "macros"
	ServiceMCP      = "mcp"
	ServiceScenario = "scenario"
)

// ParseConfig fills cfg from MACROTABLE_* variables. Commands register their
// flags afterwards with the env values as defaults, so flags win.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses args into fs. A nil args slice parses nothing rather
// than os.Args.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	return fs.Parse(append([]string(nil), args...))
}

// LogPrefix is the prefix each command's logger carries, e.g. "[MACROS] ".
func LogPrefix(service string) string {
	return "[" + strings.ToUpper(strings.TrimSpace(service)) + "] "
}

// RunWithTelemetry installs tracing for service, runs run, and flushes
// spans before returning run's error.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return errors.New("service name is required")
	case run == nil:
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer flushTelemetry(service, shutdown)
	return run(ctx)
}

func flushTelemetry(service string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("%sflush telemetry: %v", LogPrefix(service), err)
	}
}
