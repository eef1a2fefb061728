// Package scenario is the scenario command: it replays Lua scripts against a
// running macro host and reports each one.
package scenario

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/macrotable/internal/platform/cmd"
	"github.com/louisbranch/macrotable/internal/tools/scenario"
)

// Config is read from MACROTABLE_* variables, then flags. Positional
// arguments are extra script paths run after Scenario.
type Config struct {
	GRPCAddr   string        `env:"MACROS_ADDR"      envDefault:"localhost:8082"`
	Scenario   string        `env:"SCENARIO_FILE"`
	Assertions bool          `env:"SCENARIO_ASSERT"  envDefault:"true"`
	Verbose    bool          `env:"SCENARIO_VERBOSE"`
	Timeout    time.Duration `env:"SCENARIO_TIMEOUT" envDefault:"10s"`

	Extra []string
}

// Paths lists every script to run, in order, without blanks.
func (c Config) Paths() []string {
	var paths []string
	for _, path := range append([]string{c.Scenario}, c.Extra...) {
		if path = strings.TrimSpace(path); path != "" {
			paths = append(paths, path)
		}
	}
	return paths
}

func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "macro gRPC API address")
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "scenario script to run")
	fs.BoolVar(&cfg.Assertions, "assert", cfg.Assertions, "fail on unmet expectations (false only logs them)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "log each step")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "deadline for each step")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.Extra = fs.Args()
	return cfg, nil
}

// Run replays every script in cfg.Paths and stops at the first failure.
// Passing scripts are reported on out; step logs go to errOut.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	paths := cfg.Paths()
	if len(paths) == 0 {
		return errors.New("scenario path is required")
	}

	runCfg := scenario.Config{
		GRPCAddr:   cfg.GRPCAddr,
		Timeout:    cfg.Timeout,
		Assertions: scenario.AssertionStrict,
		Verbose:    cfg.Verbose,
		Logger:     log.New(errOut, entrypoint.LogPrefix(entrypoint.ServiceScenario), 0),
	}
	if !cfg.Assertions {
		runCfg.Assertions = scenario.AssertionLogOnly
	}

	for _, path := range paths {
		if err := scenario.RunFile(ctx, runCfg, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, err := fmt.Fprintf(out, "scenario passed: %s\n", path); err != nil {
			return err
		}
	}
	return nil
}
