package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/macrotable/internal/platform/grpc"
	"github.com/louisbranch/macrotable/internal/platform/id"
	"github.com/louisbranch/macrotable/internal/platform/timeouts"
	macrosgrpc "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/macros"
)

const (
	defaultUserID      = "scenario-runner"
	defaultStepTimeout = 10 * time.Second
)

// Config controls how a scenario is replayed.
type Config struct {
	GRPCAddr string
	// Timeout bounds each step, not the whole run.
	Timeout    time.Duration
	Assertions AssertionMode
	// Verbose logs step progress and dial health transitions.
	Verbose bool
	Logger  *log.Logger
}

// DefaultConfig targets a macro host on its default local gRPC port.
func DefaultConfig() Config {
	return Config{GRPCAddr: "localhost:8082", Timeout: defaultStepTimeout, Assertions: AssertionStrict}
}

// Runner replays scenarios against one macro API connection.
type Runner struct {
	client     macroClient
	closer     io.Closer
	newID      func() (string, error)
	assertions Assertions
	logger     *log.Logger
	verbose    bool
	timeout    time.Duration
}

// NewRunner dials cfg.GRPCAddr and waits for the host to report healthy.
func NewRunner(ctx context.Context, cfg Config) (*Runner, error) {
	addr := strings.TrimSpace(cfg.GRPCAddr)
	if addr == "" {
		return nil, errors.New("grpc address is required")
	}

	var healthLog func(string, ...any)
	if cfg.Verbose && cfg.Logger != nil {
		healthLog = cfg.Logger.Printf
	}
	conn, err := platformgrpc.DialWithHealth(ctx, addr, timeouts.GRPCDial, healthLog)
	if err != nil {
		return nil, fmt.Errorf("connect to macro API: %w", err)
	}

	runner, err := newRunnerWithDeps(cfg, runnerDeps{client: macrosgrpc.NewMacroClient(conn)})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	runner.closer = conn
	return runner, nil
}

// newRunnerWithDeps fills in defaults around an injected client.
func newRunnerWithDeps(cfg Config, deps runnerDeps) (*Runner, error) {
	if deps.client == nil {
		return nil, errors.New("macro client is required")
	}
	r := &Runner{
		client:  deps.client,
		newID:   deps.newID,
		logger:  cfg.Logger,
		verbose: cfg.Verbose,
		timeout: cfg.Timeout,
	}
	if r.logger == nil {
		r.logger = log.New(os.Stderr, "", 0)
	}
	if r.timeout <= 0 {
		r.timeout = defaultStepTimeout
	}
	if r.newID == nil {
		r.newID = id.NewID
	}
	r.assertions = Assertions{Mode: cfg.Assertions, Logger: r.logger}
	return r, nil
}

// Close drops the connection opened by NewRunner, if any.
func (r *Runner) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// RunFile loads the script at path before dialing, so a broken script
// fails without needing a running host.
func RunFile(ctx context.Context, cfg Config, path string) error {
	scenario, err := LoadScenarioFromFile(path)
	if err != nil {
		return err
	}
	runner, err := NewRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.RunScenario(ctx, scenario)
}

// RunScenario replays every step in order and stops at the first error.
// Steps run on a table unique to this run until the script picks one with
// scene:table, so reruns never see each other's history.
func (r *Runner) RunScenario(ctx context.Context, scenario *Scenario) error {
	if scenario == nil {
		return errors.New("scenario is required")
	}
	suffix, err := r.newID()
	if err != nil {
		return fmt.Errorf("generate table id: %w", err)
	}
	state := &scenarioState{
		tableID:    "scenario-" + suffix,
		userID:     defaultUserID,
		characters: map[string]string{},
	}

	total := len(scenario.Steps)
	r.logf("scenario %q: %d steps on table %s", scenario.Name, total, state.tableID)
	started := time.Now()
	for i, step := range scenario.Steps {
		if err := r.runTimedStep(ctx, state, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Kind, err)
		}
		r.logf("  [%d/%d] %s ok", i+1, total, step.Kind)
	}
	r.logf("scenario %q passed in %s", scenario.Name, time.Since(started).Round(time.Millisecond))
	return nil
}

func (r *Runner) runTimedStep(ctx context.Context, state *scenarioState, step Step) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.runStep(stepCtx, state, step)
}

func (r *Runner) logf(format string, args ...any) {
	if r.verbose && r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
