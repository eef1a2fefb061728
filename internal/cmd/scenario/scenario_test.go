package scenario

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("scenario", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GRPCAddr != "localhost:8082" {
		t.Fatalf("expected default grpc addr, got %q", cfg.GRPCAddr)
	}
	if !cfg.Assertions {
		t.Fatal("expected assertions enabled by default")
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("expected default timeout, got %v", cfg.Timeout)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("MACROTABLE_SCENARIO_FILE", "env.lua")
	t.Setenv("MACROTABLE_SCENARIO_TIMEOUT", "3s")

	fs := flag.NewFlagSet("scenario", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-assert=false", "-verbose", "-scenario", "flag.lua", "more.lua", " "})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Scenario != "flag.lua" {
		t.Fatalf("expected flag scenario, got %q", cfg.Scenario)
	}
	if cfg.Assertions || !cfg.Verbose {
		t.Fatalf("expected flag booleans, got assert=%v verbose=%v", cfg.Assertions, cfg.Verbose)
	}
	if cfg.Timeout != 3*time.Second {
		t.Fatalf("expected env timeout, got %v", cfg.Timeout)
	}
	if got := strings.Join(cfg.Paths(), ","); got != "flag.lua,more.lua" {
		t.Fatalf("paths = %s", got)
	}
}

func TestRunRequiresScenario(t *testing.T) {
	if err := Run(context.Background(), Config{}, nil, nil); err == nil {
		t.Fatal("expected error for missing scenario path")
	}
}

func TestRunReportsLoadErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.lua")
	if err := os.WriteFile(path, []byte("return 1"), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	var out bytes.Buffer
	err := Run(context.Background(), Config{GRPCAddr: "localhost:1", Scenario: path}, &out, nil)
	if err == nil || !strings.Contains(err.Error(), "must return Scenario") {
		t.Fatalf("err = %v, want load error", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}
