package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type probeConfig struct {
	Addr string `env:"ENTRY_ADDR" envDefault:"127.0.0.1:8080"`
	Mode string `env:"ENTRY_MODE" envDefault:"server"`
}

func parseProbe(t *testing.T, args []string) probeConfig {
	t.Helper()
	var cfg probeConfig
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "")
	if err := ParseArgs(fs, args); err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	return cfg
}

func TestFlagsOverrideEnvDefaults(t *testing.T) {
	t.Setenv("MACROTABLE_ENTRY_ADDR", "env:9000")
	t.Setenv("MACROTABLE_ENTRY_MODE", "env-mode")

	cfg := parseProbe(t, []string{"-addr", "flag:9001"})
	if cfg.Addr != "flag:9001" || cfg.Mode != "env-mode" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestNilArgsKeepDefaults(t *testing.T) {
	cfg := parseProbe(t, nil)
	if cfg.Addr != "127.0.0.1:8080" || cfg.Mode != "server" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsNilTargets(t *testing.T) {
	if err := ParseConfig[probeConfig](nil); err == nil {
		t.Fatal("expected nil config error")
	}
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected nil flag set error")
	}
}

func TestLogPrefix(t *testing.T) {
	for service, want := range map[string]string{
		ServiceMacros:   "[MACROS] ",
		" " + ServiceMCP: "[MCP] ",
	} {
		if got := LogPrefix(service); got != want {
			t.Errorf("LogPrefix(%q) = %q, want %q", service, got, want)
		}
	}
}

func TestRunWithTelemetry(t *testing.T) {
	t.Setenv("MACROTABLE_OTEL_ENDPOINT", "")

	if err := RunWithTelemetry(context.Background(), " ", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected service name error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceMacros, nil); err == nil {
		t.Fatal("expected run function error")
	}

	want := errors.New("boom")
	calls := 0
	err := RunWithTelemetry(context.Background(), ServiceScenario, func(context.Context) error {
		calls++
		return want
	})
	if calls != 1 || !errors.Is(err, want) {
		t.Fatalf("calls = %d, err = %v", calls, err)
	}
}
