package mcp

import (
	"flag"
	"strings"
	"testing"
)

func parse(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	return ParseConfig(flag.NewFlagSet("mcp", flag.ContinueOnError), args)
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "localhost:8082" || cfg.HTTPAddr != "localhost:8081" || cfg.Transport != "stdio" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.AuthToken != "" || len(cfg.AllowedHosts) != 0 {
		t.Fatalf("http guards should default off: %+v", cfg)
	}
}

func TestParseConfigLayersEnvAndFlags(t *testing.T) {
	t.Setenv("MACROTABLE_MACROS_ADDR", "macros.internal:8082")
	t.Setenv("MACROTABLE_MCP_HTTP_ADDR", "0.0.0.0:9000")
	t.Setenv("MACROTABLE_MCP_AUTH_TOKEN", "s3cret")
	t.Setenv("MACROTABLE_MCP_ALLOWED_HOSTS", "mcp.example,tools.example")

	cfg, err := parse(t, "-addr", "localhost:7000", "-transport", " HTTP ")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "localhost:7000" {
		t.Fatalf("flag should override env addr, got %q", cfg.Addr)
	}
	if cfg.HTTPAddr != "0.0.0.0:9000" || cfg.AuthToken != "s3cret" {
		t.Fatalf("env values lost: %+v", cfg)
	}
	if cfg.Transport != "http" {
		t.Fatalf("transport = %q", cfg.Transport)
	}
	if strings.Join(cfg.AllowedHosts, ",") != "mcp.example,tools.example" {
		t.Fatalf("allowed hosts = %v", cfg.AllowedHosts)
	}
}

func TestParseConfigRejectsUnknownTransport(t *testing.T) {
	if _, err := parse(t, "-transport", "sse"); err == nil || !strings.Contains(err.Error(), "sse") {
		t.Fatalf("err = %v", err)
	}
}
