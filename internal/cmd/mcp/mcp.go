// Package mcp is the MCP command: it exposes the macro tools over stdio or
// streamable HTTP, backed by the macro gRPC API.
package mcp

import (
	"context"
	"flag"
	"fmt"
	"strings"

	entrypoint "github.com/louisbranch/macrotable/internal/platform/cmd"
	"github.com/louisbranch/macrotable/internal/services/mcp/service"
)

// Config holds MCP command configuration. AuthToken and AllowedHosts only
// apply to the HTTP transport.
type Config struct {
	Addr         string   `env:"MACROS_ADDR"       envDefault:"localhost:8082"`
	HTTPAddr     string   `env:"MCP_HTTP_ADDR"     envDefault:"localhost:8081"`
	Transport    string   `env:"MCP_TRANSPORT"     envDefault:"stdio"`
	AuthToken    string   `env:"MCP_AUTH_TOKEN"`
	AllowedHosts []string `env:"MCP_ALLOWED_HOSTS" envSeparator:","`
}

func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "macro gRPC API address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "listen address for the http transport")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "stdio or http")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	switch cfg.Transport {
	case service.TransportStdio, service.TransportHTTP:
		return cfg, nil
	default:
		return Config{}, fmt.Errorf("transport must be %s or %s, got %q", service.TransportStdio, service.TransportHTTP, cfg.Transport)
	}
}

// Run serves MCP until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return service.Run(ctx, service.Config{
			GRPCAddr:     cfg.Addr,
			Transport:    cfg.Transport,
			HTTPAddr:     cfg.HTTPAddr,
			AuthToken:    cfg.AuthToken,
			AllowedHosts: cfg.AllowedHosts,
		})
	})
}
