// Package macros parses macro host flags and starts the table process.
package macros

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/macrotable/internal/platform/cmd"
	"github.com/louisbranch/macrotable/internal/services/macros/host"
)

// Config holds macro host command configuration.
type Config struct {
	HTTPAddr    string `env:"MACROS_HTTP_ADDR"   envDefault:":8086"`
	GRPCAddr    string `env:"MACROS_GRPC_ADDR"   envDefault:":8082"`
	DBPath      string `env:"MACROS_DB_PATH"     envDefault:"data/macros.db"`
	TokenSecret string `env:"TABLE_TOKEN_SECRET"`
	TokenIssuer string `env:"TABLE_TOKEN_ISSUER" envDefault:"macrotable"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "chat HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "macro gRPC listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the SQLite database")
	fs.StringVar(&cfg.TokenIssuer, "token-issuer", cfg.TokenIssuer, "issuer expected on table tokens")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the macro host under telemetry.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMacros, func(ctx context.Context) error {
		if err := host.Run(ctx, host.Config{
			HTTPAddr:    cfg.HTTPAddr,
			GRPCAddr:    cfg.GRPCAddr,
			DBPath:      cfg.DBPath,
			TokenSecret: cfg.TokenSecret,
			TokenIssuer: cfg.TokenIssuer,
		}); err != nil {
			return fmt.Errorf("serve macros: %w", err)
		}
		return nil
	})
}
