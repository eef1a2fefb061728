// Package main replays Lua scenario scripts against a running macro host.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	scenariocmd "github.com/louisbranch/macrotable/internal/cmd/scenario"
	"github.com/louisbranch/macrotable/internal/platform/config"
)

func main() {
	cfg, err := scenariocmd.ParseConfig(flag.CommandLine, os.Args[1:])
	config.ExitOnError(err, "parse flags")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = scenariocmd.Run(ctx, cfg, os.Stdout, os.Stderr)
	stop()
	config.ExitOnError(err, "scenario")
}
