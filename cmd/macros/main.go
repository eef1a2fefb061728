// Package main starts the macro table host: the chat WebSocket server and the
// macro gRPC API over one SQLite table log.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	macroscmd "github.com/louisbranch/macrotable/internal/cmd/macros"
	entrypoint "github.com/louisbranch/macrotable/internal/platform/cmd"
)

func main() {
	cfg, err := macroscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceMacros))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := macroscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
