// Package main prints a signed chat table token for one user.
package main

import (
	"flag"
	"os"

	"github.com/louisbranch/macrotable/internal/platform/config"
	"github.com/louisbranch/macrotable/internal/tools/tabletoken"
)

func main() {
	cfg, err := tabletoken.ParseConfig(flag.CommandLine, os.Args[1:])
	config.ExitOnError(err, "parse flags")
	config.ExitOnError(tabletoken.Run(os.Stdout, cfg), "generate table token")
}
