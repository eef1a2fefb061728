// Package timeouts collects the deadlines shared by the macro host and the
// tools that call it.
package timeouts

import "time"

const (
	// GRPCDial bounds dialing the macro API, health check included.
	GRPCDial = 2 * time.Second
	// GRPCRequest bounds one call made by the scenario runner or an MCP tool.
	GRPCRequest = 5 * time.Second

	ReadHeader = 5 * time.Second
	// Shutdown is the grace period for in-flight requests and span flushing.
	Shutdown = 5 * time.Second

	// Token is how long a table token stays valid unless the issuer says otherwise.
	Token = 12 * time.Hour
)
