// Package service wires the MCP protocol transport to the macro tools.
//
// It knows how to reach the macro gRPC service and how to run MCP over stdio;
// the meaning of each tool lives in the MCP domain package.
package service
