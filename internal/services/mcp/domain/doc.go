// Package domain translates MCP tool calls into macro service requests.
//
// Each tool parses its typed input, calls the macro gRPC service with request
// metadata attached, and returns a structured result that MCP clients can
// render. Rule-only tools (evaluate, explain) still go through the service so
// every answer carries the same rules version as the live macros.
package domain
