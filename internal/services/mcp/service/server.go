package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	platformgrpc "github.com/louisbranch/macrotable/internal/platform/grpc"
	"github.com/louisbranch/macrotable/internal/platform/timeouts"
	macrosgrpc "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/macros"
	"github.com/louisbranch/macrotable/internal/services/mcp/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "macrotable MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Transport names accepted by Run.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config configures the MCP server.
type Config struct {
	// GRPCAddr is the macro gRPC service address.
	GRPCAddr string
	// Transport is stdio or http.
	Transport string
	// HTTPAddr is the listen address for the http transport.
	HTTPAddr string
	// AuthToken, when set, is required as a bearer token on HTTP requests.
	AuthToken string
	// AllowedHosts extends the loopback hosts accepted by the HTTP transport.
	AllowedHosts []string
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
	conn      *grpc.ClientConn
}

// New connects to the macro service and registers the tools against it.
func New(ctx context.Context, grpcAddr string) (*Server, error) {
	conn, err := dialMacrosGRPC(ctx, grpcAddr)
	if err != nil {
		return nil, err
	}
	server, err := newServer(macrosgrpc.NewMacroClient(conn))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	server.conn = conn
	return server, nil
}

// newServer builds the MCP server with every tool bound to client.
func newServer(client domain.MacroClient) (*Server, error) {
	if client == nil {
		return nil, errors.New("macro client is required")
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	if err := registerTools(mcpServer, macroTools(client)); err != nil {
		return nil, fmt.Errorf("register macro tools: %w", err)
	}
	return &Server{mcpServer: mcpServer}, nil
}

// Run connects to the macro service and serves MCP on the configured
// transport until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	transport := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if transport == "" {
		transport = TransportStdio
	}
	if transport != TransportStdio && transport != TransportHTTP {
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
	server, err := New(ctx, cfg.GRPCAddr)
	if err != nil {
		return err
	}
	if transport == TransportHTTP {
		return server.ServeHTTP(ctx, cfg)
	}
	return server.Serve(ctx)
}

// ServeHTTP serves MCP over streamable HTTP until ctx ends.
func (s *Server) ServeHTTP(ctx context.Context, cfg Config) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	err := NewHTTPTransport(cfg.HTTPAddr, s.mcpServer, cfg).Start(ctx)
	if closeErr := s.Close(); closeErr != nil && err == nil {
		return fmt.Errorf("close gRPC connection: %w", closeErr)
	}
	return err
}

// Serve starts the MCP server on stdio and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// Close releases the gRPC connection held by the server.
func (s *Server) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return err
	}
	s.conn = nil
	return nil
}

// serveWithTransport runs the MCP session on transport until it ends, then
// drops the gRPC connection. A cancelled ctx is a clean stop.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var serveErr error
	if err := s.mcpServer.Run(ctx, transport); err != nil && ctx.Err() == nil {
		serveErr = fmt.Errorf("serve MCP: %w", err)
	}
	if err := s.Close(); err != nil {
		return errors.Join(serveErr, fmt.Errorf("close gRPC connection: %w", err))
	}
	return serveErr
}

// dialMacrosGRPC waits for the macro host to report healthy, logging health
// transitions under the standard log prefix.
func dialMacrosGRPC(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("macro service address is required")
	}
	logf := func(format string, args ...any) {
		log.Printf("macros "+format, args...)
	}
	conn, err := platformgrpc.DialWithHealth(ctx, addr, timeouts.GRPCDial, logf)
	if err != nil {
		return nil, fmt.Errorf("connect to macro service: %w", err)
	}
	return conn, nil
}
