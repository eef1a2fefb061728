// Package host composes the macro table process: the SQLite store, the macro
// service, the chat WebSocket server and the macro gRPC API.
package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	platformgrpc "github.com/louisbranch/macrotable/internal/platform/grpc"
	macrosgrpc "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/macros"
	grpcmeta "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/metadata"
	"github.com/louisbranch/macrotable/internal/services/macros/app"
	"github.com/louisbranch/macrotable/internal/services/macros/chat"
	"github.com/louisbranch/macrotable/internal/services/macros/storage/sqlite"
	"google.golang.org/grpc"
)

// Config configures the macro table process.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	DBPath      string
	TokenSecret string
	TokenIssuer string
}

// Host owns the listeners and store of one macro table process.
type Host struct {
	store        *sqlite.Store
	chatServer   *chat.Server
	chatListener net.Listener
	grpcServer   *platformgrpc.Server
	grpcListener net.Listener
}

// New opens the store and binds both listeners.
func New(cfg Config) (*Host, error) {
	store, err := openStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	service, sink, err := app.NewStoreBackedService(store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build macro service: %w", err)
	}

	hub := chat.NewHub()
	sink.AddListener(hub)
	chatServer, err := chat.NewServer(chat.Config{
		HTTPAddr:    cfg.HTTPAddr,
		TokenSecret: cfg.TokenSecret,
		TokenIssuer: cfg.TokenIssuer,
	}, service, hub)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build chat server: %w", err)
	}

	grpcServer := platformgrpc.NewServer(grpc.UnaryInterceptor(grpcmeta.UnaryServerInterceptor(nil)))
	macrosgrpc.RegisterMacroServer(grpcServer.Registrar(), macrosgrpc.NewService(service))
	grpcServer.SetServing(macrosgrpc.ServiceName)

	chatListener, err := net.Listen("tcp", strings.TrimSpace(cfg.HTTPAddr))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	grpcListener, err := net.Listen("tcp", strings.TrimSpace(cfg.GRPCAddr))
	if err != nil {
		_ = chatListener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	return &Host{
		store:        store,
		chatServer:   chatServer,
		chatListener: chatListener,
		grpcServer:   grpcServer,
		grpcListener: grpcListener,
	}, nil
}

// Run creates a host and serves it until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	h, err := New(cfg)
	if err != nil {
		return err
	}
	return h.Serve(ctx)
}

// HTTPAddr returns the bound chat listener address.
func (h *Host) HTTPAddr() string {
	if h == nil || h.chatListener == nil {
		return ""
	}
	return h.chatListener.Addr().String()
}

// GRPCAddr returns the bound gRPC listener address.
func (h *Host) GRPCAddr() string {
	if h == nil || h.grpcListener == nil {
		return ""
	}
	return h.grpcListener.Addr().String()
}

// Serve runs the chat and gRPC servers until ctx ends or either fails. The
// store is closed once both have stopped.
func (h *Host) Serve(ctx context.Context) error {
	if h == nil {
		return errors.New("host is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if err := h.store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Printf("macro gRPC listening at %v", h.grpcListener.Addr())
	errs := make(chan error, 2)
	go func() {
		errs <- h.chatServer.Serve(ctx, h.chatListener)
	}()
	go func() {
		errs <- h.grpcServer.Serve(ctx, h.grpcListener)
	}()

	// The first server to stop takes the other one down with it.
	first := <-errs
	cancel()
	second := <-errs
	return errors.Join(first, second)
}

func openStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "macros.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}
