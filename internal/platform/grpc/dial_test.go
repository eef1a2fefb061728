package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func TestDialWithHealthSuccess(t *testing.T) {
	_, addr := startPlatformServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := DialWithHealth(ctx, addr, time.Second, nil)
	if err != nil {
		t.Fatalf("dial with health: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close conn: %v", err)
	}
}

func TestDialWithHealthReturnsHealthStageWhenNotServing(t *testing.T) {
	addr := startDrainingServer(t)

	start := time.Now()
	conn, err := DialWithHealth(context.Background(), addr, 150*time.Millisecond, nil)
	if err == nil {
		_ = conn.Close()
		t.Fatal("expected error")
	}
	var dialErr *DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != DialStageHealth {
		t.Fatalf("expected health stage error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("health timeout not applied, took %v", elapsed)
	}
}

func TestDialWithHealthRejectsBadTarget(t *testing.T) {
	// No transport credentials makes client construction fail.
	_, err := DialWithHealth(context.Background(), "127.0.0.1:1", time.Second, nil, gogrpc.WithUserAgent("test"))
	if err == nil {
		t.Fatal("expected error")
	}
	var dialErr *DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != DialStageConnect {
		t.Fatalf("expected connect stage error, got %v", err)
	}
}

func TestDialWithHealthRequiresAddress(t *testing.T) {
	_, err := DialWithHealth(context.Background(), "  ", time.Second, nil)
	var dialErr *DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != DialStageConnect {
		t.Fatalf("expected connect stage error, got %v", err)
	}
}

// startDrainingServer serves a health service that reports NOT_SERVING
// for the whole server, as a host does while shutting down.
func startDrainingServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := gogrpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)
	return listener.Addr().String()
}

func TestDialErrorFormatting(t *testing.T) {
	var nilErr *DialError
	if nilErr.Error() != "gRPC dial error" {
		t.Fatalf("nil error text = %q", nilErr.Error())
	}
	if nilErr.Unwrap() != nil {
		t.Fatal("expected nil unwrap")
	}
	err := &DialError{Stage: DialStageConnect, Addr: "localhost:9", Err: errors.New("refused")}
	if got := err.Error(); got != "gRPC connect localhost:9: refused" {
		t.Fatalf("error text = %q", got)
	}
}

func TestServerServeStopsOnContextCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewServer()
	server.SetServing("macrotable.test.v1.Thing")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, listener)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	conn, err := DialWithHealth(waitCtx, listener.Addr().String(), time.Second, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(waitCtx, &grpc_health_v1.HealthCheckRequest{Service: "macrotable.test.v1.Thing"})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", resp.GetStatus())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServerServeRequiresListener(t *testing.T) {
	if err := NewServer().Serve(context.Background(), nil); err == nil {
		t.Fatal("expected listener error")
	}
	var _ gogrpc.ServiceRegistrar = NewServer().Registrar()
}
