package grpc

import (
	"context"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthProbeTimeout = time.Second
	healthMinBackoff   = 200 * time.Millisecond
	healthMaxBackoff   = time.Second
)

// WaitForHealth polls the health service on conn until service reports
// SERVING or ctx ends. An empty service checks the server as a whole.
// logf, when set, hears about each change in the observed state.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	client := grpc_health_v1.NewHealthClient(conn)
	delay := healthMinBackoff
	last := ""
	for {
		state, serving := probeHealth(ctx, client, service)
		if serving {
			logf("gRPC health check is SERVING")
			return nil
		}
		if state != last {
			logf("waiting for gRPC health: %s", state)
			last = state
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for gRPC health (last %s): %w", last, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, healthMaxBackoff)
	}
}

// probeHealth runs one bounded health check and describes what it saw.
func probeHealth(ctx context.Context, client grpc_health_v1.HealthClient, service string) (string, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	response, err := client.Check(probeCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return err.Error(), false
	}
	status := response.GetStatus()
	return "status " + status.String(), status == grpc_health_v1.HealthCheckResponse_SERVING
}
