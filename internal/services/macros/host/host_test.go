package host

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/macrotable/internal/platform/grpc"
	macrosgrpc "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/macros"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestHostServesChatAndGRPC(t *testing.T) {
	h, err := New(Config{
		HTTPAddr: "127.0.0.1:0",
		GRPCAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "nested", "macros.db"),
	})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("host did not stop")
		}
	}()

	resp, err := http.Get("http://" + h.HTTPAddr() + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("/up = %d %q", resp.StatusCode, body)
	}

	conn, err := platformgrpc.DialWithHealth(context.Background(), h.GRPCAddr(), 2*time.Second, nil)
	if err != nil {
		t.Fatalf("dial gRPC: %v", err)
	}
	defer conn.Close()

	in, err := structpb.NewStruct(map[string]any{"roll_total": 25, "dc": 15, "your_rank": 2, "opp_rank": 5})
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	out, err := macrosgrpc.NewMacroClient(conn).EvaluateCounteract(context.Background(), in)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := out.GetFields()["degree_code"].GetStringValue(); got != "CRITICAL_SUCCESS" {
		t.Fatalf("degree = %q, want CRITICAL_SUCCESS", got)
	}
	if !out.GetFields()["counteracted"].GetBoolValue() {
		t.Fatal("expected counteracted")
	}
}

func TestNewRejectsBadAddress(t *testing.T) {
	_, err := New(Config{
		HTTPAddr: "",
		GRPCAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "macros.db"),
	})
	if err == nil {
		t.Fatal("expected error for empty http address")
	}
}

func TestServeRequiresHost(t *testing.T) {
	var h *Host
	if err := h.Serve(context.Background()); err == nil {
		t.Fatal("expected error for nil host")
	}
}
