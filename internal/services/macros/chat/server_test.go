package chat

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewServerValidatesConfig(t *testing.T) {
	host := newTestHost(t, nil)
	hub := NewHub()
	tests := []struct {
		name   string
		config Config
		macros Macros
		hub    *Hub
	}{
		{name: "address", config: Config{}, macros: host.service, hub: hub},
		{name: "macros", config: Config{HTTPAddr: "127.0.0.1:0"}, hub: hub},
		{name: "hub", config: Config{HTTPAddr: "127.0.0.1:0"}, macros: host.service},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewServer(tc.config, tc.macros, tc.hub); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestServerServeStopsOnCancel(t *testing.T) {
	host := newTestHost(t, nil)
	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0", TokenSecret: "secret"}, host.service, NewHub())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, listener)
	}()

	url := "http://" + listener.Addr().String() + "/up"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
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
