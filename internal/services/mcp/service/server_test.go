package service

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"

	platformgrpc "github.com/louisbranch/macrotable/internal/platform/grpc"
	macrosgrpc "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/macros"
	grpcmeta "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/metadata"
	"github.com/louisbranch/macrotable/internal/services/macros/app"
	"github.com/louisbranch/macrotable/internal/services/macros/storage/sqlite"
	"github.com/louisbranch/macrotable/internal/services/mcp/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	gogrpc "google.golang.org/grpc"
)

func startMacrosGRPC(t *testing.T) string {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "macros.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	service, _, err := app.NewStoreBackedService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	server := platformgrpc.NewServer(gogrpc.UnaryInterceptor(grpcmeta.UnaryServerInterceptor(nil)))
	macrosgrpc.RegisterMacroServer(server.Registrar(), macrosgrpc.NewService(service))
	server.SetServing(macrosgrpc.ServiceName)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return listener.Addr().String()
}

func connectClient(t *testing.T, server *Server) *mcp.ClientSession {
	t.Helper()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.serveWithTransport(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		<-done
	})
	return session
}

func callTool[T any](t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (T, *mcp.CallToolResult) {
	t.Helper()
	var out T
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if result.IsError {
		return out, result
	}
	raw, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatalf("marshal %s output: %v", name, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s output: %v", name, err)
	}
	return out, result
}

func toolErrorText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestServerListsMacroTools(t *testing.T) {
	server, err := New(context.Background(), startMacrosGRPC(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	session := connectClient(t, server)

	tools, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"counteract_evaluate",
		"counteract_explain",
		"counteract_check",
		"whirling_throw_damage",
		"whirling_throw",
		"counteract_rules_version",
	} {
		if !names[want] {
			t.Fatalf("tool %q not registered; got %v", want, names)
		}
	}
}

func TestServerRunsCounteractThroughGRPC(t *testing.T) {
	server, err := New(context.Background(), startMacrosGRPC(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	session := connectClient(t, server)

	evaluated, _ := callTool[domain.CounteractEvaluateResult](t, session, "counteract_evaluate", map[string]any{
		"roll_total": 20, "dc": 20, "your_rank": 2, "opp_rank": 1,
	})
	if evaluated.DegreeCode != "SUCCESS" || !evaluated.Counteracted {
		t.Fatalf("evaluate = %+v", evaluated)
	}

	explained, _ := callTool[domain.CounteractExplainResult](t, session, "counteract_explain", map[string]any{
		"roll_total": 10, "dc": 20, "your_rank": 2, "opp_rank": 1,
	})
	if explained.DegreeCode != "CRITICAL_FAILURE" || explained.Upgraded || len(explained.Steps) != 4 {
		t.Fatalf("explain = %+v", explained)
	}

	checked, _ := callTool[domain.CounteractCheckResult](t, session, "counteract_check", map[string]any{
		"table_id": "table-1",
		"user_id":  "user-1",
		"modifier": 5,
		"dc":       18,
		"seed":     11,
	})
	if checked.Seed != "11" || checked.CardMessageID == "" {
		t.Fatalf("check = %+v", checked)
	}
	if checked.RollTotal != checked.Base+5 {
		t.Fatalf("roll total %d, base %d", checked.RollTotal, checked.Base)
	}

	reused, _ := callTool[domain.CounteractCheckResult](t, session, "counteract_check", map[string]any{
		"table_id":      "table-1",
		"user_id":       "user-1",
		"dc":            18,
		"use_last_roll": true,
	})
	if !reused.UsedLastRoll || reused.RollTotal != checked.RollTotal {
		t.Fatalf("reused = %+v, want total %d", reused, checked.RollTotal)
	}
}

func TestServerReportsMacroErrorsAsToolErrors(t *testing.T) {
	server, err := New(context.Background(), startMacrosGRPC(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	session := connectClient(t, server)

	_, result := callTool[domain.CounteractCheckResult](t, session, "counteract_check", map[string]any{
		"table_id":      "table-1",
		"user_id":       "user-1",
		"dc":            18,
		"use_last_roll": true,
		"locale":        "pt-BR",
	})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if text := toolErrorText(result); !strings.Contains(text, "Nenhuma rolagem") {
		t.Fatalf("error text = %q", text)
	}

	_, result = callTool[domain.WhirlingThrowResult](t, session, "whirling_throw", map[string]any{
		"table_id": "table-1",
		"user_id":  "user-1",
	})
	if !result.IsError || !strings.Contains(toolErrorText(result), "Whirling Throw") {
		t.Fatalf("expected actor error, got %q", toolErrorText(result))
	}
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestNewServerRequiresClient(t *testing.T) {
	if _, err := newServer(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestRegisterToolsRejectsBadBindings(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	rules := bindTool(domain.RulesVersionTool(), domain.RulesVersionHandler())

	if err := registerTools(server, []toolBinding{rules, rules}); err == nil || !strings.Contains(err.Error(), "registered twice") {
		t.Fatalf("err = %v, want duplicate error", err)
	}
	if err := registerTools(server, []toolBinding{{}}); err == nil {
		t.Fatal("expected error for empty binding")
	}
	if err := registerTools(nil, nil); err == nil {
		t.Fatal("expected error for nil server")
	}
}
