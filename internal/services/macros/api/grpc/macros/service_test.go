package macros

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"

	platformgrpc "github.com/louisbranch/macrotable/internal/platform/grpc"
	grpcmeta "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/metadata"
	"github.com/louisbranch/macrotable/internal/services/macros/app"
	"github.com/louisbranch/macrotable/internal/services/macros/storage/sqlite"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestClient(t *testing.T) *MacroClient {
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

	server := platformgrpc.NewServer(gogrpc.UnaryInterceptor(grpcmeta.UnaryServerInterceptor(func() (string, error) {
		return "req-generated", nil
	})))
	RegisterMacroServer(server.Registrar(), NewService(service))
	server.SetServing(ServiceName)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})

	conn, err := gogrpc.NewClient(listener.Addr().String(), platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewMacroClient(conn)
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	value, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return value
}

func withUser(userID, locale string) context.Context {
	pairs := []string{grpcmeta.UserIDHeader, userID}
	if locale != "" {
		pairs = append(pairs, grpcmeta.LocaleHeader, locale)
	}
	return metadata.NewOutgoingContext(context.Background(), metadata.Pairs(pairs...))
}

func localizedMessage(t *testing.T, err error) (codes.Code, string, string) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected status error, got %v", err)
	}
	reason := ""
	message := ""
	for _, detail := range st.Details() {
		switch typed := detail.(type) {
		case *errdetails.ErrorInfo:
			reason = typed.GetReason()
		case *errdetails.LocalizedMessage:
			message = typed.GetMessage()
		}
	}
	return st.Code(), reason, message
}

func TestEvaluateCounteract(t *testing.T) {
	client := newTestClient(t)

	tests := []struct {
		name         string
		in           map[string]any
		degree       string
		counteracted bool
	}{
		{
			name:         "success within one rank",
			in:           map[string]any{"roll_total": 25, "dc": 20, "your_rank": 3, "opp_rank": 4},
			degree:       "SUCCESS",
			counteracted: true,
		},
		{
			name:         "critical success three ranks up",
			in:           map[string]any{"roll_total": 30, "dc": 20, "your_rank": 3, "opp_rank": 6},
			degree:       "CRITICAL_SUCCESS",
			counteracted: true,
		},
		{
			name:         "failure upgraded by rank",
			in:           map[string]any{"roll_total": 15, "dc": 20, "your_rank": 4, "opp_rank": 3},
			degree:       "SUCCESS",
			counteracted: true,
		},
		{
			name:         "critical failure",
			in:           map[string]any{"roll_total": 5, "dc": 20, "your_rank": 9, "opp_rank": 1},
			degree:       "CRITICAL_FAILURE",
			counteracted: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := client.EvaluateCounteract(context.Background(), mustStruct(t, tt.in))
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			fields := out.GetFields()
			if got := fields["degree_code"].GetStringValue(); got != tt.degree {
				t.Fatalf("degree_code = %q, want %q", got, tt.degree)
			}
			if got := fields["counteracted"].GetBoolValue(); got != tt.counteracted {
				t.Fatalf("counteracted = %v, want %v", got, tt.counteracted)
			}
			if fields["rules_version"].GetStringValue() == "" {
				t.Fatal("expected rules version")
			}
		})
	}
}

func TestExplainCounteractListsSteps(t *testing.T) {
	client := newTestClient(t)

	out, err := client.ExplainCounteract(context.Background(), mustStruct(t, map[string]any{
		"roll_total": 15, "dc": 20, "your_rank": 4, "opp_rank": 3,
	}))
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	fields := out.GetFields()
	if fields["base_degree_code"].GetStringValue() != "FAILURE" {
		t.Fatalf("base degree = %q", fields["base_degree_code"].GetStringValue())
	}
	if !fields["upgraded"].GetBoolValue() {
		t.Fatal("expected upgrade")
	}
	if fields["diff"].GetNumberValue() != -5 {
		t.Fatalf("diff = %v, want -5", fields["diff"].GetNumberValue())
	}
	steps := fields["steps"].GetListValue().GetValues()
	if len(steps) != 4 {
		t.Fatalf("steps = %d, want 4", len(steps))
	}
	first := steps[0].GetStructValue().GetFields()
	if first["code"].GetStringValue() != "COMPUTE_DIFF" {
		t.Fatalf("first step = %q", first["code"].GetStringValue())
	}
}

func TestEvaluateCounteractRejectsBadField(t *testing.T) {
	client := newTestClient(t)

	_, err := client.EvaluateCounteract(context.Background(), mustStruct(t, map[string]any{
		"roll_total": "high", "dc": 20,
	}))
	code, reason, message := localizedMessage(t, err)
	if code != codes.InvalidArgument || reason != "INVALID_ARGUMENT" {
		t.Fatalf("status = %s/%s, want InvalidArgument", code, reason)
	}
	if !strings.Contains(message, "roll_total") {
		t.Fatalf("message = %q, want field name", message)
	}

	_, err = client.EvaluateCounteract(context.Background(), mustStruct(t, map[string]any{"dc": 20.5}))
	if code, _, _ := localizedMessage(t, err); code != codes.InvalidArgument {
		t.Fatalf("fractional dc status = %s", code)
	}
}

func TestCounteractCheckRollsAndReusesLastRoll(t *testing.T) {
	client := newTestClient(t)
	ctx := withUser("user-1", "")

	var header metadata.MD
	out, err := client.CounteractCheck(ctx, mustStruct(t, map[string]any{
		"table_id":          "table-1",
		"modifier":          7,
		"bonus":             1,
		"dc":                20,
		"your_rank":         3,
		"opp_rank":          3,
		"seed":              "42",
		"client_message_id": "c-1",
	}), gogrpc.Header(&header))
	if err != nil {
		t.Fatalf("counteract check: %v", err)
	}
	if got := header.Get(grpcmeta.RequestIDHeader); len(got) != 1 || got[0] != "req-generated" {
		t.Fatalf("request id header = %v", got)
	}
	fields := out.GetFields()
	if fields["seed"].GetStringValue() != "42" || fields["seed_source"].GetStringValue() != "CLIENT" {
		t.Fatalf("seed = %q/%q", fields["seed"].GetStringValue(), fields["seed_source"].GetStringValue())
	}
	base := int(fields["base"].GetNumberValue())
	if base < 1 || base > 20 {
		t.Fatalf("base = %d, want a d20 result", base)
	}
	if int(fields["roll_total"].GetNumberValue()) != base+8 {
		t.Fatalf("roll_total = %v, want %d", fields["roll_total"].GetNumberValue(), base+8)
	}
	roll := fields["roll"].GetStructValue().GetFields()
	if roll["kind"].GetStringValue() != "roll" || int(roll["die_result"].GetNumberValue()) != base {
		t.Fatalf("roll message = %v", roll)
	}
	card := fields["card"].GetStructValue().GetFields()
	if card["kind"].GetStringValue() != "card" {
		t.Fatalf("card kind = %q", card["kind"].GetStringValue())
	}

	reused, err := client.CounteractCheck(ctx, mustStruct(t, map[string]any{
		"table_id":      "table-1",
		"modifier":      2,
		"dc":            15,
		"your_rank":     1,
		"opp_rank":      1,
		"use_last_roll": true,
	}))
	if err != nil {
		t.Fatalf("reuse last roll: %v", err)
	}
	reusedFields := reused.GetFields()
	if !reusedFields["used_last_roll"].GetBoolValue() {
		t.Fatal("expected used_last_roll")
	}
	if int(reusedFields["roll_total"].GetNumberValue()) != base+8 {
		t.Fatalf("reused total = %v, want %d", reusedFields["roll_total"].GetNumberValue(), base+8)
	}
	if _, ok := reusedFields["roll"]; ok {
		t.Fatal("reused roll must not post a new roll message")
	}
}

func TestCounteractCheckLocalizesNoPreviousRoll(t *testing.T) {
	client := newTestClient(t)

	_, err := client.CounteractCheck(withUser("user-1", "pt-BR"), mustStruct(t, map[string]any{
		"table_id":      "table-1",
		"dc":            15,
		"use_last_roll": true,
	}))
	code, reason, message := localizedMessage(t, err)
	if code != codes.FailedPrecondition || reason != "NO_PREVIOUS_ROLL" {
		t.Fatalf("status = %s/%s, want FailedPrecondition/NO_PREVIOUS_ROLL", code, reason)
	}
	if !strings.Contains(message, "Nenhuma rolagem") {
		t.Fatalf("message = %q, want pt-BR text", message)
	}
}

func TestCounteractCheckRequiresUser(t *testing.T) {
	client := newTestClient(t)

	_, err := client.CounteractCheck(context.Background(), mustStruct(t, map[string]any{
		"table_id": "table-1",
		"dc":       15,
	}))
	if _, reason, _ := localizedMessage(t, err); reason != "USER_ID_REQUIRED" {
		t.Fatalf("reason = %q, want USER_ID_REQUIRED", reason)
	}
}

func TestWhirlingThrowUsesAssignedCharacter(t *testing.T) {
	client := newTestClient(t)
	ctx := withUser("user-1", "")

	_, err := client.WhirlingThrow(ctx, mustStruct(t, map[string]any{"table_id": "table-1"}))
	if code, reason, _ := localizedMessage(t, err); code != codes.FailedPrecondition || reason != "ACTOR_NOT_FOUND" {
		t.Fatalf("status = %s/%s, want ACTOR_NOT_FOUND", code, reason)
	}

	if _, err := client.PutCharacter(ctx, mustStruct(t, map[string]any{
		"table_id":     "table-1",
		"character_id": "char-1",
		"name":         "Brakka",
		"strength_mod": 4,
		"assigned":     true,
	})); err != nil {
		t.Fatalf("put character: %v", err)
	}

	out, err := client.WhirlingThrow(ctx, mustStruct(t, map[string]any{
		"table_id":    "table-1",
		"roll_damage": true,
		"seed":        7,
	}))
	if err != nil {
		t.Fatalf("whirling throw: %v", err)
	}
	fields := out.GetFields()
	if fields["damage_formula"].GetStringValue() != "3d6 + 4" {
		t.Fatalf("formula = %q", fields["damage_formula"].GetStringValue())
	}
	if fields["distance_feet"].GetNumberValue() != 30 {
		t.Fatalf("distance = %v", fields["distance_feet"].GetNumberValue())
	}
	actor := fields["actor"].GetStructValue().GetFields()
	if actor["name"].GetStringValue() != "Brakka" {
		t.Fatalf("actor = %v", actor)
	}
	damage := fields["damage"].GetStructValue().GetFields()
	results := damage["results"].GetListValue().GetValues()
	if len(results) != 3 {
		t.Fatalf("damage results = %d, want 3", len(results))
	}
	sum := 4
	for _, value := range results {
		sum += int(value.GetNumberValue())
	}
	if int(damage["total"].GetNumberValue()) != sum {
		t.Fatalf("damage total = %v, want %d", damage["total"].GetNumberValue(), sum)
	}
}

func TestPutCharacterRejectsEmptyName(t *testing.T) {
	client := newTestClient(t)

	_, err := client.PutCharacter(withUser("user-1", ""), mustStruct(t, map[string]any{
		"table_id": "table-1",
		"name":     "  ",
	}))
	if _, reason, _ := localizedMessage(t, err); reason != "CHARACTER_NAME_EMPTY" {
		t.Fatalf("reason = %q, want CHARACTER_NAME_EMPTY", reason)
	}
}

func TestPutCharacterRejectsStrengthModOutOfRange(t *testing.T) {
	client := newTestClient(t)

	_, err := client.PutCharacter(withUser("user-1", "en-US"), mustStruct(t, map[string]any{
		"table_id":     "table-1",
		"name":         "Amiri",
		"strength_mod": 101,
	}))
	code, reason, message := localizedMessage(t, err)
	if code != codes.InvalidArgument || reason != "STRENGTH_MOD_OUT_OF_RANGE" {
		t.Fatalf("status = %s/%s, want InvalidArgument/STRENGTH_MOD_OUT_OF_RANGE", code, reason)
	}
	if !strings.Contains(message, "101") || !strings.Contains(message, "-100 to 100") {
		t.Fatalf("message = %q", message)
	}
}

func TestPutCharacterRejectsAnotherUsersCharacter(t *testing.T) {
	client := newTestClient(t)

	if _, err := client.PutCharacter(withUser("user-1", ""), mustStruct(t, map[string]any{
		"table_id":     "table-1",
		"character_id": "amiri",
		"name":         "Amiri",
		"strength_mod": 3,
	})); err != nil {
		t.Fatalf("put as owner: %v", err)
	}
	_, err := client.PutCharacter(withUser("user-2", ""), mustStruct(t, map[string]any{
		"table_id":     "table-1",
		"character_id": "amiri",
		"name":         "Amiri",
		"strength_mod": 9,
	}))
	if code, reason, _ := localizedMessage(t, err); code != codes.PermissionDenied || reason != "CHARACTER_NOT_OWNED" {
		t.Fatalf("status = %s/%s, want PermissionDenied/CHARACTER_NOT_OWNED", code, reason)
	}
}

func TestListMessagesFiltersAndPages(t *testing.T) {
	client := newTestClient(t)
	ctx := withUser("user-1", "")

	for _, clientID := range []string{"a", "b"} {
		if _, err := client.CounteractCheck(ctx, mustStruct(t, map[string]any{
			"table_id":          "table-1",
			"dc":                15,
			"seed":              3,
			"client_message_id": clientID,
		})); err != nil {
			t.Fatalf("counteract %s: %v", clientID, err)
		}
	}

	out, err := client.ListMessages(context.Background(), mustStruct(t, map[string]any{
		"table_id":  "table-1",
		"filter":    `kind = "card"`,
		"page_size": 1,
	}))
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	messages := out.GetFields()["messages"].GetListValue().GetValues()
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
	token := out.GetFields()["next_page_token"].GetStringValue()
	if token == "" {
		t.Fatal("expected next page token")
	}

	next, err := client.ListMessages(context.Background(), mustStruct(t, map[string]any{
		"table_id":   "table-1",
		"filter":     `kind = "card"`,
		"page_size":  1,
		"page_token": token,
	}))
	if err != nil {
		t.Fatalf("list next page: %v", err)
	}
	if got := len(next.GetFields()["messages"].GetListValue().GetValues()); got != 1 {
		t.Fatalf("next page messages = %d, want 1", got)
	}

	_, err = client.ListMessages(context.Background(), mustStruct(t, map[string]any{
		"table_id": "table-1",
		"filter":   "kind = ",
	}))
	if _, reason, _ := localizedMessage(t, err); reason != "FILTER_INVALID" {
		t.Fatalf("reason = %q, want FILTER_INVALID", reason)
	}
}

func TestServiceWithoutMacros(t *testing.T) {
	service := NewService(nil)
	_, err := service.CounteractCheck(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %s, want Internal", status.Code(err))
	}
	_, err = service.PutCharacter(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("nil request code = %s, want InvalidArgument", status.Code(err))
	}
}

func TestHandleDomainErrorHidesInternalErrors(t *testing.T) {
	err := handleDomainError(errors.New("disk on fire"), "en-US")
	st, _ := status.FromError(err)
	if st.Code() != codes.Internal || strings.Contains(st.Message(), "disk") {
		t.Fatalf("status = %v", st)
	}
}
