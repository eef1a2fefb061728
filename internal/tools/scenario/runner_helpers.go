package scenario

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	grpcmeta "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/metadata"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type invokeFunc func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// call sends request for step. When the step declares expect_error the call is
// done after the error check and the response is nil.
func (r *Runner) call(ctx context.Context, state *scenarioState, step Step, invoke invokeFunc, request map[string]any) (*structpb.Struct, bool, error) {
	in, err := structpb.NewStruct(request)
	if err != nil {
		return nil, true, fmt.Errorf("encode request: %w", err)
	}

	callCtx := grpcmeta.AppendIdentity(ctx, grpcmeta.Identity{UserID: state.userID, Locale: state.stepLocale(step.Args)})

	response, err := invoke(callCtx, in)
	expected := optionalString(step.Args, "expect_error", "")
	if expected == "" {
		if err != nil {
			return nil, true, err
		}
		if response == nil {
			return nil, true, fmt.Errorf("empty response")
		}
		return response, false, nil
	}

	if err == nil {
		return nil, true, r.assertions.Failf("expected error %s, got success", expected)
	}
	if reason := errorReason(err); reason != expected {
		return nil, true, r.assertions.Failf("error = %s (%v), want %s", reason, err, expected)
	}
	r.logf("got expected error %s", expected)
	return nil, true, nil
}

// checkExpectations compares the step's expect table against values. Keys
// ending in _contains match substrings.
func (r *Runner) checkExpectations(values map[string]any, args map[string]any, aliases map[string]string) error {
	expect, ok := args["expect"].(map[string]any)
	if !ok || len(expect) == 0 {
		return nil
	}
	for _, key := range slices.Sorted(maps.Keys(expect)) {
		want := expect[key]
		field, contains := strings.CutSuffix(key, "_contains")
		path := field
		if alias, ok := aliases[field]; ok {
			path = alias
		}
		got, found := lookupPath(values, path)
		if !found {
			if err := r.assertions.Failf("%s missing from response", field); err != nil {
				return err
			}
			continue
		}
		if contains {
			if !strings.Contains(fmt.Sprint(got), fmt.Sprint(want)) {
				if err := r.assertions.Failf("%s = %q, want substring %q", field, got, want); err != nil {
					return err
				}
			}
			continue
		}
		if err := r.assertions.Equal(field, got, want); err != nil {
			return err
		}
	}
	return nil
}

func lookupPath(values map[string]any, path string) (any, bool) {
	current := any(values)
	for _, part := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// errorReason returns the ErrorInfo reason carried by a gRPC status, falling
// back to the status code name.
func errorReason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return "UNKNOWN"
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetReason() != "" {
			return info.GetReason()
		}
	}
	return strings.ToUpper(st.Code().String())
}

func pickArgs(args map[string]any, keys ...string) map[string]any {
	picked := make(map[string]any, len(keys)+3)
	for _, key := range keys {
		if value, ok := args[key]; ok && value != nil {
			picked[key] = value
		}
	}
	return picked
}

func optionalString(args map[string]any, key, fallback string) string {
	value, ok := args[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return fallback
		}
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
