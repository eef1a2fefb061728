package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/macrotable/internal/platform/id"
	"github.com/louisbranch/macrotable/internal/platform/timeouts"
	grpcmeta "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/metadata"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToolCallMetadata is the correlation data returned in a tool result's _meta.
type ToolCallMetadata struct {
	RequestID    string
	InvocationID string
}

var errMissingResponse = errors.New("response is missing")

type macroRPC func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

// callMacro sends fields to rpc on behalf of identity under the per-call
// timeout. Each call gets its own invocation and request ids; the server's
// echoed request id, when present, replaces the one sent.
func callMacro(ctx context.Context, operation string, identity grpcmeta.Identity, rpc macroRPC, fields map[string]any) (*structpb.Struct, *mcp.CallToolResult, error) {
	request, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: encode request: %w", operation, err)
	}
	sent, err := newToolCallMetadata()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", operation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx,
		grpcmeta.RequestIDHeader, sent.RequestID,
		grpcmeta.InvocationIDHeader, sent.InvocationID,
	)
	ctx = grpcmeta.AppendIdentity(ctx, identity)

	var header metadata.MD
	response, err := rpc(ctx, request, grpc.Header(&header))
	if err != nil {
		return nil, nil, toolError(operation, err)
	}
	if response == nil {
		return nil, nil, fmt.Errorf("%s: %w", operation, errMissingResponse)
	}
	return response, MergeResponseMetadata(sent, header).Result(), nil
}

func newToolCallMetadata() (ToolCallMetadata, error) {
	invocationID, err := id.NewID()
	if err != nil {
		return ToolCallMetadata{}, fmt.Errorf("generate invocation id: %w", err)
	}
	requestID, err := id.NewID()
	if err != nil {
		return ToolCallMetadata{}, fmt.Errorf("generate request id: %w", err)
	}
	return ToolCallMetadata{RequestID: requestID, InvocationID: invocationID}, nil
}

// MergeResponseMetadata prefers ids the server echoed over the ones sent.
func MergeResponseMetadata(sent ToolCallMetadata, header metadata.MD) ToolCallMetadata {
	merged := sent
	if requestID := grpcmeta.FirstMetadataValue(header, grpcmeta.RequestIDHeader); requestID != "" {
		merged.RequestID = requestID
	}
	if invocationID := grpcmeta.FirstMetadataValue(header, grpcmeta.InvocationIDHeader); invocationID != "" {
		merged.InvocationID = invocationID
	}
	return merged
}

// Result wraps the ids in an otherwise empty tool result; the SDK fills in
// the structured output.
func (m ToolCallMetadata) Result() *mcp.CallToolResult {
	meta := map[string]any{grpcmeta.RequestIDHeader: m.RequestID}
	if m.InvocationID != "" {
		meta[grpcmeta.InvocationIDHeader] = m.InvocationID
	}
	return &mcp.CallToolResult{Meta: meta}
}

// toolError surfaces the localized message the service attached to a
// status, which is what a person at the table should read.
func toolError(operation string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s failed: %w", operation, err)
	}
	for _, detail := range st.Details() {
		if localized, ok := detail.(*errdetails.LocalizedMessage); ok && localized.GetMessage() != "" {
			return fmt.Errorf("%s failed: %s", operation, localized.GetMessage())
		}
	}
	return fmt.Errorf("%s failed: %s", operation, st.Message())
}
