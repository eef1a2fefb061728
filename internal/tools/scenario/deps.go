package scenario

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// macroClient is the subset of the macro gRPC client the runner drives.
type macroClient interface {
	CounteractCheck(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	WhirlingThrow(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	EvaluateCounteract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ExplainCounteract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	PutCharacter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListMessages(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// runnerDeps bundles injectable dependencies for runner construction.
type runnerDeps struct {
	client macroClient
	// newID names the default table of each run.
	newID func() (string, error)
}

type scenarioState struct {
	tableID    string
	userID     string
	locale     string
	characters map[string]string
}
