package macros

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "macrotable.macros.v1.MacroService"

const (
	MethodCounteractCheck    = "CounteractCheck"
	MethodWhirlingThrow      = "WhirlingThrow"
	MethodEvaluateCounteract = "EvaluateCounteract"
	MethodExplainCounteract  = "ExplainCounteract"
	MethodPutCharacter       = "PutCharacter"
	MethodListMessages       = "ListMessages"
)

// MacroServer is the server API for the macro service. Requests and
// responses are google.protobuf.Struct documents with snake_case fields.
type MacroServer interface {
	CounteractCheck(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WhirlingThrow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EvaluateCounteract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExplainCounteract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PutCharacter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(MacroServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) gogrpc.MethodDesc {
	return gogrpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MacroServer), ctx, in)
			}
			info := &gogrpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(method),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MacroServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes MacroService for registration.
var ServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MacroServer)(nil),
	Methods: []gogrpc.MethodDesc{
		unaryHandler(MethodCounteractCheck, MacroServer.CounteractCheck),
		unaryHandler(MethodWhirlingThrow, MacroServer.WhirlingThrow),
		unaryHandler(MethodEvaluateCounteract, MacroServer.EvaluateCounteract),
		unaryHandler(MethodExplainCounteract, MacroServer.ExplainCounteract),
		unaryHandler(MethodPutCharacter, MacroServer.PutCharacter),
		unaryHandler(MethodListMessages, MacroServer.ListMessages),
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "macrotable/macros/v1/macros.proto",
}

// RegisterMacroServer registers srv on registrar.
func RegisterMacroServer(registrar gogrpc.ServiceRegistrar, srv MacroServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// FullMethod returns the full gRPC method path.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// MacroClient calls MacroService.
type MacroClient struct {
	cc gogrpc.ClientConnInterface
}

// NewMacroClient returns a client over cc.
func NewMacroClient(cc gogrpc.ClientConnInterface) *MacroClient {
	return &MacroClient{cc: cc}
}

// Invoke calls method with in and returns the response document.
func (c *MacroClient) Invoke(ctx context.Context, method string, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MacroClient) CounteractCheck(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodCounteractCheck, in, opts...)
}

func (c *MacroClient) WhirlingThrow(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodWhirlingThrow, in, opts...)
}

func (c *MacroClient) EvaluateCounteract(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodEvaluateCounteract, in, opts...)
}

func (c *MacroClient) ExplainCounteract(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodExplainCounteract, in, opts...)
}

func (c *MacroClient) PutCharacter(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodPutCharacter, in, opts...)
}

func (c *MacroClient) ListMessages(ctx context.Context, in *structpb.Struct, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	return c.Invoke(ctx, MethodListMessages, in, opts...)
}
