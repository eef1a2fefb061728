// Package metadata names the gRPC headers of the macro API and moves them
// between contexts: caller identity on the way in, request ids both ways.
package metadata

import (
	"context"
	"strings"

	"github.com/louisbranch/macrotable/internal/platform/id"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// RequestIDHeader is echoed on every response; callers may pick it.
	RequestIDHeader = "x-macrotable-request-id"
	// InvocationIDHeader groups the calls of one MCP tool invocation.
	InvocationIDHeader = "x-macrotable-invocation-id"
	// UserIDHeader and LocaleHeader fill user_id and locale when the request
	// body leaves them out.
	UserIDHeader = "x-macrotable-user-id"
	LocaleHeader = "x-macrotable-locale"
)

// Identity is who a call acts for.
type Identity struct {
	UserID string
	Locale string
}

// AppendIdentity adds the non-empty identity fields to ctx's outgoing
// metadata.
func AppendIdentity(ctx context.Context, identity Identity) context.Context {
	var pairs []string
	if user := strings.TrimSpace(identity.UserID); user != "" {
		pairs = append(pairs, UserIDHeader, user)
	}
	if locale := strings.TrimSpace(identity.Locale); locale != "" {
		pairs = append(pairs, LocaleHeader, locale)
	}
	if len(pairs) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

// IdentityFromContext reads the identity headers of an incoming call.
func IdentityFromContext(ctx context.Context) Identity {
	md := incoming(ctx)
	return Identity{UserID: FirstMetadataValue(md, UserIDHeader), Locale: FirstMetadataValue(md, LocaleHeader)}
}

func UserIDFromContext(ctx context.Context) string { return IdentityFromContext(ctx).UserID }

func LocaleFromContext(ctx context.Context) string { return IdentityFromContext(ctx).Locale }

type requestIDKey struct{}

// WithRequestID stores the request id the interceptor settled on.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// FirstMetadataValue returns the first usable value under key, matching the
// key case-insensitively. Values with control or non-ASCII bytes are skipped.
func FirstMetadataValue(md metadata.MD, key string) string {
	for name, values := range md {
		if !strings.EqualFold(name, key) {
			continue
		}
		for _, value := range values {
			if IsPrintableASCII(value) {
				return value
			}
		}
	}
	return ""
}

// IsPrintableASCII reports whether value is non-empty and made only of
// bytes 0x20 through 0x7e.
func IsPrintableASCII(value string) bool {
	if value == "" {
		return false
	}
	return strings.IndexFunc(value, func(r rune) bool { return r < 0x20 || r > 0x7e }) < 0
}

// UnaryServerInterceptor settles a request id for each call: the caller's
// when it sent a usable one, else a fresh one from newID (id.NewID when nil).
// The id is stored in the context, echoed as a response header, and set on
// the active span.
func UnaryServerInterceptor(newID func() (string, error)) grpc.UnaryServerInterceptor {
	if newID == nil {
		newID = id.NewID
	}
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID, err := resolveRequestID(ctx, newID)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "assign request id: %v", err)
		}
		ctx = WithRequestID(ctx, requestID)
		if err := grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID)); err != nil {
			return nil, status.Errorf(codes.Internal, "set response metadata: %v", err)
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("macrotable.request_id", requestID))
		return handler(ctx, req)
	}
}

func resolveRequestID(ctx context.Context, newID func() (string, error)) (string, error) {
	if requestID := FirstMetadataValue(incoming(ctx), RequestIDHeader); requestID != "" {
		return requestID, nil
	}
	return newID()
}

func incoming(ctx context.Context) metadata.MD {
	if ctx == nil {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	return md
}
