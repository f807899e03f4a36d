package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryClientInterceptor returns a gRPC unary client interceptor that
// propagates the resolved identity from the context to outgoing request
// metadata. Agent backends reached over gRPC receive the same identity
// headers (lowercased, per gRPC metadata convention) that HTTP backends
// receive via header injection.
//
// If no identity is in the context, the call proceeds without identity
// metadata; the downstream service must then authenticate the request
// itself.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx = propagateIdentityToGRPC(ctx)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that
// performs the same identity propagation as [UnaryClientInterceptor].
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx = propagateIdentityToGRPC(ctx)
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// propagateIdentityToGRPC adds identity headers from the context to
// outgoing gRPC metadata. Propagation failure never blocks the call;
// the downstream simply receives no identity context.
func propagateIdentityToGRPC(ctx context.Context) context.Context {
	user, ok := UserFromContext(ctx)
	if !ok {
		return ctx
	}

	requestID, _ := RequestIDFromContext(ctx)
	headers, err := BuildPropagationHeaders(user, requestID)
	if err != nil {
		slog.WarnContext(ctx, "auth: failed to build identity metadata for grpc call",
			"error", err,
		)
		return ctx
	}

	pairs := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		pairs = append(pairs, strings.ToLower(k), v)
	}
	md := metadata.Pairs(pairs...)

	if existing, ok := metadata.FromOutgoingContext(ctx); ok {
		md = metadata.Join(existing, md)
	}
	return metadata.NewOutgoingContext(ctx, md)
}
