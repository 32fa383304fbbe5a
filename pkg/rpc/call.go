package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/littleblus/breezechat/pkg/balancer"
)

// DefaultTimeout is used when a caller does not specify a deadline. spec.md
// §5 describes RPC deadlines as "defaulting to no timeout" at the channel
// level with retry configured separately; DefaultTimeout instead bounds an
// individual Call so a single dead replica cannot hang a caller forever —
// the per-call ServiceManager.Pick/Complete cycle still completes promptly
// even if this particular call times out.
const DefaultTimeout = 10 * time.Second

// MaxRetries bounds the at-most-3-times retry semantics spec.md §5
// describes for channel-level RPC dispatch. It defaults to 3 but is
// overridable at process startup from config.RPCConfig.MaxRetries (see
// cmd/*/main.go), the same package-var-set-once-at-startup shape
// pkg/log.Init uses for its global logger.
var MaxRetries = 3

// Call invokes the gRPC method fullMethod ("/Service/Method") against conn,
// sending req and decoding into resp, using the JSON codec (see codec.go)
// in place of generated protobuf marshaling. It applies DefaultTimeout when
// ctx carries no deadline.
func Call(ctx context.Context, conn *grpc.ClientConn, fullMethod string, req, resp any) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	return conn.Invoke(ctx, fullMethod, req, resp, grpc.CallContentSubtype(CodecName))
}

// CallWithRetry implements spec.md §5's channel-level retry semantics:
// Pick a connection from pool, Call fullMethod, Complete the connection, and
// on failure repeat up to MaxRetries times total before giving up. Each
// attempt re-Picks; a connection whose attempt failed is Completed only when
// CallWithRetry returns, so its raised busy_level steers the retry to a
// different pooled replica whenever one exists.
// ctx's deadline (or the DefaultTimeout Call applies in its absence) bounds
// each individual attempt, not the whole retry sequence.
func CallWithRetry(ctx context.Context, pool *balancer.ServiceChannel, fullMethod string, req, resp any) error {
	var lastErr error
	var failed []*balancer.Conn
	defer func() {
		for _, c := range failed {
			pool.Complete(c)
		}
	}()
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		conn := pool.Pick()
		if conn == nil {
			return fmt.Errorf("rpc: no service instance available for %s", fullMethod)
		}

		err := Call(ctx, conn.GRPC, fullMethod, req, resp)
		if err == nil {
			pool.Complete(conn)
			return nil
		}
		failed = append(failed, conn)
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("rpc: %s failed after %d attempts: %w", fullMethod, MaxRetries, lastErr)
}

// UnaryHandler is the shape every service method implements; request_id is
// carried inside req/resp per spec.md §6 rather than as a separate
// parameter, since every request/response struct embeds RequestID.
type UnaryHandler func(ctx context.Context, req any) (any, error)

// Method describes one RPC method for building a grpc.ServiceDesc by hand,
// the idiomatic substitute for protoc-generated method descriptors.
type Method struct {
	Name       string
	NewRequest func() any
	Handler    UnaryHandler
}

// BuildServiceDesc assembles a grpc.ServiceDesc for serviceName from
// methods, wiring each to a grpc.MethodDesc that decodes the request with
// the server's codec (selected by content-subtype) and invokes Handler.
func BuildServiceDesc(serviceName string, impl any, methods []Method) grpc.ServiceDesc {
	descs := make([]grpc.MethodDesc, 0, len(methods))
	for _, m := range methods {
		m := m
		descs = append(descs, grpc.MethodDesc{
			MethodName: m.Name,
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				req := m.NewRequest()
				if err := dec(req); err != nil {
					return nil, err
				}
				return m.Handler(ctx, req)
			},
		})
	}
	return grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods:     descs,
		Streams:     []grpc.StreamDesc{},
		Metadata:    serviceName + ".json",
	}
}
