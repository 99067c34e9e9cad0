package resolverstate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protowire"
)

// resolverStateMethod is the server-streaming RPC returning the binary state.
const resolverStateMethod = "/confidence.flags.resolver.v1.ResolverStateService/ResolverState"

// fetchAttempts bounds transport-level retries of the state stream. Each
// attempt waits one backoff step; a still-failing fetch propagates so the
// lifecycle can move to Failed rather than retry silently forever.
const fetchAttempts = 3

var resolverStateStreamDesc = &grpc.StreamDesc{
	StreamName:    "ResolverState",
	ServerStreams: true,
}

// TokenSource supplies the bearer token attached to every state fetch.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// rawMessage carries opaque bytes through gRPC without generated message
// types; the state blob is never interpreted by this client.
type rawMessage struct {
	data []byte
}

// rawCodec is a pass-through gRPC codec for rawMessage payloads.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(*rawMessage)
	if !ok {
		return nil, fmt.Errorf("resolverstate: rawCodec cannot marshal %T", v)
	}
	return msg.data, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("resolverstate: rawCodec cannot unmarshal into %T", v)
	}
	msg.data = data
	return nil
}

func (rawCodec) Name() string { return "confidence-raw" }

// NewBearerStreamInterceptor injects "authorization: Bearer <token>" into
// every outgoing stream on the state-fetch path. Token refresh failures
// propagate as stream errors, which the fetcher surfaces as fetch failures.
func NewBearerStreamInterceptor(tokens TokenSource) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		token, err := tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolverstate: obtaining bearer token: %w", err)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// GRPCFetcher fetches the resolver state over the server-streaming RPC.
type GRPCFetcher struct {
	conn         grpc.ClientConnInterface
	clientSecret string
	log          *slog.Logger
}

func NewGRPCFetcher(conn grpc.ClientConnInterface, clientSecret string, log *slog.Logger) *GRPCFetcher {
	return &GRPCFetcher{
		conn:         conn,
		clientSecret: clientSecret,
		log:          log.With(slog.String("worker", "state-fetch")),
	}
}

// FetchState opens the state stream and consumes exactly the first message
// as the full state; additional messages are ignored. An empty stream is
// ErrNoState.
func (f *GRPCFetcher) FetchState(ctx context.Context) ([]byte, error) {
	wait := newBackoff()
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		state, err := f.fetchOnce(ctx)
		if err == nil {
			return state, nil
		}
		// Stream-end and validation outcomes are final; only transport
		// errors are retried.
		if errors.Is(err, ErrNoState) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		f.log.Warn("state fetch failed",
			"error", err,
			slog.Int("attempt", attempt),
		)
		if attempt < fetchAttempts {
			wait.wait(ctx)
		}
	}
	return nil, lastErr
}

func (f *GRPCFetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	// The stream gets its own cancel so it is torn down as soon as the first
	// message is in hand, even when the server keeps it open.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := f.conn.NewStream(ctx, resolverStateStreamDesc, resolverStateMethod, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		return nil, fmt.Errorf("resolverstate: open stream: %w", err)
	}

	request := protowire.AppendTag(nil, 1, protowire.BytesType)
	request = protowire.AppendString(request, f.clientSecret)
	if err := stream.SendMsg(&rawMessage{data: request}); err != nil {
		return nil, fmt.Errorf("resolverstate: send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("resolverstate: close send: %w", err)
	}

	var first rawMessage
	if err := stream.RecvMsg(&first); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("resolverstate: receive state: %w", err)
	}
	if len(first.data) == 0 {
		return nil, ErrNoState
	}
	// The first message is the full state; any further messages are ignored
	// and the deferred cancel releases the stream.
	return first.data, nil
}
