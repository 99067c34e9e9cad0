package confidence

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
)

type Option func(c *Client)

var _ = []Option{
	WithBaseURL(""),
	WithRequestTimeout(0),
	WithRetries(3, 1*time.Second),
	WithCustomHeaders(nil),
	WithLogger(nil),
	WithApplyFlushInterval(0),
	WithLocalResolver(nil),
	WithResolverStateAddress(""),
	WithResolverStateFile(""),
	WithDialOptions(),
	WithSDKVersion(""),
	WithTokenEndpoint(""),
	WithClientID(""),
	WithContext(context.Background()),
}

func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.config.baseURL = url
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.config.timeout = timeout
	}
}

func WithRetries(count int, waitTime time.Duration) Option {
	return func(c *Client) {
		c.client.SetRetryCount(count)
		c.client.SetRetryWaitTime(waitTime)
	}
}

func WithCustomHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.client.SetHeaders(headers)
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithApplyFlushInterval overrides how often pending apply events are sent.
func WithApplyFlushInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.config.applyFlushInterval = interval
		}
	}
}

// WithLocalResolver switches the client to local evaluation inside the given
// WASM resolver module. Initialize must be called before the first
// evaluation so the resolver state can be fetched and installed.
func WithLocalResolver(wasm []byte) Option {
	return func(c *Client) {
		c.config.localResolverWASM = wasm
	}
}

// WithResolverStateAddress overrides the gRPC endpoint the resolver state is
// streamed from in local evaluation mode.
func WithResolverStateAddress(address string) Option {
	return func(c *Client) {
		c.config.resolverStateAddress = address
	}
}

// WithResolverStateFile reads the resolver state from a file instead of the
// backend, for offline or air-gapped use of the local resolver.
func WithResolverStateFile(path string) Option {
	return func(c *Client) {
		c.config.resolverStateFile = path
	}
}

// WithDialOptions supplies gRPC dial options for the resolver-state
// connection (e.g. TLS credentials). Without it, insecure credentials are
// used.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.config.dialOptions = opts
	}
}

// WithSDKVersion overrides the version reported to the backend. The value
// must be a semantic version; NewClient fails on a malformed override.
func WithSDKVersion(version string) Option {
	return func(c *Client) {
		c.config.sdkVersion = version
	}
}

// WithTokenEndpoint overrides the client-credentials token endpoint.
func WithTokenEndpoint(url string) Option {
	return func(c *Client) {
		c.config.tokenEndpoint = url
	}
}

// WithClientID sets the client id sent in the client-credentials exchange.
func WithClientID(clientID string) Option {
	return func(c *Client) {
		c.config.clientID = clientID
	}
}

// WithContext bounds the lifetime of the client's background workers.
func WithContext(ctx context.Context) Option {
	return func(c *Client) {
		c.ctx = ctx
	}
}
