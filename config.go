package confidence

import (
	"time"
)

const (
	// Number of seconds to wait for a request to
	// complete before terminating the request.
	DefaultTimeout = 10 * time.Second

	// Default base URL for the resolver API.
	DefaultBaseURL = "https://resolver.confidence.dev/v1/"

	// Default address of the resolver-state gRPC endpoint.
	DefaultResolverStateAddress = "edge-grpc.confidence.dev:443"

	// Default path (relative to the base URL) of the token endpoint.
	DefaultTokenEndpoint = "oauth/token"

	// How often pending apply events are flushed.
	DefaultApplyFlushInterval = 10 * time.Second

	// Maximum number of applied flags per flush batch.
	ApplyBatchMaxSize = 100

	// Maximum number of batch sends in flight during one flush.
	ApplyMaxInFlight = 5
)
