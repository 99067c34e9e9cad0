// Package confidence is a client for the Confidence feature-flag resolver.
//
// A flag key may use dot-notation ("base.prop1.prop2") to address a nested
// property of a flag's value. Evaluations return a typed value together with
// the resolution reason and variant, and asynchronously report which flags
// were actually applied.
package confidence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/confidence/confidence-go-client/internal/metrics"
	"github.com/confidence/confidence-go-client/internal/resolverstate"
	"github.com/confidence/confidence-go-client/internal/wasmbridge"
)

type clientConfig struct {
	baseURL              string
	tokenEndpoint        string
	clientID             string
	timeout              time.Duration
	applyFlushInterval   time.Duration
	localResolverWASM    []byte
	resolverStateAddress string
	resolverStateFile    string
	dialOptions          []grpc.DialOption
	sdkVersion           string
}

// Client evaluates feature flags remotely against the Confidence backend or
// locally inside a sandboxed WASM resolver.
type Client struct {
	clientSecret string
	config       clientConfig
	client       *resty.Client
	log          *slog.Logger
	metrics      *metrics.Metrics

	resolver flagResolver
	applier  *ApplyProcessor
	tokens   *tokenSource

	state    *resolverstate.Service
	bridge   *wasmbridge.Bridge
	grpcConn *grpc.ClientConn

	instanceID string
	sdk        sdkInfo

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a Client for the given client secret.
//
// Only misconfiguration fails here: an empty secret, a malformed SDK version
// override, or a WASM resolver module missing required exports. Everything
// that can fail per call surfaces later as a failed EvaluationResult.
func NewClient(clientSecret string, options ...Option) (*Client, error) {
	if clientSecret == "" {
		return nil, errors.New("confidence: client secret must not be empty")
	}

	c := &Client{
		clientSecret: clientSecret,
		config: clientConfig{
			baseURL:              DefaultBaseURL,
			clientID:             "sdk",
			timeout:              DefaultTimeout,
			applyFlushInterval:   DefaultApplyFlushInterval,
			resolverStateAddress: DefaultResolverStateAddress,
		},
		client: resty.New(),
		log:    slog.Default(),
		ctx:    context.Background(),
	}

	for _, opt := range options {
		opt(c)
	}

	if c.config.sdkVersion != "" {
		if err := validateVersionOverride(c.config.sdkVersion); err != nil {
			return nil, err
		}
	}
	if c.config.tokenEndpoint == "" {
		c.config.tokenEndpoint = c.config.baseURL + DefaultTokenEndpoint
	}

	version := c.config.sdkVersion
	if version == "" {
		version = sdkVersion()
	}
	c.instanceID = uuid.NewString()
	c.sdk = sdkInfo{ID: sdkID, Version: version}

	c.client.
		SetLogger(restySlogLogger{logger: c.log}).
		SetTimeout(c.config.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", getUserAgent(version)).
		SetHeader("X-Confidence-Instance", c.instanceID).
		OnBeforeRequest(newRestyLogRequestMiddleware(c.log)).
		OnAfterResponse(newRestyLogResponseMiddleware(c.log))

	c.metrics = metrics.New()
	c.tokens = newTokenSource(c.client, c.config.tokenEndpoint, c.config.clientID, clientSecret, c.log)

	c.ctx, c.cancel = context.WithCancel(c.ctx)
	c.applier = newApplyProcessor(c.ctx, c, c.config.applyFlushInterval, c.log, c.metrics)

	if c.config.localResolverWASM != nil {
		if err := c.setupLocalResolver(); err != nil {
			c.cancel()
			return nil, err
		}
	} else {
		c.resolver = &remoteResolver{
			client:       c.client,
			baseURL:      c.config.baseURL,
			clientSecret: clientSecret,
			sdk:          c.sdk,
		}
	}

	return c, nil
}

func (c *Client) setupLocalResolver() error {
	guest, err := wasmbridge.NewWazeroGuest(c.ctx, c.config.localResolverWASM)
	if err != nil {
		return err
	}
	c.bridge = wasmbridge.New(guest, c.log)

	var fetcher resolverstate.Fetcher
	if c.config.resolverStateFile != "" {
		fetcher = resolverstate.FileFetcher{Path: c.config.resolverStateFile}
	} else {
		dialOpts := c.config.dialOptions
		if len(dialOpts) == 0 {
			dialOpts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
		}
		dialOpts = append(dialOpts, grpc.WithStreamInterceptor(resolverstate.NewBearerStreamInterceptor(c.tokens)))
		conn, err := grpc.NewClient(c.config.resolverStateAddress, dialOpts...)
		if err != nil {
			return err
		}
		c.grpcConn = conn
		fetcher = resolverstate.NewGRPCFetcher(conn, c.clientSecret, c.log)
	}

	c.state = resolverstate.NewService(fetcher, bridgeInstaller{bridge: c.bridge}, c.log)
	c.resolver = &localResolver{
		bridge:       c.bridge,
		state:        c.state,
		clientSecret: c.clientSecret,
		sdk:          c.sdk,
	}
	return nil
}

// Initialize fetches, validates, and installs the resolver state for local
// evaluation. It is idempotent once the state is Ready and a no-op for
// remote evaluation. Evaluations issued before Initialize completes fail
// fast with a not-ready result.
func (c *Client) Initialize(ctx context.Context) error {
	if c.state == nil {
		return nil
	}
	err := c.state.Initialize(ctx)
	if err != nil {
		c.metrics.StateInstalls.WithLabelValues("error").Inc()
		return err
	}
	c.metrics.StateInstalls.WithLabelValues("ok").Inc()
	return nil
}

// ApplyFlag records that a resolved flag value was actually used. It is
// normally called internally on successful evaluations; callers resolving
// flags out-of-band can report applies themselves.
func (c *Client) ApplyFlag(flagName, resolveToken string) {
	c.applier.Log(flagName, resolveToken)
}

// Track sends a named analytics event with optional payload data.
func (c *Client) Track(ctx context.Context, eventName string, data map[string]interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(trackRequest{
			ClientSecret: c.clientSecret,
			EventName:    eventName,
			Data:         data,
			SendTime:     time.Now().UTC(),
			Sdk:          c.sdk,
		}).
		Post(c.config.baseURL + "events:track")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return APIError{Operation: "track", StatusCode: resp.StatusCode(), msg: resp.Status()}
	}
	return nil
}

// sendApply implements applySender against the backend telemetry endpoint.
func (c *Client) sendApply(ctx context.Context, resolveToken string, flags []appliedFlagPayload) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(applyRequest{
			ClientSecret: c.clientSecret,
			ResolveToken: resolveToken,
			SendID:       uuid.NewString(),
			SendTime:     time.Now().UTC(),
			AppliedFlags: flags,
			Sdk:          c.sdk,
		}).
		Post(c.config.baseURL + "flags:apply")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return APIError{Operation: "apply", StatusCode: resp.StatusCode(), msg: resp.Status()}
	}
	return nil
}

// MetricsRegistry exposes the client's Prometheus collectors for embedding
// in an application's metrics endpoint.
func (c *Client) MetricsRegistry() *prometheus.Registry {
	return c.metrics.Registry
}

// Close drains pending apply telemetry synchronously, stops background
// workers, and releases the WASM instance and the state connection.
func (c *Client) Close(ctx context.Context) error {
	c.applier.Close(ctx)
	c.cancel()

	var errs []error
	if c.bridge != nil {
		if err := c.bridge.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.grpcConn != nil {
		if err := c.grpcConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
