package confidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/confidence/confidence-go-client/internal/resolverstate"
	"github.com/confidence/confidence-go-client/internal/wasmbridge"
)

// flagResolver resolves one qualified flag name against an evaluation
// context, returning the resolved flag and the resolve token correlating
// later apply telemetry.
type flagResolver interface {
	resolveFlag(ctx context.Context, flagName string, ec EvaluationContext) (*ResolvedFlag, string, error)
}

// remoteResolver resolves flags against the backend HTTP endpoint. Transport
// retries with backoff are resty's, configured at client construction.
type remoteResolver struct {
	client       *resty.Client
	baseURL      string
	clientSecret string
	sdk          sdkInfo
}

func (r *remoteResolver) resolveFlag(ctx context.Context, flagName string, ec EvaluationContext) (*ResolvedFlag, string, error) {
	var body resolveResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(resolveRequest{
			ClientSecret:      r.clientSecret,
			Apply:             false,
			Flags:             []string{flagName},
			EvaluationContext: ec.asMap(),
			Sdk:               r.sdk,
		}).
		SetResult(&body).
		Post(r.baseURL + "flags:resolve")
	if err != nil {
		return nil, "", fmt.Errorf("confidence: resolve %s: %w", flagName, err)
	}
	if resp.IsError() {
		return nil, "", APIError{Operation: "resolve", StatusCode: resp.StatusCode(), msg: resp.Status()}
	}
	return pickResolvedFlag(&body, flagName)
}

// localResolver resolves flags inside the WASM guest once the state
// lifecycle has reached Ready. Calls before that fail fast.
type localResolver struct {
	bridge       *wasmbridge.Bridge
	state        *resolverstate.Service
	clientSecret string
	sdk          sdkInfo
}

func (r *localResolver) resolveFlag(ctx context.Context, flagName string, ec EvaluationContext) (*ResolvedFlag, string, error) {
	if !r.state.Ready() {
		if err := r.state.Err(); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrProviderNotReady, err)
		}
		return nil, "", ErrProviderNotReady
	}

	payload, err := json.Marshal(resolveRequest{
		ClientSecret:      r.clientSecret,
		Apply:             false,
		Flags:             []string{flagName},
		EvaluationContext: ec.asMap(),
		Sdk:               r.sdk,
	})
	if err != nil {
		return nil, "", fmt.Errorf("confidence: encode resolve request: %w", err)
	}

	raw, err := r.bridge.Resolve(ctx, payload)
	if err != nil {
		return nil, "", fmt.Errorf("confidence: local resolve %s: %w", flagName, err)
	}

	var body resolveResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, "", fmt.Errorf("confidence: decode resolve response: %w", err)
	}
	return pickResolvedFlag(&body, flagName)
}

func pickResolvedFlag(body *resolveResponse, flagName string) (*ResolvedFlag, string, error) {
	for i := range body.ResolvedFlags {
		if body.ResolvedFlags[i].Flag == flagName {
			return &body.ResolvedFlags[i], body.ResolveToken, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrFlagNotFound, flagName)
}

// bridgeInstaller adapts the WASM bridge to the state lifecycle's installer
// step. An empty install result counts as a failed install.
type bridgeInstaller struct {
	bridge *wasmbridge.Bridge
}

func (b bridgeInstaller) InstallState(ctx context.Context, state []byte) error {
	result, err := b.bridge.SetResolverState(ctx, state)
	if err != nil {
		return err
	}
	if len(result) == 0 {
		return errors.New("set_resolver_state returned an empty result")
	}
	return nil
}
