package confidence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/itlightning/dateparse"
)

// tokenExpiryMargin is subtracted from the real JWT expiry so a token is
// refreshed well before the backend stops accepting it.
const tokenExpiryMargin = time.Hour

// token is an immutable cached bearer credential. A refreshed credential
// replaces the whole struct, it is never field-mutated.
type token struct {
	accessToken string
	accountName string
	// expiry already has tokenExpiryMargin subtracted.
	expiry time.Time
}

func (t *token) valid(now time.Time) bool {
	return t != nil && t.accessToken != "" && now.Before(t.expiry)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   string `json:"expires_at"`
}

type jwtClaims struct {
	Exp     int64  `json:"exp"`
	Sub     string `json:"sub"`
	Account string `json:"account"`
}

// tokenSource exchanges client credentials for bearer tokens and caches the
// result until it is within the expiry margin.
type tokenSource struct {
	mu           sync.Mutex
	client       *resty.Client
	endpoint     string
	clientID     string
	clientSecret string
	log          *slog.Logger
	now          func() time.Time

	current *token
}

func newTokenSource(client *resty.Client, endpoint, clientID, clientSecret string, log *slog.Logger) *tokenSource {
	return &tokenSource{
		client:       client,
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		log:          log.With(slog.String("worker", "token")),
		now:          time.Now,
	}
}

// Token returns a valid bearer token, exchanging credentials when the cached
// one is missing or within the expiry margin. Exchange failures propagate to
// the caller; there are no silent retries here.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.current.valid(ts.now()) {
		return ts.current.accessToken, nil
	}

	fresh, err := ts.exchange(ctx)
	if err != nil {
		return "", err
	}
	ts.current = fresh
	ts.log.Debug("token refreshed",
		slog.String("account", fresh.accountName),
		slog.Time("expiry", fresh.expiry),
	)
	return fresh.accessToken, nil
}

// AccountName returns the account claim of the cached token, or "" when no
// token has been obtained yet.
func (ts *tokenSource) AccountName() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.current == nil {
		return ""
	}
	return ts.current.accountName
}

func (ts *tokenSource) exchange(ctx context.Context) (*token, error) {
	var body tokenResponse
	resp, err := ts.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     ts.clientID,
			"client_secret": ts.clientSecret,
		}).
		SetResult(&body).
		Post(ts.endpoint)
	if err != nil {
		return nil, fmt.Errorf("confidence: token exchange: %w", err)
	}
	if resp.IsError() {
		return nil, APIError{Operation: "token exchange", StatusCode: resp.StatusCode(), msg: resp.Status()}
	}
	if body.AccessToken == "" {
		return nil, APIError{Operation: "token exchange", msg: "response contained no access token"}
	}

	account, expiry := inspectToken(body, ts.now())
	return &token{
		accessToken: body.AccessToken,
		accountName: account,
		expiry:      expiry.Add(-tokenExpiryMargin),
	}, nil
}

// inspectToken extracts the account name and real expiry. The JWT exp claim
// wins; expires_at (RFC 3339 or unix seconds, parsed leniently) and
// expires_in are fallbacks for tokens that are not inspectable.
func inspectToken(body tokenResponse, now time.Time) (string, time.Time) {
	account := ""
	expiry := time.Time{}

	if claims, err := parseJWTClaims(body.AccessToken); err == nil {
		account = claims.Account
		if account == "" {
			account = claims.Sub
		}
		if claims.Exp > 0 {
			expiry = time.Unix(claims.Exp, 0)
		}
	}

	if expiry.IsZero() && body.ExpiresAt != "" {
		if parsed, err := dateparse.ParseAny(body.ExpiresAt); err == nil {
			expiry = parsed
		}
	}
	if expiry.IsZero() && body.ExpiresIn > 0 {
		expiry = now.Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	if expiry.IsZero() {
		// Opaque token with no expiry information: force a refresh on the
		// next use after the margin window.
		expiry = now.Add(tokenExpiryMargin + time.Minute)
	}
	return account, expiry
}

func parseJWTClaims(jwt string) (jwtClaims, error) {
	var claims jwtClaims
	parts := strings.Split(jwt, ".")
	if len(parts) != 3 {
		return claims, fmt.Errorf("not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return claims, err
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return claims, err
	}
	return claims, nil
}
