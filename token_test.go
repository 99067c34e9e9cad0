package confidence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeJWT(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	body := base64.RawURLEncoding.EncodeToString(payload)
	return fmt.Sprintf("%s.%s.sig", header, body)
}

func TestTokenExchangeAndCaching(t *testing.T) {
	var exchanges atomic.Int32
	expiry := time.Now().Add(4 * time.Hour)

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		exchanges.Add(1)
		assert.Equal(t, "POST", req.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "client_credentials", body["grant_type"])
		assert.Equal(t, "sdk", body["client_id"])
		assert.Equal(t, "secret-1", body["client_secret"])

		rw.Header().Set("Content-Type", "application/json")
		jwt := makeJWT(t, map[string]interface{}{
			"exp":     expiry.Unix(),
			"account": "accounts/acme",
		})
		fmt.Fprintf(rw, `{"access_token":%q,"token_type":"Bearer"}`, jwt)
	}))
	defer server.Close()

	ts := newTokenSource(resty.New(), server.URL, "sdk", "secret-1", createLogger())

	first, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.Equal(t, "accounts/acme", ts.AccountName())

	second, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), exchanges.Load(), "a valid cached token must not be re-exchanged")
}

func TestTokenRefreshedWithinExpiryMargin(t *testing.T) {
	var exchanges atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		n := exchanges.Add(1)
		jwt := makeJWT(t, map[string]interface{}{
			// 90 minutes of real validity leaves only 30 minutes after the
			// safety margin.
			"exp": time.Now().Add(90 * time.Minute).Unix(),
			"sub": fmt.Sprintf("token-%d", n),
		})
		rw.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(rw, `{"access_token":%q}`, jwt)
	}))
	defer server.Close()

	ts := newTokenSource(resty.New(), server.URL, "sdk", "secret-1", createLogger())

	_, err := ts.Token(context.Background())
	require.NoError(t, err)

	// Move the clock past the margin-adjusted expiry: refresh happens even
	// though the token is still valid for the backend.
	ts.now = func() time.Time { return time.Now().Add(45 * time.Minute) }

	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), exchanges.Load())
	assert.Equal(t, "token-2", ts.AccountName())
}

func TestTokenExchangeExpiresAtFallback(t *testing.T) {
	expiresAt := time.Now().Add(5 * time.Hour).UTC().Format(time.RFC3339)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(rw, `{"access_token":"opaque-token","expires_at":%q}`, expiresAt)
	}))
	defer server.Close()

	ts := newTokenSource(resty.New(), server.URL, "sdk", "secret-1", createLogger())

	got, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", got)

	got, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", got, "expires_at keeps the opaque token cached")
}

func TestTokenExchangeFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rw.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	ts := newTokenSource(resty.New(), server.URL, "sdk", "bad-secret", createLogger())

	_, err := ts.Token(context.Background())

	var apiErr APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestTokenExchangeMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		fmt.Fprint(rw, `{}`)
	}))
	defer server.Close()

	ts := newTokenSource(resty.New(), server.URL, "sdk", "secret-1", createLogger())

	_, err := ts.Token(context.Background())
	assert.Error(t, err)
}
