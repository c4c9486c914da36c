package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort grabs a port from the kernel and releases it so the flow under
// test can bind it.
func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

// redirectingBrowser acts as the provider: it pulls the state out of the
// authorization URL and immediately drives the redirect back to the
// loopback listener with the given overrides.
func redirectingBrowser(t *testing.T, port int, override url.Values) func(string) error {
	t.Helper()
	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		require.NoError(t, err)

		params := url.Values{}
		params.Set("code", "test-code")
		params.Set("state", parsed.Query().Get("state"))
		for key, values := range override {
			// An empty override drops the parameter entirely.
			if len(values) == 1 && values[0] == "" {
				params.Del(key)
				continue
			}
			params[key] = values
		}

		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?%s", port, params.Encode()))
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

func TestOAuthFlow_Connect(t *testing.T) {
	var tokenRequests int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenRequests, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600,"scope":"offline","token_type":"bearer"}`))
	}))
	defer tokenServer.Close()

	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithEndpoints("https://auth.example.com/auth", tokenServer.URL),
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(redirectingBrowser(t, port, nil)),
	)

	creds, err := flow.Connect(context.Background(), "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "new-access", creds.AccessToken)
	assert.Equal(t, "new-refresh", creds.RefreshToken)
	assert.Equal(t, "offline", creds.Scope)
	assert.Equal(t, "bearer", creds.TokenType)
	require.NotNil(t, creds.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *creds.ExpiresAt, 10*time.Second)
	assert.False(t, creds.ConnectedAt.IsZero())
	assert.Nil(t, creds.LastSyncAt)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenRequests))
}

func TestOAuthFlow_StateMismatchNeverReachesTokenEndpoint(t *testing.T) {
	var tokenRequests int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenRequests, 1)
		_, _ = w.Write([]byte(`{"access_token":"should-not-happen"}`))
	}))
	defer tokenServer.Close()

	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithEndpoints("https://auth.example.com/auth", tokenServer.URL),
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(redirectingBrowser(t, port, url.Values{"state": {"forged-state"}})),
	)

	_, err := flow.Connect(context.Background(), "", 5*time.Second)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "state mismatch")
	assert.Equal(t, int32(0), atomic.LoadInt32(&tokenRequests))
}

func TestOAuthFlow_ProviderError(t *testing.T) {
	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(redirectingBrowser(t, port, url.Values{"error": {"access_denied"}})),
	)

	_, err := flow.Connect(context.Background(), "", 5*time.Second)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "access_denied")
}

func TestOAuthFlow_MissingCode(t *testing.T) {
	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(redirectingBrowser(t, port, url.Values{"code": {""}})),
	)

	_, err := flow.Connect(context.Background(), "", 5*time.Second)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "missing code")
}

func TestOAuthFlow_TimeoutReleasesPort(t *testing.T) {
	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(func(string) error { return nil }),
	)

	start := time.Now()
	_, err := flow.Connect(context.Background(), "", 100*time.Millisecond)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)

	// The one-shot listener must not outlive the flow call.
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	require.NoError(t, listener.Close())
}

func TestOAuthFlow_ListenerUnavailable(t *testing.T) {
	port := freePort(t)
	occupier, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer func() { _ = occupier.Close() }()

	flow := NewOAuthFlow("client-id", "client-secret",
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(func(string) error { t.Fatal("browser must not open"); return nil }),
	)

	_, err = flow.Connect(context.Background(), "", time.Second)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "listener unavailable")
}

func TestOAuthFlow_ExchangeStrategyFallback(t *testing.T) {
	type tokenRequest struct {
		contentType string
		authHeader  string
	}
	var requests []tokenRequest
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, tokenRequest{
			contentType: r.Header.Get("Content-Type"),
			authHeader:  r.Header.Get("Authorization"),
		})
		// Reject the JSON strategy, accept the first form strategy.
		if r.Header.Get("Content-Type") == "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported content type"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"form-access","expires_in":600}`))
	}))
	defer tokenServer.Close()

	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithEndpoints("https://auth.example.com/auth", tokenServer.URL),
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(redirectingBrowser(t, port, nil)),
	)

	creds, err := flow.Connect(context.Background(), "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "form-access", creds.AccessToken)

	require.Len(t, requests, 2)
	assert.Equal(t, "application/json", requests[0].contentType)
	assert.Equal(t, "application/x-www-form-urlencoded", requests[1].contentType)
	assert.Empty(t, requests[1].authHeader)
}

func TestOAuthFlow_AllExchangeStrategiesFail(t *testing.T) {
	var tokenRequests int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenRequests, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer tokenServer.Close()

	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithEndpoints("https://auth.example.com/auth", tokenServer.URL),
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(redirectingBrowser(t, port, nil)),
	)

	_, err := flow.Connect(context.Background(), "", 5*time.Second)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	// Every strategy's detail is aggregated, in order.
	assert.Contains(t, authErr.Reason, "json: ")
	assert.Contains(t, authErr.Reason, "form: ")
	assert.Contains(t, authErr.Reason, "form_basic: ")
	assert.Contains(t, authErr.Reason, "invalid_client")
	assert.Equal(t, int32(3), atomic.LoadInt32(&tokenRequests))
}

func TestOAuthFlow_EmptyAccessTokenTriesNextStrategy(t *testing.T) {
	var tokenRequests int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&tokenRequests, 1)
		w.Header().Set("Content-Type", "application/json")
		if count == 1 {
			_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"second-try"}`))
	}))
	defer tokenServer.Close()

	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithEndpoints("https://auth.example.com/auth", tokenServer.URL),
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(redirectingBrowser(t, port, nil)),
	)

	creds, err := flow.Connect(context.Background(), "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second-try", creds.AccessToken)
	assert.Nil(t, creds.ExpiresAt)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenRequests))
}

func TestOAuthFlow_BrowserFailureIsNotFatal(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access"}`))
	}))
	defer tokenServer.Close()

	port := freePort(t)
	var displayedURL string
	flow := NewOAuthFlow("client-id", "client-secret",
		WithEndpoints("https://auth.example.com/auth", tokenServer.URL),
		WithRedirect("127.0.0.1", port, "/callback"),
		WithAuthURLHandler(func(authURL string) { displayedURL = authURL }),
		WithBrowserOpener(func(authURL string) error {
			// Launch failed; the user follows the displayed URL by hand.
			go func() {
				_ = redirectingBrowser(t, port, nil)(authURL)
			}()
			return fmt.Errorf("no browser available")
		}),
	)

	creds, err := flow.Connect(context.Background(), "read:cycles", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "access", creds.AccessToken)

	require.NotEmpty(t, displayedURL)
	parsed, err := url.Parse(displayedURL)
	require.NoError(t, err)
	assert.Equal(t, "code", parsed.Query().Get("response_type"))
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	assert.Equal(t, "read:cycles", parsed.Query().Get("scope"))
	assert.Len(t, parsed.Query().Get("state"), 8)
}

func TestOAuthFlow_JSONStrategyPayload(t *testing.T) {
	var payload map[string]string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") == "application/json" {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access"}`))
	}))
	defer tokenServer.Close()

	port := freePort(t)
	flow := NewOAuthFlow("client-id", "client-secret",
		WithEndpoints("https://auth.example.com/auth", tokenServer.URL),
		WithRedirect("127.0.0.1", port, "/callback"),
		WithBrowserOpener(redirectingBrowser(t, port, nil)),
	)

	_, err := flow.Connect(context.Background(), "", 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", payload["grant_type"])
	assert.Equal(t, "test-code", payload["code"])
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d/callback", port), payload["redirect_uri"])
	assert.Equal(t, "client-id", payload["client_id"])
	assert.Equal(t, "client-secret", payload["client_secret"])
}

func TestGenerateState(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		state, err := generateState()
		require.NoError(t, err)
		assert.Len(t, state, 8)
		for _, r := range state {
			assert.Contains(t, stateAlphabet, string(r))
		}
		seen[state] = true
	}
	// 50 draws from a 62^8 space colliding would mean a broken generator.
	assert.Greater(t, len(seen), 45)
}
