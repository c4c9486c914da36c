package whoop

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/daypilot-dev/daypilot/pkg/utils"
)

const (
	// DefaultAuthURL is WHOOP's browser-driven authorization endpoint.
	DefaultAuthURL = "https://api.prod.whoop.com/oauth/oauth2/auth"
	// DefaultTokenURL handles both the code exchange and refresh grants.
	DefaultTokenURL = "https://api.prod.whoop.com/oauth/oauth2/token"
	// DefaultScope requests everything the planner consumes, plus offline
	// access so a refresh token is issued.
	DefaultScope = "offline read:recovery read:cycles read:sleep read:workout read:profile read:body_measurement"

	// The redirect endpoint must exactly match the value registered with
	// WHOOP; it is a configuration contract, not negotiable at runtime.
	DefaultRedirectHost = "127.0.0.1"
	DefaultRedirectPort = 8765
	DefaultRedirectPath = "/callback"

	userAgent = "daypilot/0.1.0"

	stateLength   = 8
	stateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// OAuthFlow drives one interactive authorization-code exchange: it starts a
// one-shot loopback listener, opens the authorization URL in the user's
// browser, waits for the redirect, and exchanges the code for tokens.
type OAuthFlow struct {
	clientID     string
	clientSecret string
	authURL      string
	tokenURL     string
	redirectHost string
	redirectPort int
	redirectPath string
	httpClient   *http.Client
	openBrowser  func(url string) error
	onAuthURL    func(url string)
	now          func() time.Time
}

// OAuthFlowOption configures an OAuthFlow.
type OAuthFlowOption func(*OAuthFlow)

// WithEndpoints overrides the provider authorization and token endpoints.
func WithEndpoints(authURL, tokenURL string) OAuthFlowOption {
	return func(f *OAuthFlow) {
		f.authURL = authURL
		f.tokenURL = tokenURL
	}
}

// WithRedirect overrides the loopback redirect address. The value must match
// the redirect URL registered with the provider.
func WithRedirect(host string, port int, path string) OAuthFlowOption {
	return func(f *OAuthFlow) {
		f.redirectHost = host
		f.redirectPort = port
		f.redirectPath = path
	}
}

// WithBrowserOpener replaces the default browser launcher.
func WithBrowserOpener(open func(url string) error) OAuthFlowOption {
	return func(f *OAuthFlow) {
		f.openBrowser = open
	}
}

// WithAuthURLHandler registers a hook that receives the authorization URL
// before the browser is opened, so the caller can display it even when the
// browser launch fails.
func WithAuthURLHandler(handler func(url string)) OAuthFlowOption {
	return func(f *OAuthFlow) {
		f.onAuthURL = handler
	}
}

// NewOAuthFlow creates a flow for the given WHOOP application credentials.
func NewOAuthFlow(clientID, clientSecret string, opts ...OAuthFlowOption) *OAuthFlow {
	f := &OAuthFlow{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      DefaultAuthURL,
		tokenURL:     DefaultTokenURL,
		redirectHost: DefaultRedirectHost,
		redirectPort: DefaultRedirectPort,
		redirectPath: DefaultRedirectPath,
		httpClient:   utils.NewHTTPClient(utils.HTTPClientConfig{Timeout: utils.DefaultHTTPTimeout, UserAgent: userAgent}),
		openBrowser:  openInBrowser,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RedirectURI returns the exact redirect URL the provider must have
// registered for this client.
func (f *OAuthFlow) RedirectURI() string {
	return fmt.Sprintf("http://%s:%d%s", f.redirectHost, f.redirectPort, f.redirectPath)
}

// Connect runs the full interactive exchange and returns freshly minted
// credentials. All failures are *AuthError; retry is an explicit user
// action, never internal.
func (f *OAuthFlow) Connect(ctx context.Context, scope string, timeout time.Duration) (*Credentials, error) {
	if scope == "" {
		scope = DefaultScope
	}

	state, err := generateState()
	if err != nil {
		return nil, &AuthError{Reason: "could not generate state token", Err: err}
	}

	listener := newCallbackListener(f.redirectPath)
	addr := fmt.Sprintf("%s:%d", f.redirectHost, f.redirectPort)
	if err := listener.start(addr); err != nil {
		return nil, &AuthError{Reason: "listener unavailable", Err: err}
	}
	defer listener.shutdown()

	authURL := f.AuthorizationURL(scope, state)
	if f.onAuthURL != nil {
		f.onAuthURL(authURL)
	}
	// Best effort: a failed browser launch is not fatal, the URL was
	// already handed to the caller for display.
	_ = f.openBrowser(authURL)

	result, received := listener.wait(ctx, timeout)
	if !received {
		return nil, &AuthError{Reason: "timed out waiting for authorization"}
	}

	if result.err != "" {
		return nil, &AuthError{Reason: "authorization error: " + result.err}
	}
	// A state mismatch must abort before the token endpoint is ever
	// contacted; the state check is the CSRF defense.
	if result.state != state {
		return nil, &AuthError{Reason: "state mismatch"}
	}
	if result.code == "" {
		return nil, &AuthError{Reason: "missing code"}
	}

	tokens, err := f.exchangeCode(ctx, result.code)
	if err != nil {
		return nil, err
	}

	now := f.now().UTC()
	creds := &Credentials{
		AccessToken:  tokens.accessToken,
		RefreshToken: tokens.refreshToken,
		Scope:        tokens.scope,
		TokenType:    tokens.tokenType,
		ConnectedAt:  now,
	}
	if tokens.expiresIn > 0 {
		expiresAt := now.Add(time.Duration(tokens.expiresIn) * time.Second)
		creds.ExpiresAt = &expiresAt
	}
	return creds, nil
}

// AuthorizationURL builds the provider authorization URL for the given scope
// and state token.
func (f *OAuthFlow) AuthorizationURL(scope, state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {f.clientID},
		"redirect_uri":  {f.RedirectURI()},
		"scope":         {scope},
		"state":         {state},
	}
	return f.authURL + "?" + params.Encode()
}

// tokenPayload is the raw token-endpoint response after validation.
type tokenPayload struct {
	accessToken  string
	refreshToken string
	scope        string
	tokenType    string
	expiresIn    int64
}

// exchangeStrategy shapes one token-endpoint request. Providers disagree on
// how client credentials should be presented, so the exchange walks an
// ordered list of strategies and stops at the first that works. Adding a
// fourth convention means appending here, not restructuring the flow.
type exchangeStrategy struct {
	name    string
	prepare func(f *OAuthFlow, ctx context.Context, code string) (*http.Request, error)
}

var exchangeStrategies = []exchangeStrategy{
	{name: "json", prepare: (*OAuthFlow).jsonExchangeRequest},
	{name: "form", prepare: (*OAuthFlow).formExchangeRequest},
	{name: "form_basic", prepare: (*OAuthFlow).formBasicExchangeRequest},
}

func (f *OAuthFlow) exchangeCode(ctx context.Context, code string) (*tokenPayload, error) {
	var failures []string
	for _, strategy := range exchangeStrategies {
		req, err := strategy.prepare(f, ctx, code)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", strategy.name, err))
			continue
		}
		tokens, err := f.postTokenRequest(req)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", strategy.name, err))
			continue
		}
		return tokens, nil
	}
	return nil, &AuthError{Reason: "token exchange failed: " + strings.Join(failures, " | ")}
}

func (f *OAuthFlow) exchangeValues(code string) url.Values {
	return url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {f.RedirectURI()},
		"client_id":    {f.clientID},
	}
}

func (f *OAuthFlow) jsonExchangeRequest(ctx context.Context, code string) (*http.Request, error) {
	payload := map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  f.RedirectURI(),
		"client_id":     f.clientID,
		"client_secret": f.clientSecret,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (f *OAuthFlow) formExchangeRequest(ctx context.Context, code string) (*http.Request, error) {
	values := f.exchangeValues(code)
	values.Set("client_secret", f.clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (f *OAuthFlow) formBasicExchangeRequest(ctx context.Context, code string) (*http.Request, error) {
	values := f.exchangeValues(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", basicAuthHeader(f.clientID, f.clientSecret))
	return req, nil
}

// postTokenRequest executes one token-endpoint request and validates the
// response shape. A 2xx with an empty access_token counts as a failure so
// the next strategy still gets its turn.
func (f *OAuthFlow) postTokenRequest(req *http.Request) (*tokenPayload, error) {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: f.tokenURL, Err: err}
	}
	defer utils.SafeCloseResponse(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: f.tokenURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw)), URL: f.tokenURL}
	}

	return parseTokenResponse(raw)
}

func parseTokenResponse(raw []byte) (*tokenPayload, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &ParseError{Msg: "token endpoint returned invalid JSON: " + strings.TrimSpace(string(raw))}
	}

	accessToken := optionalString(data["access_token"])
	if accessToken == "" {
		return nil, &ParseError{Field: "access_token"}
	}

	tokens := &tokenPayload{
		accessToken:  accessToken,
		refreshToken: optionalString(data["refresh_token"]),
		scope:        optionalString(data["scope"]),
		tokenType:    optionalString(data["token_type"]),
	}
	if expiresIn := optionalInt64(data["expires_in"]); expiresIn != nil {
		tokens.expiresIn = *expiresIn
	}
	return tokens, nil
}

func basicAuthHeader(clientID, clientSecret string) string {
	token := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	return "Basic " + token
}

func generateState() (string, error) {
	state := make([]byte, stateLength)
	max := big.NewInt(int64(len(stateAlphabet)))
	for i := range state {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		state[i] = stateAlphabet[n.Int64()]
	}
	return string(state), nil
}

// openInBrowser hands the URL to the platform's default browser. There is no
// return value the flow depends on; the caller already has the URL.
func openInBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	default:
		return exec.Command("xdg-open", target).Start()
	}
}
