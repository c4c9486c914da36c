package whoop

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/daypilot-dev/daypilot/pkg/utils"
)

const (
	// DefaultAPIBaseURL is the versioned WHOOP developer API root.
	DefaultAPIBaseURL = "https://api.prod.whoop.com/developer"

	// refreshWindow is the time-to-expiry threshold for proactive refresh.
	refreshWindow = 60 * time.Second
)

// Client performs authenticated GET requests against the WHOOP API. It owns
// the single authoritative in-memory copy of the credentials for its
// lifetime and keeps the persisted copy in sync after every mutation.
//
// Operations are synchronous blocking calls with no internal parallelism;
// the client is meant to be driven sequentially by a single caller.
type Client struct {
	creds        *Credentials
	store        CredentialStore
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithTokenEndpoint overrides the token endpoint used for refresh grants.
func WithTokenEndpoint(tokenURL string) ClientOption {
	return func(c *Client) {
		c.tokenURL = tokenURL
	}
}

// NewClient wraps stored credentials. The store receives the updated record
// after every refresh and every successful request; a nil store disables
// persistence, which is only appropriate for throwaway sessions.
func NewClient(creds *Credentials, store CredentialStore, clientID, clientSecret string, opts ...ClientOption) *Client {
	c := &Client{
		creds:        creds,
		store:        store,
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      DefaultAPIBaseURL,
		tokenURL:     DefaultTokenURL,
		httpClient:   utils.NewHTTPClient(utils.HTTPClientConfig{Timeout: utils.DefaultHTTPTimeout, UserAgent: userAgent}),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials returns the client's current credential record.
func (c *Client) Credentials() *Credentials {
	return c.creds
}

// Get issues an authenticated GET and returns the decoded JSON object. A
// near-expiry token is refreshed proactively first; a 401 triggers exactly
// one refresh followed by one retry. Every success touches LastSyncAt and
// persists the record.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	if err := c.refreshIfExpiring(ctx); err != nil {
		return nil, err
	}
	return c.request(ctx, path, params, true)
}

func (c *Client) request(ctx context.Context, path string, params url.Values, retryOnUnauthorized bool) (map[string]any, error) {
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &TransportError{URL: requestURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.creds.AuthorizationHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: requestURL, Err: err}
	}
	defer utils.SafeCloseResponse(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: requestURL, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized && retryOnUnauthorized {
		refreshed, refreshErr := c.refresh(ctx)
		if refreshErr != nil {
			return nil, refreshErr
		}
		if refreshed {
			return c.request(ctx, path, params, false)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw)), URL: requestURL}
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ParseError{Msg: "WHOOP API returned invalid JSON: " + strings.TrimSpace(string(raw))}
	}

	if err := c.touchLastSync(); err != nil {
		return nil, err
	}
	return payload, nil
}

// Page is one page of a paginated listing plus the continuation token for
// caller-driven pagination; the client never auto-paginates.
type Page[T any] struct {
	Records   []T
	NextToken string
}

// GetPaginated fetches one page of records, parsing each object entry with
// the supplied parser. Non-object entries are skipped, not failed on.
func GetPaginated[T any](ctx context.Context, c *Client, path string, limit int, parse func(map[string]any) (T, error)) (Page[T], error) {
	var page Page[T]

	data, err := c.Get(ctx, path, url.Values{"limit": {strconv.Itoa(limit)}})
	if err != nil {
		return page, err
	}

	entries, ok := data["records"].([]any)
	if !ok {
		return page, &ParseError{Msg: "unexpected records payload from " + path}
	}
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		record, err := parse(obj)
		if err != nil {
			return page, err
		}
		page.Records = append(page.Records, record)
	}
	page.NextToken = optionalString(data["next_token"])
	return page, nil
}

// refreshIfExpiring refreshes proactively when the token expires within the
// refresh window. A nil expiry means non-expiring and skips refresh.
func (c *Client) refreshIfExpiring(ctx context.Context) error {
	if !c.creds.expiresWithin(c.now().UTC(), refreshWindow) {
		return nil
	}
	_, err := c.refresh(ctx)
	return err
}

// refresh fails closed: when refresh is structurally unavailable (no refresh
// token or no client credentials) it reports false with no error, since the
// eventual 401 is the caller's signal. On success the token fields are
// replaced together, ConnectedAt and LastSyncAt are preserved, and the
// record is persisted.
func (c *Client) refresh(ctx context.Context) (bool, error) {
	if c.creds.RefreshToken == "" || c.clientID == "" || c.clientSecret == "" {
		return false, nil
	}

	values := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.creds.RefreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {"offline"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return false, &TransportError{URL: c.tokenURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &TransportError{URL: c.tokenURL, Err: err}
	}
	defer utils.SafeCloseResponse(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &TransportError{URL: c.tokenURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw)), URL: c.tokenURL}
	}

	tokens, err := parseTokenResponse(raw)
	if err != nil {
		return false, err
	}

	c.creds.AccessToken = tokens.accessToken
	if tokens.refreshToken != "" {
		c.creds.RefreshToken = tokens.refreshToken
	}
	if tokens.tokenType != "" {
		c.creds.TokenType = tokens.tokenType
	}
	if tokens.scope != "" {
		c.creds.Scope = tokens.scope
	}
	if tokens.expiresIn > 0 {
		expiresAt := c.now().UTC().Add(time.Duration(tokens.expiresIn) * time.Second)
		c.creds.ExpiresAt = &expiresAt
	} else {
		c.creds.ExpiresAt = nil
	}

	if err := c.persist(); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) touchLastSync() error {
	now := c.now().UTC()
	c.creds.LastSyncAt = &now
	return c.persist()
}

func (c *Client) persist() error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SaveCredentials(c.creds); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}
