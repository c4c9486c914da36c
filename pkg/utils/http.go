package utils

import (
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds every outbound request; once a call is in
// flight it runs to completion or to this network-level deadline.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPClientConfig holds configuration for HTTP client creation
type HTTPClientConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(config HTTPClientConfig) *http.Client {
	client := &http.Client{
		Timeout: config.Timeout,
	}
	if config.UserAgent != "" {
		client.Transport = &userAgentTransport{
			agent: config.UserAgent,
			base:  http.DefaultTransport,
		}
	}
	return client
}

// NewDefaultHTTPClient creates a new HTTP client with the default timeout
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(HTTPClientConfig{Timeout: DefaultHTTPTimeout})
}

// userAgentTransport stamps a fixed User-Agent on every outgoing request.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}

// SafeCloseResponse safely closes an HTTP response body
func SafeCloseResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
