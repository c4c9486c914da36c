package whoop

import (
	"strings"
	"time"
)

// Credentials holds a connected WHOOP account's tokens and lifecycle
// timestamps. ConnectedAt is set once at first authorization and never
// changes; AccessToken and ExpiresAt are always replaced together on
// refresh. A record with no RefreshToken stays usable until expiry but can
// never be renewed.
type Credentials struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ConnectedAt  time.Time  `json:"connected_at"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
}

// AuthorizationHeader renders the Authorization header value, defaulting the
// token type to a bearer scheme when the provider omitted it.
func (c *Credentials) AuthorizationHeader() string {
	tokenType := strings.TrimSpace(c.TokenType)
	if tokenType == "" {
		tokenType = "bearer"
	}
	return titleCase(tokenType) + " " + c.AccessToken
}

// Expired reports whether the access token has expired. A nil ExpiresAt is
// treated as non-expiring.
func (c *Credentials) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !c.ExpiresAt.After(now)
}

// expiresWithin reports whether the access token expires inside the given
// window from now.
func (c *Credentials) expiresWithin(now time.Time, window time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !c.ExpiresAt.After(now.Add(window))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// CredentialStore durably persists credentials for the connected account.
// Implementations must be atomic enough that a crash mid-write does not
// corrupt the stored record.
type CredentialStore interface {
	SaveCredentials(creds *Credentials) error
}
