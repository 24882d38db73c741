// Package credentials resolves a usable Cloudflare credential from layered
// sources: the active stored profile, the wrangler CLI config file, and
// process environment variables.
package credentials

// Credentials is a resolved credential bundle. Either token field may be
// empty; the bundle authenticates requests when at least one is set.
type Credentials struct {
	OAuthToken string
	APIToken   string
	AccountID  string
}

// Authenticated reports whether the bundle carries a usable token.
func (c Credentials) Authenticated() bool {
	return c.OAuthToken != "" || c.APIToken != ""
}

// AuthorizationHeader returns the Bearer header value, preferring the OAuth
// token, or "" when unauthenticated.
func (c Credentials) AuthorizationHeader() string {
	switch {
	case c.OAuthToken != "":
		return "Bearer " + c.OAuthToken
	case c.APIToken != "":
		return "Bearer " + c.APIToken
	default:
		return ""
	}
}
