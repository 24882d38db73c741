package credentials

import (
	"log/slog"
	"os"

	"github.com/sushaantu/CloudflareStatusBar/internal/profile"
)

// Environment variables consulted as the last-resort credential source.
const (
	EnvAPIToken  = "CLOUDFLARE_API_TOKEN"
	EnvAccountID = "CLOUDFLARE_ACCOUNT_ID"
)

// ProfileSource supplies the active stored profile, when one is selected.
type ProfileSource interface {
	Active() (profile.Profile, bool)
}

// Resolver resolves credentials from layered sources, first match wins:
// active profile, wrangler config file, environment. Resolution is a pure
// read and never fails; an empty Credentials means "not authenticated".
type Resolver struct {
	profiles      ProfileSource
	wranglerPaths []string
	getenv        func(string) string
	logger        *slog.Logger
}

// ResolverOptions configures the resolver. Zero-value fields fall back to
// the real profile-less, filesystem- and environment-backed behavior.
type ResolverOptions struct {
	Profiles      ProfileSource
	WranglerPaths []string
	Getenv        func(string) string
	Logger        *slog.Logger
}

// NewResolver creates a credential resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	paths := opts.WranglerPaths
	if paths == nil {
		paths = WranglerConfigPaths()
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		profiles:      opts.Profiles,
		wranglerPaths: paths,
		getenv:        getenv,
		logger:        logger,
	}
}

// Resolve returns the first credential the layered sources yield. When an
// active profile exists the later sources are never consulted.
func (r *Resolver) Resolve() Credentials {
	if r.profiles != nil {
		if p, ok := r.profiles.Active(); ok && p.APIToken != "" {
			r.logger.Debug("credentials resolved from profile", "profile", p.Name)
			return Credentials{APIToken: p.APIToken}
		}
	}

	if creds, ok := r.fromWranglerConfig(); ok {
		return creds
	}

	if token := r.getenv(EnvAPIToken); token != "" {
		r.logger.Debug("credentials resolved from environment")
		return Credentials{
			APIToken:  token,
			AccountID: r.getenv(EnvAccountID),
		}
	}

	return Credentials{}
}

// fromWranglerConfig walks the candidate config paths and returns at the
// first file carrying at least one token key. Unreadable files move on to
// the next candidate.
func (r *Resolver) fromWranglerConfig() (Credentials, bool) {
	for _, path := range r.wranglerPaths {
		values, err := loadWranglerFile(path)
		if err != nil {
			continue
		}

		creds := Credentials{
			OAuthToken: values[wranglerKeyOAuthToken],
			APIToken:   values[wranglerKeyAPIToken],
			AccountID:  values[wranglerKeyAccountID],
		}
		if creds.OAuthToken != "" || creds.APIToken != "" {
			r.logger.Debug("credentials resolved from wrangler config", "path", path)
			return creds, true
		}
	}
	return Credentials{}, false
}
