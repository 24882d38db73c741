package credentials

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Wrangler config keys the resolver extracts.
const (
	wranglerKeyOAuthToken = "oauth_token"
	wranglerKeyAPIToken   = "api_token"
	wranglerKeyAccountID  = "account_id"
)

// WranglerConfigPaths returns the candidate locations of wrangler's config
// file, most specific first: the platform preferences directory, the legacy
// home dotfile, and the XDG-style config directories.
func WranglerConfigPaths() []string {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	const suffix = "config/default.toml"

	if dir, err := os.UserConfigDir(); err == nil {
		add(filepath.Join(dir, ".wrangler", suffix))
	}
	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".wrangler", suffix))
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			add(filepath.Join(xdg, ".wrangler", suffix))
		}
		add(filepath.Join(home, ".config", ".wrangler", suffix))
	}
	return paths
}

// loadWranglerFile reads and parses one candidate config file.
func loadWranglerFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseWranglerConfig(f), nil
}

// parseWranglerConfig scans `key = "value"` lines, tolerating single or
// double quotes and trailing #-comments. Malformed lines are skipped.
func parseWranglerConfig(r io.Reader) map[string]string {
	values := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, rest, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		if value, ok := parseConfigValue(rest); ok {
			values[key] = value
		}
	}
	return values
}

// parseConfigValue extracts the value from the right-hand side of a config
// line: an optionally quoted string followed by an optional #-comment.
func parseConfigValue(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if quote := s[0]; quote == '"' || quote == '\'' {
		end := strings.IndexByte(s[1:], quote)
		if end < 0 {
			// Unterminated quote: malformed, skip the line.
			return "", false
		}
		return s[1 : 1+end], true
	}

	// Unquoted: value runs until a comment or end of line.
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}
