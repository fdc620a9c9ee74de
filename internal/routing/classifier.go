// Package routing classifies request paths for the request gate. Every function
// here is pure and safe to call with attacker-controlled input.
package routing

import (
	"net/url"
	"path"
	"strings"
)

// Classifier answers routing questions against a route table
type Classifier struct {
	table *Table
}

// NewClassifier creates a classifier over table; a nil table uses DefaultTable
func NewClassifier(table *Table) *Classifier {
	if table == nil {
		table = DefaultTable()
	}
	return &Classifier{table: table}
}

// Table returns the route table in use
func (c *Classifier) Table() *Table {
	return c.table
}

// IsProtectedRoute reports whether path requires an authenticated session
func (c *Classifier) IsProtectedRoute(p string) bool {
	return matchesAnyPrefix(p, c.table.Protected)
}

// IsAdminRoute reports whether path is restricted to admin profiles
func (c *Classifier) IsAdminRoute(p string) bool {
	return matchesAnyPrefix(p, c.table.Admin)
}

// IsAuthRoute reports whether path is a login/signup/password page
func (c *Classifier) IsAuthRoute(p string) bool {
	return matchesAnyPrefix(p, c.table.Auth)
}

// GetLegacyRedirect returns the replacement for a retired path. Matching is exact.
func (c *Classifier) GetLegacyRedirect(p string) (string, bool) {
	target, ok := c.table.Legacy[p]
	if !ok || target == "" {
		return "", false
	}
	return target, true
}

// IsStaticAsset reports whether path is excluded from the gate
func (c *Classifier) IsStaticAsset(p string) bool {
	for _, exact := range c.table.StaticExact {
		if p == exact {
			return true
		}
	}
	for _, prefix := range c.table.StaticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, candidate := range c.table.StaticExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// IsInternalURL reports whether candidate is a same-origin relative path that may be
// used as a redirect target.
func IsInternalURL(candidate string) bool {
	if candidate == "" || candidate[0] != '/' {
		return false
	}
	// "//host" and "/\host" are treated as network-path references by browsers
	if len(candidate) > 1 && (candidate[1] == '/' || candidate[1] == '\\') {
		return false
	}
	for _, r := range candidate {
		if r < 0x20 || r == 0x7f || r == '\\' {
			return false
		}
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if u.Scheme != "" || u.Host != "" || u.User != nil || u.Opaque != "" {
		return false
	}

	// A decoded path must not turn into a network-path reference either
	decoded, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		return false
	}
	if strings.HasPrefix(decoded, "//") || strings.HasPrefix(decoded, "/\\") {
		return false
	}
	return true
}

// matchesAnyPrefix matches p against prefixes on path-segment boundaries
func matchesAnyPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func hasPathPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return p == "/"
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
