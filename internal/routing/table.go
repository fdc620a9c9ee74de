package routing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table is the static routing configuration the classifier consults
type Table struct {
	Protected        []string          `yaml:"protected"`
	Admin            []string          `yaml:"admin"`
	Auth             []string          `yaml:"auth"`
	Legacy           map[string]string `yaml:"legacy"`
	StaticExact      []string          `yaml:"static_exact"`
	StaticPrefixes   []string          `yaml:"static_prefixes"`
	StaticExtensions []string          `yaml:"static_extensions"`
}

// DefaultTable returns the built-in route table
func DefaultTable() *Table {
	return &Table{
		Protected: []string{"/dashboard", "/admin", "/account", "/checkout"},
		Admin:     []string{"/admin"},
		Auth:      []string{"/login", "/signup", "/forgot-password", "/reset-password"},
		Legacy: map[string]string{
			"/signin":          "/login",
			"/register":        "/signup",
			"/my-tickets":      "/dashboard/tickets",
			"/my-orders":       "/dashboard/orders",
			"/profile":         "/dashboard/settings",
			"/account/billing": "/dashboard/billing",
			"/events":          "/tickets",
			"/price":           "/pricing",
		},
		StaticExact:    []string{"/favicon.ico", "/robots.txt", "/sitemap.xml"},
		StaticPrefixes: []string{"/_next/static/", "/_next/image", "/static/", "/assets/"},
		StaticExtensions: []string{
			".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico",
			".css", ".js", ".map", ".woff", ".woff2", ".txt",
		},
	}
}

// LoadTable reads a YAML route table from path. Sections missing from the file keep
// their default values.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	return ParseTable(data)
}

// ParseTable parses a YAML route table over the defaults
func ParseTable(data []byte) (*Table, error) {
	var parsed Table
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}

	table := DefaultTable()
	if parsed.Protected != nil {
		table.Protected = parsed.Protected
	}
	if parsed.Admin != nil {
		table.Admin = parsed.Admin
	}
	if parsed.Auth != nil {
		table.Auth = parsed.Auth
	}
	if parsed.Legacy != nil {
		table.Legacy = parsed.Legacy
	}
	if parsed.StaticExact != nil {
		table.StaticExact = parsed.StaticExact
	}
	if parsed.StaticPrefixes != nil {
		table.StaticPrefixes = parsed.StaticPrefixes
	}
	if parsed.StaticExtensions != nil {
		table.StaticExtensions = normalizeExtensions(parsed.StaticExtensions)
	}

	if err := table.validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func (t *Table) validate() error {
	for from, to := range t.Legacy {
		if !IsInternalURL(from) {
			return fmt.Errorf("legacy path %q must be an internal path", from)
		}
		if !IsInternalURL(to) {
			return fmt.Errorf("legacy target %q for %q must be an internal path", to, from)
		}
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
