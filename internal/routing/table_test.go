package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTable_OverridesSections(t *testing.T) {
	data := []byte(`
protected:
  - /members
legacy:
  /old-home: /
  /old-members: /members
static_extensions:
  - PDF
  - .csv
`)

	table, err := ParseTable(data)
	require.NoError(t, err)

	c := NewClassifier(table)
	assert.True(t, c.IsProtectedRoute("/members/area"))
	assert.False(t, c.IsProtectedRoute("/dashboard"))

	target, ok := c.GetLegacyRedirect("/old-members")
	assert.True(t, ok)
	assert.Equal(t, "/members", target)

	// untouched sections keep their defaults
	assert.True(t, c.IsAuthRoute("/login"))
	assert.True(t, c.IsStaticAsset("/report.pdf"))
	assert.True(t, c.IsStaticAsset("/favicon.ico"))
	assert.False(t, c.IsStaticAsset("/app.js"))
}

func TestParseTable_RejectsExternalLegacyTarget(t *testing.T) {
	_, err := ParseTable([]byte(`
legacy:
  /go: https://evil.example
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an internal path")
}

func TestParseTable_InvalidYAML(t *testing.T) {
	_, err := ParseTable([]byte("protected: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse routes file")
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  - /sign-in\n"), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/sign-in"}, table.Auth)

	_, err = LoadTable(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
