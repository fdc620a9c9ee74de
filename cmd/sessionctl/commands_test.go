package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"sessiongate/internal/domain"
)

func authenticatedState() domain.AuthState {
	name := "Ada Lovelace"
	return domain.AuthState{
		Status:  domain.AuthAuthenticated,
		Session: &domain.Session{User: &domain.Identity{ID: "user-1", Email: "ada@example.com"}},
		Profile: &domain.Profile{ID: "user-1", FullName: &name, Role: domain.RoleUser, Source: domain.ProfileSourceSynthesized},
	}
}

func TestPrintState_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printState(&buf, "text", authenticatedState()))

	out := buf.String()
	assert.Contains(t, out, "status: authenticated")
	assert.Contains(t, out, "user-1 <ada@example.com>")
	assert.Contains(t, out, "Ada Lovelace")
	assert.Contains(t, out, "USER (synthesized)")
}

func TestPrintState_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printState(&buf, "json", authenticatedState()))

	var view stateView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, domain.AuthAuthenticated, view.Status)
	assert.Equal(t, "ada@example.com", view.Email)
}

func TestPrintState_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printState(&buf, "yaml", domain.AuthState{Status: domain.AuthUnauthenticated}))

	var view map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, "unauthenticated", view["status"])
	assert.NotContains(t, view, "user_id")
}

func TestPrintState_UnknownFormat(t *testing.T) {
	assert.Error(t, printState(&bytes.Buffer{}, "xml", domain.AuthState{}))
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"signin", "signup", "oauth", "resume"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestCallbackCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare code", "  abc123\n", "abc123", false},
		{"callback URL", "https://app.example.com/auth/callback?code=abc123&next=%2Fdashboard\n", "abc123", false},
		{"provider error", "https://app.example.com/auth/callback?error=access_denied&error_description=User+denied", "", true},
		{"URL without code", "https://app.example.com/auth/callback?next=/", "", true},
		{"empty", "\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := callbackCode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWaitFor_StatusPredicate(t *testing.T) {
	assert.True(t, hasStatus(domain.AuthLoading)(domain.AuthState{Status: domain.AuthLoading}))
	assert.False(t, hasStatus(domain.AuthLoading)(domain.AuthState{Status: domain.AuthAuthenticated}))
}

// newAuthServer fakes the signup and token endpoints and points the CLI config at it
func newAuthServer(t *testing.T, confirmEmail bool) {
	t.Helper()
	session := map[string]interface{}{
		"access_token":  "access-1",
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-1",
		"user": map[string]interface{}{
			"id":         "user-1",
			"email":      "ada@example.com",
			"created_at": "2026-01-01T00:00:00Z",
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/auth/v1/signup" && confirmEmail:
			_ = json.NewEncoder(w).Encode(session["user"])
		case r.URL.Path == "/auth/v1/signup":
			_ = json.NewEncoder(w).Encode(session)
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "pkce":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["auth_code"] != "abc123" || body["code_verifier"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error_description":"invalid flow state"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(session)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	t.Setenv("SUPABASE_URL", server.URL)
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ROUTES_FILE", "")
	t.Setenv("LOG_LEVEL", "error")
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSignUpCmd(t *testing.T) {
	t.Run("session returned", func(t *testing.T) {
		newAuthServer(t, false)

		out, err := runCLI(t, "", "signup", "--email", "ada@example.com", "--password", "pw", "--format", "json")
		require.NoError(t, err)
		assert.Contains(t, out, `"status": "authenticated"`)
		assert.NotContains(t, out, "check your inbox")
	})

	t.Run("email confirmation pending", func(t *testing.T) {
		newAuthServer(t, true)

		out, err := runCLI(t, "", "signup", "--email", "ada@example.com", "--password", "pw")
		require.NoError(t, err)
		assert.Contains(t, out, "check your inbox")
	})
}

func TestOAuthCmd_ExchangesPastedCallback(t *testing.T) {
	newAuthServer(t, false)

	out, err := runCLI(t, "https://app.example.com/auth/callback?code=abc123\n", "oauth", "--provider", "github", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "/auth/v1/authorize?")
	assert.Contains(t, out, `"status": "authenticated"`)
	assert.Contains(t, out, `"user_id": "user-1"`)
}

func TestOAuthCmd_URLOnly(t *testing.T) {
	newAuthServer(t, false)

	out, err := runCLI(t, "", "oauth", "--provider", "github", "--url-only")
	require.NoError(t, err)
	assert.Contains(t, out, "provider=github")
	assert.NotContains(t, out, "Paste the callback URL")
}
