package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"sessiongate/internal/config"
	"sessiongate/internal/domain"
	"sessiongate/pkg/errors"
	"sessiongate/pkg/logger"
)

// OAuthProvider names an external identity provider supported for social sign-in
type OAuthProvider string

const (
	OAuthGoogle   OAuthProvider = "google"
	OAuthGitHub   OAuthProvider = "github"
	OAuthFacebook OAuthProvider = "facebook"
	OAuthAzure    OAuthProvider = "azure"
)

// IsSupported reports whether p can be used with SignInWithOAuth
func (p OAuthProvider) IsSupported() bool {
	switch p {
	case OAuthGoogle, OAuthGitHub, OAuthFacebook, OAuthAzure:
		return true
	}
	return false
}

// supabaseSession is the token response of the auth API
type supabaseSession struct {
	AccessToken  string           `json:"access_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int64            `json:"expires_in"`
	ExpiresAt    int64            `json:"expires_at"`
	RefreshToken string           `json:"refresh_token"`
	User         *domain.Identity `json:"user"`
}

// supabaseError covers the error shapes returned by the auth API
type supabaseError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// AuthorizeRequest is the result of starting an OAuth sign-in
type AuthorizeRequest struct {
	URL          string
	CodeVerifier string
}

// SupabaseClient handles all interactions with the Supabase auth API
type SupabaseClient struct {
	config     *config.Config
	httpClient *http.Client
	logger     *logger.Logger
	now        func() time.Time
}

// NewSupabaseClient creates a new Supabase client
func NewSupabaseClient(cfg *config.Config, logger *logger.Logger) *SupabaseClient {
	return &SupabaseClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}
}

// GetUser returns the identity behind an access token
func (s *SupabaseClient) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	var identity domain.Identity
	if err := s.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, &identity); err != nil {
		return nil, err
	}
	if identity.ID == "" {
		return nil, errors.NewAuthenticationError("Auth session missing")
	}
	return &identity, nil
}

// RefreshSession exchanges a refresh token for a new token pair
func (s *SupabaseClient) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return s.tokenGrant(ctx, "refresh_token", body)
}

// SignInWithPassword starts a session with email and password
func (s *SupabaseClient) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]string{"email": email, "password": password}
	return s.tokenGrant(ctx, "password", body)
}

// SignUp registers a new user. The returned session is nil when the project requires
// email confirmation before the first sign-in.
func (s *SupabaseClient) SignUp(ctx context.Context, email, password, fullName string) (*domain.Session, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"data": map[string]interface{}{
			"full_name": fullName,
		},
	}

	raw := json.RawMessage{}
	if err := s.do(ctx, http.MethodPost, "/auth/v1/signup", body, "", &raw); err != nil {
		return nil, err
	}

	var resp supabaseSession
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.NewExternalError("Failed to decode sign-up response", err)
	}
	if resp.AccessToken == "" {
		s.logger.WithField("email_domain", emailDomain(email)).Info("Sign-up pending email confirmation")
		return nil, nil
	}
	return s.toSession(&resp), nil
}

// SignOut revokes the session behind accessToken
func (s *SupabaseClient) SignOut(ctx context.Context, accessToken string) error {
	return s.do(ctx, http.MethodPost, "/auth/v1/logout", nil, accessToken, nil)
}

// AuthorizeURL builds the OAuth redirect for provider using PKCE. The verifier must be
// kept by the caller until ExchangeCode.
func (s *SupabaseClient) AuthorizeURL(provider OAuthProvider, redirectTo string) (*AuthorizeRequest, error) {
	if !provider.IsSupported() {
		return nil, errors.NewValidationError("Unsupported provider: "+string(provider), nil)
	}

	verifier := oauth2.GenerateVerifier()
	q := url.Values{}
	q.Set("provider", string(provider))
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "s256")

	return &AuthorizeRequest{
		URL:          s.config.SupabaseURL + "/auth/v1/authorize?" + q.Encode(),
		CodeVerifier: verifier,
	}, nil
}

// ExchangeCode completes a PKCE flow started by AuthorizeURL
func (s *SupabaseClient) ExchangeCode(ctx context.Context, code, verifier string) (*domain.Session, error) {
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	return s.tokenGrant(ctx, "pkce", body)
}

func (s *SupabaseClient) tokenGrant(ctx context.Context, grantType string, body interface{}) (*domain.Session, error) {
	var resp supabaseSession
	if err := s.do(ctx, http.MethodPost, "/auth/v1/token?grant_type="+grantType, body, "", &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.NewExternalError("Auth response did not include a session", nil)
	}
	return s.toSession(&resp), nil
}

func (s *SupabaseClient) toSession(resp *supabaseSession) *domain.Session {
	expiry := time.Time{}
	switch {
	case resp.ExpiresAt > 0:
		expiry = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		expiry = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}

	return &domain.Session{
		Token: &oauth2.Token{
			AccessToken:  resp.AccessToken,
			TokenType:    tokenType,
			RefreshToken: resp.RefreshToken,
			Expiry:       expiry,
		},
		User: resp.User,
	}
}

// do performs a JSON request against the auth API and decodes the response into out
func (s *SupabaseClient) do(ctx context.Context, method, path string, body interface{}, accessToken string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("Failed to marshal request body", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.SupabaseURL+path, reader)
	if err != nil {
		return errors.NewInternalError("Failed to create request", err)
	}

	req.Header.Set("apikey", s.config.SupabaseAnonKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+s.config.SupabaseAnonKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.NewExternalError("Failed to reach identity provider", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewExternalError("Failed to read identity provider response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := providerMessage(respBody, resp.StatusCode)
		s.logger.WithFields(map[string]interface{}{
			"path":        path,
			"status_code": resp.StatusCode,
			"message":     message,
		}).Debug("Identity provider rejected request")
		return errors.NewProviderError(resp.StatusCode, message)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		s.logger.WithFields(map[string]interface{}{
			"path":        path,
			"status_code": resp.StatusCode,
		}).Error("Failed to parse identity provider response")
		return errors.NewExternalError("Failed to parse identity provider response", err)
	}
	return nil
}

// providerMessage extracts the human readable message from an auth API error body
func providerMessage(body []byte, statusCode int) string {
	var payload supabaseError
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []string{payload.ErrorDescription, payload.Msg, payload.Message, payload.Error} {
			if candidate != "" {
				return candidate
			}
		}
	}
	return fmt.Sprintf("identity provider returned status %d", statusCode)
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
