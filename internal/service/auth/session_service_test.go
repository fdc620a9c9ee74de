package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"sessiongate/internal/domain"
	"sessiongate/internal/service"
	"sessiongate/pkg/errors"
	"sessiongate/pkg/logger"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	args := m.Called(ctx, accessToken)
	identity, _ := args.Get(0).(*domain.Identity)
	return identity, args.Error(1)
}

func (m *mockProvider) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	args := m.Called(ctx, refreshToken)
	session, _ := args.Get(0).(*domain.Session)
	return session, args.Error(1)
}

func (m *mockProvider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*domain.Session)
	return session, args.Error(1)
}

func (m *mockProvider) SignUp(ctx context.Context, email, password, fullName string) (*domain.Session, error) {
	args := m.Called(ctx, email, password, fullName)
	session, _ := args.Get(0).(*domain.Session)
	return session, args.Error(1)
}

func (m *mockProvider) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func (m *mockProvider) AuthorizeURL(provider service.OAuthProvider, redirectTo string) (*service.AuthorizeRequest, error) {
	args := m.Called(provider, redirectTo)
	req, _ := args.Get(0).(*service.AuthorizeRequest)
	return req, args.Error(1)
}

func (m *mockProvider) ExchangeCode(ctx context.Context, code, verifier string) (*domain.Session, error) {
	args := m.Called(ctx, code, verifier)
	session, _ := args.Get(0).(*domain.Session)
	return session, args.Error(1)
}

func signToken(t *testing.T, secret string, sub string, exp time.Time) string {
	t.Helper()
	claims := supabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		},
		Email:        "ada@example.com",
		Role:         "authenticated",
		UserMetadata: map[string]interface{}{"full_name": "Ada Lovelace"},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newRequest(cookies map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionService_NoCookies(t *testing.T) {
	provider := &mockProvider{}
	svc := NewSessionService(provider, testSecret, CookieOptions{}, logger.NewNop())

	rec := httptest.NewRecorder()
	session, err := svc.GetSession(context.Background(), newRequest(nil), rec)

	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Empty(t, rec.Result().Cookies())
	provider.AssertExpectations(t)
}

func TestSessionService_ValidAccessToken(t *testing.T) {
	provider := &mockProvider{}
	svc := NewSessionService(provider, testSecret, CookieOptions{}, logger.NewNop())

	token := signToken(t, testSecret, "user-1", time.Now().Add(time.Hour))
	rec := httptest.NewRecorder()
	session, err := svc.GetSession(context.Background(), newRequest(map[string]string{
		AccessTokenCookie:  token,
		RefreshTokenCookie: "refresh-1",
	}), rec)

	require.NoError(t, err)
	require.True(t, session.HasUser())
	assert.Equal(t, "user-1", session.User.ID)
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.Equal(t, "Ada Lovelace", session.User.UserMetadata["full_name"])
	assert.Equal(t, token, session.AccessToken())
	assert.Equal(t, "refresh-1", session.RefreshToken())
	assert.Empty(t, rec.Result().Cookies(), "valid sessions do not rewrite cookies")
	provider.AssertNotCalled(t, "RefreshSession", mock.Anything, mock.Anything)
}

func TestSessionService_RefreshesExpiredToken(t *testing.T) {
	provider := &mockProvider{}
	svc := NewSessionService(provider, testSecret, CookieOptions{Secure: true}, logger.NewNop())

	expired := signToken(t, testSecret, "user-1", time.Now().Add(-time.Minute))
	rotated := &domain.Session{
		Token: &oauth2.Token{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			Expiry:       time.Now().Add(time.Hour),
		},
		User: &domain.Identity{ID: "user-1"},
	}
	provider.On("RefreshSession", mock.Anything, "refresh-1").Return(rotated, nil).Once()

	rec := httptest.NewRecorder()
	session, err := svc.GetSession(context.Background(), newRequest(map[string]string{
		AccessTokenCookie:  expired,
		RefreshTokenCookie: "refresh-1",
	}), rec)

	require.NoError(t, err)
	assert.Equal(t, "new-access", session.AccessToken())

	access := findCookie(rec, AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "new-access", access.Value)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, "/", access.Path)
	assert.InDelta(t, 3600, access.MaxAge, 5)

	refresh := findCookie(rec, RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "new-refresh", refresh.Value)
	assert.Equal(t, refreshCookieMaxAge, refresh.MaxAge)
	provider.AssertExpectations(t)
}

func TestSessionService_RejectsForeignSignature(t *testing.T) {
	provider := &mockProvider{}
	svc := NewSessionService(provider, testSecret, CookieOptions{}, logger.NewNop())

	forged := signToken(t, "some-other-secret-that-is-long-enough", "attacker", time.Now().Add(time.Hour))
	rec := httptest.NewRecorder()
	session, err := svc.GetSession(context.Background(), newRequest(map[string]string{
		AccessTokenCookie: forged,
	}), rec)

	assert.Error(t, err)
	assert.Nil(t, session)

	cleared := findCookie(rec, AccessTokenCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestSessionService_RevokedRefreshTokenClearsCookies(t *testing.T) {
	provider := &mockProvider{}
	svc := NewSessionService(provider, testSecret, CookieOptions{}, logger.NewNop())

	provider.On("RefreshSession", mock.Anything, "used-refresh").
		Return(nil, errors.NewProviderError(http.StatusBadRequest, "Invalid Refresh Token: Already Used")).Once()

	rec := httptest.NewRecorder()
	session, err := svc.GetSession(context.Background(), newRequest(map[string]string{
		RefreshTokenCookie: "used-refresh",
	}), rec)

	require.Error(t, err)
	assert.Nil(t, session)
	assert.NotNil(t, findCookie(rec, AccessTokenCookie))
	assert.NotNil(t, findCookie(rec, RefreshTokenCookie))
}

func TestSessionService_ProviderOutageKeepsCookies(t *testing.T) {
	provider := &mockProvider{}
	svc := NewSessionService(provider, testSecret, CookieOptions{}, logger.NewNop())

	provider.On("RefreshSession", mock.Anything, "refresh-1").
		Return(nil, errors.NewProviderError(http.StatusBadGateway, "upstream unavailable")).Once()

	rec := httptest.NewRecorder()
	_, err := svc.GetSession(context.Background(), newRequest(map[string]string{
		RefreshTokenCookie: "refresh-1",
	}), rec)

	require.Error(t, err)
	assert.Empty(t, rec.Result().Cookies())
}

func TestSessionService_RemoteVerificationWithoutSecret(t *testing.T) {
	provider := &mockProvider{}
	svc := NewSessionService(provider, "", CookieOptions{}, logger.NewNop())

	provider.On("GetUser", mock.Anything, "opaque-token").
		Return(&domain.Identity{ID: "user-2", Email: "grace@example.com"}, nil).Once()

	session, err := svc.GetSession(context.Background(), newRequest(map[string]string{
		AccessTokenCookie: "opaque-token",
	}), httptest.NewRecorder())

	require.NoError(t, err)
	assert.Equal(t, "user-2", session.User.ID)
	provider.AssertExpectations(t)
}

func TestSessionService_ClearSessionCookies(t *testing.T) {
	svc := NewSessionService(&mockProvider{}, testSecret, CookieOptions{Secure: true}, logger.NewNop())

	rec := httptest.NewRecorder()
	svc.ClearSessionCookies(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
		assert.True(t, c.HttpOnly)
	}
}

func TestSessionService_UserIdentityMatchesAcrossVerificationModes(t *testing.T) {
	confirmedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := &domain.Identity{
		ID:               "user-1",
		Email:            "ada@example.com",
		EmailConfirmedAt: &confirmedAt,
		UserMetadata:     map[string]interface{}{"full_name": "Ada Lovelace"},
		CreatedAt:        confirmedAt.Add(-time.Hour),
		UpdatedAt:        confirmedAt,
	}
	token := signToken(t, testSecret, "user-1", time.Now().Add(time.Hour))
	cookies := map[string]string{AccessTokenCookie: token}

	resolve := func(secret string) *domain.Profile {
		provider := &mockProvider{}
		provider.On("GetUser", mock.Anything, token).Return(remote, nil)
		svc := NewSessionService(provider, secret, CookieOptions{}, logger.NewNop())

		session, err := svc.GetSession(context.Background(), newRequest(cookies), httptest.NewRecorder())
		require.NoError(t, err)
		return service.SynthesizeProfile(svc.UserIdentity(context.Background(), session))
	}

	local := resolve(testSecret)
	remoteProfile := resolve("")

	assert.True(t, local.EmailVerified)
	assert.Equal(t, remoteProfile, local)
}

func TestSessionService_UserIdentityFallsBackToClaims(t *testing.T) {
	provider := &mockProvider{}
	svc := NewSessionService(provider, testSecret, CookieOptions{}, logger.NewNop())

	token := signToken(t, testSecret, "user-1", time.Now().Add(time.Hour))
	provider.On("GetUser", mock.Anything, token).
		Return(nil, errors.NewProviderError(http.StatusBadGateway, "upstream down")).Once()

	session, err := svc.GetSession(context.Background(), newRequest(map[string]string{AccessTokenCookie: token}), httptest.NewRecorder())
	require.NoError(t, err)

	identity := svc.UserIdentity(context.Background(), session)
	require.NotNil(t, identity)
	assert.Same(t, session.User, identity)
	assert.Nil(t, svc.UserIdentity(context.Background(), nil))
	provider.AssertExpectations(t)
}
