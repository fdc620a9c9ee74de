package handler

import (
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"sessiongate/internal/container"
	"sessiongate/internal/domain"
	"sessiongate/internal/middleware"
	"sessiongate/internal/routing"
	"sessiongate/internal/service"
	"sessiongate/pkg/errors"
)

const (
	// codeVerifierCookie holds the PKCE verifier between the OAuth redirect and callback
	codeVerifierCookie = "sb-code-verifier"
	codeVerifierMaxAge = 10 * 60
	nextParam          = "next"
)

// AuthHandler handles authentication related requests
type AuthHandler struct {
	container *container.Container
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(container *container.Container) *AuthHandler {
	return &AuthHandler{
		container: container,
	}
}

// UserProfileResponse represents the user profile response
type UserProfileResponse struct {
	User    *domain.Profile `json:"user"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
}

// GetProfile handles GET /api/user/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	// Get session from context (set by the gate or RequireSession)
	session := middleware.SessionFromContext(r.Context())
	if !session.HasUser() {
		writeErrorResponse(w, r, errors.NewAuthenticationError("User not authenticated"), logger)
		return
	}

	identity := h.container.Sessions.UserIdentity(r.Context(), session)
	profile := h.container.Services.Profiles.ResolveProfile(r.Context(), identity)
	logger.WithFields(map[string]interface{}{
		"user_id": identity.ID,
		"source":  string(profile.Source),
	}).Debug("User profile resolved")

	writeJSON(w, http.StatusOK, UserProfileResponse{
		User:    profile,
		Success: true,
		Message: "User profile retrieved successfully",
	}, logger)
}

// StartOAuth handles GET /auth/oauth/{provider}: it redirects to the identity provider
// and remembers the PKCE verifier in a short-lived cookie
func (h *AuthHandler) StartOAuth(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()
	cfg := h.container.GetConfig()

	provider := service.OAuthProvider(chi.URLParam(r, "provider"))

	callback := cfg.SiteURL + "/auth/callback"
	if next := r.URL.Query().Get(nextParam); next != "" && routing.IsInternalURL(next) {
		callback += "?" + url.Values{nextParam: {next}}.Encode()
	}

	req, err := h.container.Services.Identity.AuthorizeURL(provider, callback)
	if err != nil {
		writeErrorResponse(w, r, asAppError(err), logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     codeVerifierCookie,
		Value:    req.CodeVerifier,
		Path:     "/auth",
		MaxAge:   codeVerifierMaxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	logger.WithField("provider", string(provider)).Debug("Starting OAuth sign-in")
	http.Redirect(w, r, req.URL, http.StatusFound)
}

// Callback handles GET /auth/callback: it exchanges the authorization code for a
// session, writes the session cookies and continues to next when it is internal
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()
	cfg := h.container.GetConfig()

	query := r.URL.Query()
	destination := cfg.DefaultAuthedPath
	if next := query.Get(nextParam); next != "" && routing.IsInternalURL(next) {
		destination = next
	}

	if desc := query.Get("error_description"); desc != "" {
		logger.WithField("error", query.Get("error")).Info("OAuth sign-in cancelled or failed")
		h.redirectToLogin(w, r, desc)
		return
	}

	code := query.Get("code")
	verifier, err := r.Cookie(codeVerifierCookie)
	if code == "" || err != nil || verifier.Value == "" {
		writeErrorResponse(w, r, errors.NewValidationError("Missing authorization code", nil), logger)
		return
	}

	session, err := h.container.Services.Identity.ExchangeCode(r.Context(), code, verifier.Value)
	if err != nil {
		logger.WithError(err).Warn("OAuth code exchange failed")
		h.redirectToLogin(w, r, asAppError(err).Message)
		return
	}

	h.clearVerifier(w)
	h.container.Sessions.SetSessionCookies(w, session)

	if session.HasUser() {
		logger.WithField("user_id", session.User.ID).Info("OAuth sign-in completed")
	}
	http.Redirect(w, r, destination, http.StatusSeeOther)
}

// SignOut handles POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		session, _ = h.container.Sessions.GetSession(r.Context(), r, w)
	}

	if session != nil && session.AccessToken() != "" {
		if err := h.container.Services.Identity.SignOut(r.Context(), session.AccessToken()); err != nil {
			logger.WithError(err).Warn("Provider sign-out failed, clearing local session anyway")
		}
	}

	h.container.Sessions.ClearSessionCookies(w)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"redirect": h.container.GetConfig().HomePath,
	}, logger)
}

func (h *AuthHandler) redirectToLogin(w http.ResponseWriter, r *http.Request, message string) {
	h.clearVerifier(w)
	q := url.Values{}
	q.Set("error", message)
	http.Redirect(w, r, h.container.GetConfig().LoginPath+"?"+q.Encode(), http.StatusSeeOther)
}

func (h *AuthHandler) clearVerifier(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     codeVerifierCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.container.GetConfig().CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// asAppError returns err as an AppError, wrapping unknown errors as internal
func asAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.NewInternalError("Unexpected error", err)
}
