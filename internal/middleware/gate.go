package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sessiongate/internal/config"
	"sessiongate/internal/domain"
	"sessiongate/internal/geo"
	"sessiongate/internal/routing"
	"sessiongate/internal/service"
	"sessiongate/pkg/logger"
)

// Geo context headers, set on responses and forwarded requests
const (
	HeaderUserCountry  = "x-user-country"
	HeaderUserCurrency = "x-user-currency"
	HeaderUserRegion   = "x-user-region"
)

// Geo context cookies, readable by client script
const (
	CookieUserCurrency = "user-currency"
	CookieUserRegion   = "user-region"
	CookieUserCountry  = "user-country"
)

const (
	geoCookieMaxAge = 30 * 24 * 60 * 60
	redirectParam   = "redirect"
)

// GateConfig holds the gate's paths and limits
type GateConfig struct {
	LoginPath         string
	DefaultAuthedPath string
	GeoHeaders        []string
	DefaultCountry    string
	CookieSecure      bool
	SessionTimeout    time.Duration
}

// NewGateConfig extracts the gate settings from the application config
func NewGateConfig(cfg *config.Config) GateConfig {
	return GateConfig{
		LoginPath:         cfg.LoginPath,
		DefaultAuthedPath: cfg.DefaultAuthedPath,
		GeoHeaders:        cfg.GeoHeaders,
		DefaultCountry:    cfg.DefaultCountry,
		CookieSecure:      cfg.CookieSecure,
		SessionTimeout:    cfg.SessionRefreshTimeout,
	}
}

// Gate decides, once per request, whether to pass it on or redirect it, and enriches
// passed requests with the caller's geo context.
type Gate struct {
	classifier *routing.Classifier
	sessions   SessionProvider
	profiles   service.ProfileResolver
	cfg        GateConfig
	logger     *logger.Logger
}

// NewGate creates a gate. profiles may be nil, in which case no user passes the admin check.
func NewGate(classifier *routing.Classifier, sessions SessionProvider, profiles service.ProfileResolver, cfg GateConfig, logger *logger.Logger) *Gate {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 5 * time.Second
	}
	return &Gate{
		classifier: classifier,
		sessions:   sessions,
		profiles:   profiles,
		cfg:        cfg,
		logger:     logger.Named("gate"),
	}
}

// Handler wraps next with the gate
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.classifier.IsStaticAsset(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		session := g.session(r, w)
		decision := g.Decide(r.Context(), r, session)

		log := g.logger.WithFields(map[string]interface{}{
			"path":          r.URL.Path,
			"decision":      string(decision.Kind),
			"authenticated": session.HasUser(),
			"request_id":    RequestIDFromContext(r.Context()),
		})

		if decision.IsRedirect() {
			if decision.Status != http.StatusMovedPermanently {
				w.Header().Set("Cache-Control", "no-store")
			}
			log.WithField("destination", decision.Destination).Debug("Gate redirect")
			http.Redirect(w, r, decision.Destination, decision.Status)
			return
		}

		ctx := r.Context()
		if session.HasUser() {
			ctx = WithSession(ctx, session)
		}
		forwarded := r.Clone(ctx)

		geoCtx := g.enrich(w, forwarded)
		log.WithField("country", geoCtx.Country).Debug("Gate allow")

		next.ServeHTTP(w, forwarded)
	})
}

// Decide computes the routing decision for r given the (possibly nil) session
func (g *Gate) Decide(ctx context.Context, r *http.Request, session *domain.Session) domain.RouteDecision {
	path := r.URL.Path

	if target, ok := g.classifier.GetLegacyRedirect(path); ok {
		return domain.RouteDecision{
			Kind:        domain.DecisionLegacy,
			Destination: appendQuery(target, r.URL.RawQuery),
			Status:      http.StatusMovedPermanently,
		}
	}

	authenticated := session.HasUser()

	if g.classifier.IsProtectedRoute(path) && !authenticated {
		q := url.Values{}
		q.Set(redirectParam, r.URL.RequestURI())
		return domain.RouteDecision{
			Kind:        domain.DecisionLogin,
			Destination: g.cfg.LoginPath + "?" + q.Encode(),
			Status:      http.StatusTemporaryRedirect,
		}
	}

	if g.classifier.IsAdminRoute(path) && authenticated && !g.isAdmin(ctx, session) {
		return domain.RouteDecision{
			Kind:        domain.DecisionAdmin,
			Destination: g.cfg.DefaultAuthedPath,
			Status:      http.StatusTemporaryRedirect,
		}
	}

	if g.classifier.IsAuthRoute(path) && authenticated {
		return domain.RouteDecision{
			Kind:        domain.DecisionAuthPage,
			Destination: g.postLoginDestination(r.URL.Query().Get(redirectParam)),
			Status:      http.StatusTemporaryRedirect,
		}
	}

	return domain.RouteDecision{Kind: domain.DecisionAllow}
}

// session loads the request's session within the refresh timeout. Failures count as
// no user.
func (g *Gate) session(r *http.Request, w http.ResponseWriter) *domain.Session {
	if g.sessions == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.SessionTimeout)
	defer cancel()

	session, err := g.sessions.GetSession(ctx, r, w)
	if err != nil {
		g.logger.WithError(err).WithField("path", r.URL.Path).Warn("Session lookup failed, continuing without user")
		return nil
	}
	if !session.HasUser() {
		return nil
	}
	return session
}

func (g *Gate) isAdmin(ctx context.Context, session *domain.Session) bool {
	if g.profiles == nil {
		return false
	}
	return g.profiles.ResolveProfile(ctx, session.User).IsAdmin()
}

// postLoginDestination returns target when it is a safe internal URL outside the auth
// pages, and the default signed-in page otherwise
func (g *Gate) postLoginDestination(target string) string {
	if target == "" || !routing.IsInternalURL(target) {
		return g.cfg.DefaultAuthedPath
	}
	if u, err := url.Parse(target); err != nil || g.classifier.IsAuthRoute(u.Path) {
		return g.cfg.DefaultAuthedPath
	}
	return target
}

// enrich writes the geo context to w and to the forwarded request r
func (g *Gate) enrich(w http.ResponseWriter, r *http.Request) domain.GeoContext {
	geoCtx := geo.Resolve(geo.CountryFromRequest(r, g.cfg.GeoHeaders, g.cfg.DefaultCountry))

	values := []struct {
		header, cookie, value string
	}{
		{HeaderUserCountry, CookieUserCountry, geoCtx.Country},
		{HeaderUserCurrency, CookieUserCurrency, string(geoCtx.Currency)},
		{HeaderUserRegion, CookieUserRegion, geoCtx.Region},
	}

	for _, v := range values {
		w.Header().Set(v.header, v.value)
		r.Header.Set(v.header, v.value)
		http.SetCookie(w, &http.Cookie{
			Name:     v.cookie,
			Value:    v.value,
			Path:     "/",
			MaxAge:   geoCookieMaxAge,
			Secure:   g.cfg.CookieSecure,
			HttpOnly: false,
			SameSite: http.SameSiteLaxMode,
		})
	}

	return geoCtx
}

func appendQuery(target, rawQuery string) string {
	if rawQuery == "" {
		return target
	}
	if strings.Contains(target, "?") {
		return target + "&" + rawQuery
	}
	return target + "?" + rawQuery
}
