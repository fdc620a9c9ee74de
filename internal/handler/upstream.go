package handler

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"sessiongate/internal/domain"
	"sessiongate/internal/middleware"
	"sessiongate/pkg/errors"
	"sessiongate/pkg/logger"
)

// HeaderUserID carries the authenticated user's id to the upstream
const HeaderUserID = "x-user-id"

// NewUpstream returns the handler that serves requests the gate let through: a reverse
// proxy to upstreamURL, or a pass-through responder when no upstream is configured.
func NewUpstream(upstreamURL string, logger *logger.Logger) (http.Handler, error) {
	if upstreamURL == "" {
		logger.Info("Upstream URL not configured, using pass-through responder")
		return &passThrough{logger: logger}, nil
	}

	target, err := url.Parse(upstreamURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", upstreamURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host

			pr.Out.Header.Del(HeaderUserID)
			if session := middleware.SessionFromContext(pr.In.Context()); session.HasUser() {
				pr.Out.Header.Set(HeaderUserID, session.User.ID)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			writeErrorResponse(w, r, errors.NewExternalError("Upstream unavailable", err), logger)
		},
	}

	logger.WithField("upstream", target.Redacted()).Info("Proxying pages to upstream")
	return proxy, nil
}

// PassThroughResponse describes a request the gate allowed
type PassThroughResponse struct {
	Path          string            `json:"path"`
	Authenticated bool              `json:"authenticated"`
	UserID        string            `json:"user_id,omitempty"`
	Geo           domain.GeoContext `json:"geo"`
}

type passThrough struct {
	logger *logger.Logger
}

func (p *passThrough) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := PassThroughResponse{
		Path: r.URL.Path,
		Geo: domain.GeoContext{
			Country:  r.Header.Get(middleware.HeaderUserCountry),
			Currency: domain.Currency(r.Header.Get(middleware.HeaderUserCurrency)),
			Region:   r.Header.Get(middleware.HeaderUserRegion),
		},
	}
	if session := middleware.SessionFromContext(r.Context()); session.HasUser() {
		response.Authenticated = true
		response.UserID = session.User.ID
	}

	writeJSON(w, http.StatusOK, response, p.logger)
}
