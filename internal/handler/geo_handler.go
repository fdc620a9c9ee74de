package handler

import (
	"net/http"

	"sessiongate/internal/config"
	"sessiongate/internal/domain"
	"sessiongate/internal/geo"
	"sessiongate/internal/middleware"
	"sessiongate/pkg/logger"
)

// GeoHandler exposes the caller's resolved geo context
type GeoHandler struct {
	config *config.Config
	logger *logger.Logger
}

// NewGeoHandler creates a new geo handler
func NewGeoHandler(cfg *config.Config, logger *logger.Logger) *GeoHandler {
	return &GeoHandler{config: cfg, logger: logger}
}

// GetGeo handles GET /api/geo
func (h *GeoHandler) GetGeo(w http.ResponseWriter, r *http.Request) {
	var geoCtx domain.GeoContext

	// the gate has already resolved it for passed requests
	if country := r.Header.Get(middleware.HeaderUserCountry); country != "" && r.Header.Get(middleware.HeaderUserCurrency) != "" {
		geoCtx = geo.Resolve(country)
	} else {
		geoCtx = geo.Resolve(geo.CountryFromRequest(r, h.config.GeoHeaders, h.config.DefaultCountry))
	}

	writeJSON(w, http.StatusOK, geoCtx, h.logger)
}
