// Package geo maps a caller's country to the currency and region used for pricing.
package geo

import (
	"net/http"
	"strings"

	"sessiongate/internal/domain"
)

var pkrCountries = map[string]struct{}{
	"PK": {},
}

// usdCountries are billed in USD with a dedicated region; everything outside both sets
// still gets USD under the OTHER region.
var usdCountries = map[string]struct{}{
	"US": {},
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {}, "EE": {},
	"FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {}, "IT": {}, "LV": {},
	"LT": {}, "LU": {}, "MT": {}, "NL": {}, "PL": {}, "PT": {}, "RO": {}, "SK": {},
	"SI": {}, "ES": {}, "SE": {}, "GB": {}, "CH": {}, "NO": {}, "IS": {}, "LI": {},
}

// unknownCountries are sentinel values some CDNs send when the location is unknown
var unknownCountries = map[string]struct{}{
	"XX": {},
	"T1": {},
}

// ResolveCurrencyAndRegion maps an ISO country code to a currency and region. It is
// total: empty or unknown codes resolve to USD/OTHER.
func ResolveCurrencyAndRegion(countryCode string) (domain.Currency, string) {
	code := normalize(countryCode)

	if _, ok := pkrCountries[code]; ok {
		return domain.CurrencyPKR, domain.RegionPK
	}
	if _, ok := usdCountries[code]; ok {
		if code == "US" {
			return domain.CurrencyUSD, domain.RegionUS
		}
		return domain.CurrencyUSD, domain.RegionEU
	}
	return domain.CurrencyUSD, domain.RegionOther
}

// Resolve builds the full geo context for a country code
func Resolve(countryCode string) domain.GeoContext {
	currency, region := ResolveCurrencyAndRegion(countryCode)
	return domain.GeoContext{
		Country:  normalize(countryCode),
		Currency: currency,
		Region:   region,
	}
}

// CountryFromRequest returns the first usable country code found in headers, or
// fallback when the request carries no geo signal.
func CountryFromRequest(r *http.Request, headers []string, fallback string) string {
	for _, header := range headers {
		code := normalize(r.Header.Get(header))
		if code == "" {
			continue
		}
		if _, unknown := unknownCountries[code]; unknown {
			continue
		}
		return code
	}
	return normalize(fallback)
}

func normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return ""
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return code
}
