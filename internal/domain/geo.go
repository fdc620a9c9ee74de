package domain

// Currency is a supported display currency
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyPKR Currency = "PKR"
)

// Region buckets used for pricing and personalization
const (
	RegionUS    = "US"
	RegionEU    = "EU"
	RegionPK    = "PK"
	RegionOther = "OTHER"
)

// GeoContext is the per-request currency and region derived from the caller's country
type GeoContext struct {
	Country  string   `json:"country"`
	Currency Currency `json:"currency"`
	Region   string   `json:"region"`
}
