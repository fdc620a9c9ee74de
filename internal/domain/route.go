package domain

// DecisionKind names the outcome of the request gate
type DecisionKind string

const (
	DecisionAllow    DecisionKind = "allow"
	DecisionLegacy   DecisionKind = "legacy_redirect"
	DecisionLogin    DecisionKind = "login_redirect"
	DecisionAdmin    DecisionKind = "admin_redirect"
	DecisionAuthPage DecisionKind = "auth_page_redirect"
)

// RouteDecision is produced once per request: allow, or redirect to Destination with Status
type RouteDecision struct {
	Kind        DecisionKind
	Destination string
	Status      int
}

// IsRedirect reports whether the decision short-circuits the request
func (d RouteDecision) IsRedirect() bool {
	return d.Kind != DecisionAllow && d.Destination != ""
}
