package domain

// RiskLevel is the band a numeric risk score falls into.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Elevated reports whether the level counts toward the high-risk counter.
func (l RiskLevel) Elevated() bool {
	return l == RiskHigh || l == RiskCritical
}

// HandoffReason records why a session was handed to a professional.
type HandoffReason string

const (
	ReasonNone          HandoffReason = ""
	ReasonUserRequested HandoffReason = "user_requested"
	ReasonCriticalRisk  HandoffReason = "critical_risk"
	ReasonHighRisk      HandoffReason = "high_risk"
	ReasonManualTrigger HandoffReason = "manual_trigger"
)

// CrisisResource is a static emergency contact entry.
type CrisisResource struct {
	Name        string `json:"name" yaml:"name"`
	Number      string `json:"number" yaml:"number"`
	Hours       string `json:"hours" yaml:"hours"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
}

// TriageResult is the outcome of evaluating one message.
// An empty Override means the generated reply is used.
type TriageResult struct {
	Activated bool
	Handoff   bool
	Resources []CrisisResource
	Override  string
	Reason    HandoffReason
}

// HasOverride reports whether a pre-authored reply replaces generated content.
func (r TriageResult) HasOverride() bool {
	return r.Override != ""
}
