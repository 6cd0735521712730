// internal/models/classification.go
package models

const (
	MethodRule         = "rule"
	MethodRuleEnhanced = "rule_enhanced"
	MethodLLM          = "llm"
	MethodDefault      = "default"
)

type Classification struct {
	PrimaryCategory   string  `json:"primaryCategory"`
	SecondaryCategory string  `json:"secondaryCategory,omitempty"`
	Confidence        float64 `json:"confidence"`
	Method            string  `json:"method"`
	MatchedRule       string  `json:"matchedRule,omitempty"`
}
