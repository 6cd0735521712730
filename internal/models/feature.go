// internal/models/feature.go
package models

import "time"

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

type Propagation string

const (
	PropagationLow    Propagation = "low"
	PropagationMedium Propagation = "medium"
	PropagationHigh   Propagation = "high"
)

func (p Propagation) Valid() bool {
	switch p {
	case PropagationLow, PropagationMedium, PropagationHigh:
		return true
	}
	return false
}

// FeatureRecord holds the semantic attributes derived from one hotspot's content.
type FeatureRecord struct {
	Fingerprint          string      `json:"fingerprint"`
	Keywords             []string    `json:"keywords"`
	Entities             []string    `json:"entities"`
	Sentiment            Sentiment   `json:"sentiment"`
	TitleAttraction      float64     `json:"titleAttraction"`
	PropagationPotential Propagation `json:"propagationPotential"`
	Summary              string      `json:"summary"`
	SuggestedCategory    string      `json:"suggestedCategory,omitempty"`
	SuggestedSubCategory string      `json:"suggestedSubCategory,omitempty"`
	CategoryConfidence   float64     `json:"categoryConfidence,omitempty"`
	Degraded             bool        `json:"degraded"`
	DegradedReason       string      `json:"degradedReason,omitempty"`
	Anomalies            []string    `json:"anomalies,omitempty"`
	Model                string      `json:"model,omitempty"`
	AnalyzedAt           time.Time   `json:"analyzedAt"`
}
