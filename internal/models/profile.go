// internal/models/profile.go
package models

import "math"

// WeightSumTolerance is how far scoring weights may drift from 1.0.
const WeightSumTolerance = 1e-6

type ScoringWeights struct {
	ContentMatch        float64 `json:"contentMatch" yaml:"content_match"`
	AudienceRelevance   float64 `json:"audienceRelevance" yaml:"audience_relevance"`
	Timeliness          float64 `json:"timeliness" yaml:"timeliness"`
	EngagementPotential float64 `json:"engagementPotential" yaml:"engagement_potential"`
}

func (w ScoringWeights) Sum() float64 {
	return w.ContentMatch + w.AudienceRelevance + w.Timeliness + w.EngagementPotential
}

// Valid reports whether every weight is non-negative and the sum is 1 within tolerance.
func (w ScoringWeights) Valid() bool {
	if w.ContentMatch < 0 || w.AudienceRelevance < 0 || w.Timeliness < 0 || w.EngagementPotential < 0 {
		return false
	}
	return math.Abs(w.Sum()-1.0) <= WeightSumTolerance
}

type DomainFocus struct {
	Primary   []string `json:"primary" yaml:"primary"`
	Secondary []string `json:"secondary" yaml:"secondary"`
	Avoid     []string `json:"avoid" yaml:"avoid"`
}

type LengthRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// PlatformProfile describes a publishing target. Profiles are shared read-only
// between batches through an immutable snapshot.
type PlatformProfile struct {
	Name                string         `json:"name" yaml:"name"`
	DisplayName         string         `json:"displayName" yaml:"display_name"`
	TargetAudience      []string       `json:"targetAudience" yaml:"target_audience"`
	ContentPreferences  []string       `json:"contentPreferences" yaml:"content_preferences"`
	Style               string         `json:"style" yaml:"style"`
	Strategy            string         `json:"strategy,omitempty" yaml:"strategy"`
	OptimalLength       LengthRange    `json:"optimalLength" yaml:"optimal_length"`
	BestPostTimes       []string       `json:"bestPostTimes" yaml:"best_post_times"`
	DomainFocus         DomainFocus    `json:"domainFocus" yaml:"domain_focus"`
	ScoringWeights      ScoringWeights `json:"scoringWeights" yaml:"scoring_weights"`
	AcceptanceThreshold float64        `json:"acceptanceThreshold,omitempty" yaml:"acceptance_threshold"`
}
