// internal/models/suitability.go
package models

import "time"

type DetailedScores struct {
	ContentMatch        float64 `json:"contentMatch"`
	AudienceRelevance   float64 `json:"audienceRelevance"`
	Timeliness          float64 `json:"timeliness"`
	EngagementPotential float64 `json:"engagementPotential"`
}

// SuitabilityResult is written once per (hotspot, platform, analysis timestamp)
// and never updated afterwards.
type SuitabilityResult struct {
	HotspotID           string         `json:"hotspotId"`
	Platform            string         `json:"platform"`
	AnalysisTimestamp   time.Time      `json:"analysisTimestamp"`
	RunID               string         `json:"runId,omitempty"`
	Title               string         `json:"title"`
	PrimaryCategory     string         `json:"primaryCategory"`
	TotalScore          float64        `json:"totalScore"`
	DetailedScores      DetailedScores `json:"detailedScores"`
	Recommended         bool           `json:"recommended"`
	RecommendedStrategy string         `json:"recommendedStrategy"`
	ContentAngle        string         `json:"contentAngle"`
	Reasons             []string       `json:"reasons"`
	ExtractionDegraded  bool           `json:"extractionDegraded"`
	AnalysisDegraded    bool           `json:"analysisDegraded"`
}

// AnalysisRecord is the persisted per-hotspot analysis that results trace back to.
type AnalysisRecord struct {
	Hotspot          Hotspot          `json:"hotspot"`
	ExtractionStatus ExtractionStatus `json:"extractionStatus"`
	Features         FeatureRecord    `json:"features"`
	Classification   Classification   `json:"classification"`
	AnalyzedAt       time.Time        `json:"analyzedAt"`
	RunID            string           `json:"runId,omitempty"`
}
