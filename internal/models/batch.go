// internal/models/batch.go
package models

import "time"

type BatchState string

const (
	BatchLoading         BatchState = "Loading"
	BatchExtracting      BatchState = "Extracting"
	BatchAnalyzing       BatchState = "Analyzing"
	BatchClassifying     BatchState = "Classifying"
	BatchScoring         BatchState = "Scoring"
	BatchStoring         BatchState = "Storing"
	BatchDone            BatchState = "Done"
	BatchPartiallyFailed BatchState = "PartiallyFailed"
	BatchFailed          BatchState = "Failed"
)

func (s BatchState) Terminal() bool {
	return s == BatchDone || s == BatchPartiallyFailed || s == BatchFailed
}

// Item outcomes, ordered from worst to best.
const (
	OutcomeFailed             = "failed"
	OutcomeAnalysisDegraded   = "analysis_degraded"
	OutcomeExtractionDegraded = "extraction_degraded"
	OutcomeOK                 = "ok"
)

type StageCounts struct {
	Succeeded int `json:"succeeded"`
	Degraded  int `json:"degraded"`
	Failed    int `json:"failed"`
}

// BatchSummary is returned for every batch, including partially failed ones.
type BatchSummary struct {
	RunID              string                 `json:"runId"`
	State              BatchState             `json:"state"`
	FailedStage        string                 `json:"failedStage,omitempty"`
	Total              int                    `json:"total"`
	OK                 int                    `json:"ok"`
	ExtractionDegraded int                    `json:"extractionDegraded"`
	AnalysisDegraded   int                    `json:"analysisDegraded"`
	Failed             int                    `json:"failed"`
	Stages             map[string]StageCounts `json:"stages"`
	ResultsStored      map[string]int         `json:"resultsStored"`
	ItemFailures       map[string]string      `json:"itemFailures,omitempty"`
	Recommended        []RecommendedItem      `json:"recommended,omitempty"`
	StartedAt          time.Time              `json:"startedAt"`
	FinishedAt         time.Time              `json:"finishedAt"`
}

// RecommendedItem is a compact view of one recommended pair, used by notifications.
type RecommendedItem struct {
	HotspotID  string  `json:"hotspotId"`
	Title      string  `json:"title"`
	Platform   string  `json:"platform"`
	TotalScore float64 `json:"totalScore"`
	Strategy   string  `json:"strategy"`
}
