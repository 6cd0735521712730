// internal/workers/data-access/query-suitability/models.go
package querysuitability

import (
	"hotspot-selection/internal/models"
	"hotspot-selection/internal/pipeline/storage"
)

type Input struct {
	QueryType       string  `json:"queryType"`
	Platform        string  `json:"platform,omitempty"`
	Category        string  `json:"category,omitempty"`
	HotspotID       string  `json:"hotspotId,omitempty"`
	StartDate       string  `json:"startDate,omitempty"` // YYYY-MM-DD or RFC 3339
	EndDate         string  `json:"endDate,omitempty"`
	RecommendedOnly bool    `json:"recommendedOnly,omitempty"`
	MinScore        float64 `json:"minScore,omitempty"`
	Size            int     `json:"size,omitempty"`
}

type Output struct {
	QueryType  string                     `json:"queryType"`
	Results    []models.SuitabilityResult `json:"results"`
	Categories []storage.CategoryStat     `json:"categories,omitempty"`
	Analysis   *models.AnalysisRecord     `json:"analysis,omitempty"`
	TotalHits  int64                      `json:"totalHits"`
	Took       int64                      `json:"took"` // milliseconds
}
