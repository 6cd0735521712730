// internal/workers/selection/analyze-hotspot-batch/models.go
package analyzehotspotbatch

import "hotspot-selection/internal/models"

const dateLayout = "2006-01-02"

type Input struct {
	RunID     string   `json:"runId,omitempty"`
	Date      string   `json:"date,omitempty"`
	StartDate string   `json:"startDate,omitempty"`
	EndDate   string   `json:"endDate,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

type Output struct {
	BatchSummary     *models.BatchSummary `json:"batchSummary"`
	BatchState       string               `json:"batchState"`
	RecommendedCount int                  `json:"recommendedCount"`
	HasFailures      bool                 `json:"hasFailures"`
}

func GetInputSchema() map[string]interface{} {
	date := map[string]interface{}{
		"type":    "string",
		"pattern": `^\d{4}-\d{2}-\d{2}$`,
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"runId":     map[string]interface{}{"type": "string", "maxLength": 64},
			"date":      date,
			"startDate": date,
			"endDate":   date,
			"limit":     map[string]interface{}{"type": "integer", "minimum": 1},
			"platforms": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string", "minLength": 1},
			},
		},
	}
}
