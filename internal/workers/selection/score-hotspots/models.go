// internal/workers/selection/score-hotspots/models.go
package scorehotspots

import "hotspot-selection/internal/models"

type Input struct {
	Hotspots  []models.Hotspot `json:"hotspots"`
	Platforms []string         `json:"platforms,omitempty"`
	TopN      int              `json:"topN,omitempty"`
}

type Output struct {
	Results          []models.SuitabilityResult `json:"results"`
	ResultCount      int                        `json:"resultCount"`
	RecommendedCount int                        `json:"recommendedCount"`
	BestPlatform     map[string]string          `json:"bestPlatform"` // hotspot id -> platform
	Failures         map[string]string          `json:"failures"`     // hotspot id -> "Stage: REASON"
	FailedCount      int                        `json:"failedCount"`
}

func GetInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"hotspots"},
		"properties": map[string]interface{}{
			"hotspots": map[string]interface{}{
				"type":     "array",
				"minItems": 1,
				"items": map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"id", "title"},
					"properties": map[string]interface{}{
						"id":       map[string]interface{}{"type": "string", "minLength": 1},
						"title":    map[string]interface{}{"type": "string", "minLength": 1},
						"url":      map[string]interface{}{"type": "string"},
						"hotValue": map[string]interface{}{"type": "number", "minimum": 0},
						"rank":     map[string]interface{}{"type": "integer"},
					},
				},
			},
			"platforms": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string", "minLength": 1},
			},
			"topN": map[string]interface{}{"type": "integer", "minimum": 1},
		},
	}
}
