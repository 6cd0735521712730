// internal/workers/selection/analyze-hotspot/models.go
package analyzehotspot

import "hotspot-selection/internal/pipeline"

type Input struct {
	HotspotID string   `json:"hotspotId"`
	Platforms []string `json:"platforms,omitempty"`
}

type Output struct {
	Analysis     *pipeline.HotspotAnalysis `json:"analysis"`
	Category     string                    `json:"category"`
	BestPlatform string                    `json:"bestPlatform,omitempty"`
	BestScore    float64                   `json:"bestScore"`
	Recommended  bool                      `json:"recommended"`
}

func GetInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"hotspotId"},
		"properties": map[string]interface{}{
			"hotspotId": map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 128},
			"platforms": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string", "minLength": 1},
			},
		},
	}
}
