// internal/workers/communication/notify-batch-summary/models.go
package notifybatchsummary

import "hotspot-selection/internal/models"

type Input struct {
	BatchSummary *models.BatchSummary `json:"batchSummary"`
	// Recipients replaces the configured e-mail recipients for this job.
	Recipients []string `json:"recipients,omitempty"`
}

type Output struct {
	Notified       bool     `json:"notified"`
	Channels       []string `json:"channels"`
	SNSMessageID   string   `json:"snsMessageId,omitempty"`
	EmailMessageID string   `json:"emailMessageId,omitempty"`
}

const (
	ChannelSNS   = "sns"
	ChannelEmail = "email"
)

func GetInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"batchSummary"},
		"properties": map[string]interface{}{
			"batchSummary": map[string]interface{}{
				"type":     "object",
				"required": []string{"runId", "state"},
				"properties": map[string]interface{}{
					"runId": map[string]interface{}{"type": "string", "minLength": 1},
					"state": map[string]interface{}{
						"type": "string",
						"enum": []string{"Done", "PartiallyFailed", "Failed"},
					},
					"total": map[string]interface{}{"type": "integer", "minimum": 0},
				},
			},
			"recipients": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":   "string",
					"format": "email",
				},
			},
		},
	}
}
