// internal/models/content.go
package models

import "time"

type ExtractionStatus string

const (
	ExtractionOK      ExtractionStatus = "ok"
	ExtractionPartial ExtractionStatus = "partial"
	ExtractionFailed  ExtractionStatus = "failed"
)

// ExtractedContent is the normalized article behind a hotspot URL.
// A failed extraction still carries a well-formed value with an empty body.
type ExtractedContent struct {
	URL         string           `json:"url"`
	Title       string           `json:"title,omitempty"`
	BodyText    string           `json:"bodyText"`
	Summary     string           `json:"summary,omitempty"`
	Author      string           `json:"author,omitempty"`
	Site        string           `json:"site,omitempty"`
	Strategy    string           `json:"strategy,omitempty"`
	ExtractedAt time.Time        `json:"extractedAt"`
	Status      ExtractionStatus `json:"extractionStatus"`
	Error       string           `json:"error,omitempty"`
}

func (c *ExtractedContent) Failed() bool {
	return c == nil || c.Status == ExtractionFailed
}
