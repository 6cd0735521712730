// pkg/registry/activity.go
package registry

import (
	"fmt"
	"time"

	"hotspot-selection/internal/common/errors"
)

// ActivityRegistry is the catalogue of task types the worker manager serves,
// stored as configs/activity-registry.json.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

type Activity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Version     string `json:"version"`
	TaskType    string `json:"taskType"`
	Status      string `json:"implementationStatus"`

	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`

	// ErrorCodes lists the BPMN error codes the process model must catch.
	ErrorCodes []string `json:"errorCodes"`
	Timeout    string   `json:"timeout"`
	Retries    int      `json:"retries"`
	Workflows  []string `json:"workflows"`
	Tags       []string `json:"tags"`
}

// TimeoutDuration parses Timeout; an empty value means no activity-level limit.
func (a *Activity) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, fmt.Errorf("activity %s: timeout %q: %w", a.ID, a.Timeout, err)
	}
	return d, nil
}

// checkErrorCodes rejects codes the workers can never throw.
func (a *Activity) checkErrorCodes() error {
	known := map[string]bool{string(errors.ErrCodeInternal): true}
	for _, bpmn := range errors.BPMNErrorMapping {
		known[bpmn] = true
	}
	for _, code := range a.ErrorCodes {
		if !known[code] {
			return fmt.Errorf("activity %s: unknown error code %s", a.ID, code)
		}
	}
	return nil
}
