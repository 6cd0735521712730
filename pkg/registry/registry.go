// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"hotspot-selection/internal/common/validation"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Save writes the registry as indented JSON, creating the directory if needed.
func (r *ActivityRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Validate checks required fields and duplicate ids, and compiles every input
// schema.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	for i := range r.Activities {
		activity := &r.Activities[i]
		if activity.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[activity.ID] {
			return fmt.Errorf("duplicate activity ID: %s", activity.ID)
		}
		ids[activity.ID] = true

		if activity.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", activity.ID)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("activity %s missing required field: TaskType", activity.ID)
		}
		if activity.Category == "" {
			return fmt.Errorf("activity %s missing required field: Category", activity.ID)
		}
		if _, err := activity.TimeoutDuration(); err != nil {
			return err
		}
		if err := activity.checkErrorCodes(); err != nil {
			return err
		}
		if len(activity.InputSchema) > 0 {
			if _, err := validation.Compile(activity.InputSchema); err != nil {
				return fmt.Errorf("activity %s: input schema: %w", activity.ID, err)
			}
		}
	}
	return nil
}

// InputValidator compiles the input schema of taskType. Activities without a
// schema accept any input.
func (r *ActivityRegistry) InputValidator(taskType string) (*validation.Schema, error) {
	activity, ok := r.Find(taskType)
	if !ok {
		return nil, fmt.Errorf("task type %s not in registry", taskType)
	}
	if len(activity.InputSchema) == 0 {
		return validation.Compile(map[string]interface{}{"type": "object"})
	}
	return validation.Compile(activity.InputSchema)
}

// Missing returns the task types that have no registry entry, in input order.
func (r *ActivityRegistry) Missing(taskTypes []string) []string {
	var missing []string
	for _, tt := range taskTypes {
		if _, ok := r.Find(tt); !ok {
			missing = append(missing, tt)
		}
	}
	return missing
}
