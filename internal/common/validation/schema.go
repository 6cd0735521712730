// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins all field errors into one line.
func (r *ValidationResult) Error() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Schema is a compiled JSON schema, safe for concurrent use.
type Schema struct {
	schema *gojsonschema.Schema
}

// Compile builds a Schema from a Go value (usually map[string]interface{}).
func Compile(schema interface{}) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// CompileJSON builds a Schema from JSON text.
func CompileJSON(schema string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// Validate checks doc against the schema. doc must be JSON-shaped
// (maps, slices, strings, numbers, bools).
func (s *Schema) Validate(doc interface{}) *ValidationResult {
	res, err := s.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "INVALID_DOCUMENT",
			}},
		}
	}
	return toResult(res)
}

// ValidateJSON checks raw JSON text against the schema.
func (s *Schema) ValidateJSON(doc string) *ValidationResult {
	res, err := s.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "INVALID_JSON",
			}},
		}
	}
	return toResult(res)
}

func toResult(res *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: res.Valid()}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out
}

// ValidateInput compiles schema and validates input in one step.
func ValidateInput(input map[string]interface{}, schema map[string]interface{}) *ValidationResult {
	s, err := Compile(schema)
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(schema)", Message: err.Error(), Code: "INVALID_SCHEMA"}},
		}
	}
	return s.Validate(input)
}
