package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// SubmissionSchema describes the webhook body accepted by the receiver.
// Unknown fields are tolerated; form tools add their own.
const SubmissionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["key", "name", "server", "class", "spec", "covenant", "armory", "logs"],
	"properties": {
		"key":      {"type": "string"},
		"name":     {"type": "string", "minLength": 1, "pattern": "\\S"},
		"server":   {"type": "string"},
		"class":    {"type": "string"},
		"spec":     {"type": "string"},
		"covenant": {"type": "string"},
		"armory":   {"type": "string", "minLength": 1},
		"logs":     {"type": "string"},
		"questions": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["q", "a"],
				"properties": {
					"q": {"type": "string"},
					"a": {"type": "string"}
				}
			}
		}
	},
	"additionalProperties": true
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Fields returns the failing field names, for log lines.
func (r *ValidationResult) Fields() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Field)
	}
	return out
}

// Validator holds a compiled schema and is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

var (
	submissionOnce      sync.Once
	submissionValidator *Validator
	submissionErr       error
)

// SubmissionValidator returns the shared validator for SubmissionSchema.
func SubmissionValidator() (*Validator, error) {
	submissionOnce.Do(func() {
		submissionValidator, submissionErr = NewValidator(SubmissionSchema)
	})
	return submissionValidator, submissionErr
}

// ValidateJSON validates a raw JSON document. A body that is not JSON at
// all is reported as a single INVALID_JSON error.
func (v *Validator) ValidateJSON(body []byte) *ValidationResult {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
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
	return toResult(result)
}

// ValidateInput validates an already decoded document.
func (v *Validator) ValidateInput(input interface{}) *ValidationResult {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_DOCUMENT"}},
		}
	}
	return toResult(result)
}

func toResult(result *gojsonschema.Result) *ValidationResult {
	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		// Missing required properties are reported against the parent.
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok {
				field = joinField(field, prop)
			}
		}
		errs = append(errs, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return &ValidationResult{Valid: result.Valid(), Errors: errs}
}

func joinField(parent, child string) string {
	if parent == "" || parent == "(root)" {
		return child
	}
	return parent + "." + child
}
