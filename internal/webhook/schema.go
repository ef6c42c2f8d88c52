package webhook

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"objection-engine/internal/common/errors"
)

// envelopeSchema validates the outer CRM event shape before any
// decoding. Event-specific payload requirements are expressed as
// conditional branches so a submission event without a submission block
// fails here, not deep in reconciliation.
const envelopeSchema = `{
	"type": "object",
	"required": ["eventId", "eventType", "occurredAt"],
	"properties": {
		"eventId":    {"type": "string", "minLength": 1},
		"eventType":  {"type": "string", "minLength": 1},
		"occurredAt": {"type": "string", "format": "date-time"},
		"person": {
			"type": "object",
			"required": ["email"],
			"properties": {
				"email":     {"type": "string", "minLength": 3},
				"firstName": {"type": "string"},
				"lastName":  {"type": "string"},
				"crmId":     {"type": "string"}
			}
		},
		"submission": {
			"type": "object",
			"required": ["submissionId"],
			"properties": {
				"submissionId": {"type": "string", "minLength": 1},
				"crmId":        {"type": "string"},
				"error":        {"type": "string"}
			}
		}
	},
	"allOf": [
		{
			"if": {"properties": {"eventType": {"const": "person.updated"}}},
			"then": {"required": ["person"]}
		},
		{
			"if": {"properties": {"eventType": {"const": "submission.synced"}}},
			"then": {"required": ["submission"]}
		},
		{
			"if": {"properties": {"eventType": {"const": "submission.errored"}}},
			"then": {"required": ["submission"]}
		}
	]
}`

var compiledSchema = gojsonschema.NewStringLoader(envelopeSchema)

// validateEnvelope runs the schema against the raw body and converts
// failures into field-level validation issues.
func validateEnvelope(body []byte) error {
	result, err := gojsonschema.Validate(compiledSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errors.NewFieldValidationError("body", fmt.Sprintf("payload is not valid JSON: %v", err))
	}
	if result.Valid() {
		return nil
	}

	issues := make([]errors.Issue, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, errors.Issue{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    "SCHEMA_VIOLATION",
		})
	}
	return errors.NewValidationError("webhook payload failed schema validation", issues)
}
