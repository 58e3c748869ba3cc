package normalize

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"firecost/internal/models"
)

// analysisSchema describes the canonical analysis JSON.
const analysisSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["vendors", "materials", "estimationElements", "projectDetails", "recommendations", "complianceRequirements", "estimatedBudget", "fallbackUsed"],
  "properties": {
    "vendors": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "confidence", "description", "specialties", "source"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "description": {"type": "string"},
          "specialties": {"type": "array", "items": {"type": "string"}},
          "source": {"type": "string"}
        }
      }
    },
    "materials": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "quantity", "unit"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "quantity": {"type": "integer", "minimum": 1},
          "unit": {"type": "string"}
        }
      }
    },
    "estimationElements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["code", "description", "qty", "specSummary", "unitPrice", "vendor", "category", "placement", "compliance", "confidence"],
        "properties": {
          "code": {"type": "string", "minLength": 1},
          "qty": {"type": "integer", "minimum": 1},
          "unitPrice": {"type": "number", "minimum": 0},
          "compliance": {"type": "array", "items": {"type": "string"}},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "projectDetails": {
      "type": "object",
      "required": ["type", "scope", "requirements", "timeline"],
      "properties": {
        "requirements": {"type": "array", "items": {"type": "string"}}
      }
    },
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "complianceRequirements": {"type": "array", "items": {"type": "string"}},
    "estimatedBudget": {"type": "number", "minimum": 0},
    "fallbackUsed": {"type": "boolean"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func canonicalSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("analysis.json", analysisSchema)
	})
	return compiledSchema, schemaErr
}

// Validate checks an analysis against the canonical JSON schema.
func Validate(a models.Analysis) error {
	schema, err := canonicalSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal analysis: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("analysis does not match schema: %w", err)
	}
	return nil
}
