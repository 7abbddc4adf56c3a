package analysis

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const responseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["response"],
  "properties": {
    "response": {"type": "string"},
    "knowledge_update": {
      "type": ["object", "null"],
      "properties": {
        "business_understanding": {"type": "array", "items": {"type": "string"}},
        "objectives": {"type": "array", "items": {"type": "string"}},
        "constraints": {"type": "array", "items": {"type": "string"}},
        "summary": {"type": "string"}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("kyb-analysis-response.json", responseSchema)

func validate(doc any) error {
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
