package patterns

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// tableSchema describes the only accepted shape: an object whose values are
// non-empty arrays of strings. Pattern strings are not checked here.
const tableSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "array",
    "minItems": 1,
    "items": {"type": "string"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("patterns.schema.json", tableSchema)

// validateShape checks a decoded document (json.Unmarshal into any) against tableSchema.
func validateShape(v any) error {
	return compiledSchema.Validate(v)
}
