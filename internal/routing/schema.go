package routing

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const configSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["assistant"],
  "additionalProperties": false,
  "properties": {
    "assistant": {"type": "string", "minLength": 1},
    "relations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["queue", "key"],
        "additionalProperties": false,
        "properties": {
          "queue": {"type": "integer", "minimum": 1},
          "key": {"type": "string", "minLength": 1}
        }
      }
    },
    "voice": {"type": "string"},
    "use_delay": {"type": "boolean"},
    "mode": {"type": "string", "enum": ["", "text", "texto", "voice", "audio", "voz", "both", "ambos"]}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

func configSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		schema = jsonschema.MustCompileString("routing-config.json", configSchemaJSON)
	})
	return schema
}
