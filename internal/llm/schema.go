package llm

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects v into a strict JSON schema suitable for a json_schema
// response format. Definitions are inlined and additional properties are
// disallowed throughout.
func SchemaFor(v interface{}) (map[string]interface{}, error) {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}

	schema := reflector.Reflect(v)
	schema.Version = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	return out, nil
}

// MustSchemaFor is SchemaFor for package-level schema construction.
func MustSchemaFor(v interface{}) map[string]interface{} {
	schema, err := SchemaFor(v)
	if err != nil {
		panic(err)
	}
	return schema
}
