package llm

import "testing"

func TestSchemaFor(t *testing.T) {
	type payload struct {
		Items []struct {
			Name  string  `json:"name"`
			Score float64 `json:"score"`
		} `json:"items"`
	}

	schema, err := SchemaFor(&payload{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if schema["type"] != "object" {
		t.Errorf("expected object schema, got %v", schema["type"])
	}
	if _, ok := schema["$schema"]; ok {
		t.Error("expected version keyword to be stripped")
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("schema has no properties")
	}
	if _, ok := properties["items"]; !ok {
		t.Error("expected items property in schema")
	}
	if schema["additionalProperties"] != false {
		t.Errorf("expected additionalProperties=false, got %v", schema["additionalProperties"])
	}
}
