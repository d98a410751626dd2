package architect

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// responseSchema is the JSON Schema the generator output must satisfy. It is
// embedded verbatim in prompts as a guardrail and enforced strictly on the
// backend: validation is schema-first, never duck-typed field probing.
const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "oneOf": [
    {
      "type": "object",
      "properties": {
        "mode": {"const": "questions"},
        "questions": {
          "type": "array",
          "minItems": 1,
          "maxItems": 4,
          "items": {
            "type": "object",
            "properties": {
              "id": {"type": "string", "minLength": 1, "maxLength": 64},
              "question": {"type": "string", "minLength": 1, "maxLength": 400},
              "options": {
                "type": "array",
                "maxItems": 12,
                "items": {
                  "type": "object",
                  "properties": {
                    "id": {"type": "string", "minLength": 1, "maxLength": 64},
                    "label": {"type": "string", "minLength": 1, "maxLength": 120}
                  },
                  "required": ["id", "label"],
                  "additionalProperties": false
                }
              }
            },
            "required": ["id", "question"],
            "additionalProperties": false
          }
        }
      },
      "required": ["mode", "questions"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "properties": {
        "mode": {"const": "done"},
        "skeleton": {
          "type": "object",
          "properties": {
            "game_prompt": {"type": "string", "minLength": 200, "maxLength": 4000},
            "world_bible": {"type": "string", "minLength": 2000, "maxLength": 20000},
            "global_conflict": {"type": ["string", "null"], "maxLength": 6000}
          },
          "required": ["game_prompt", "world_bible"],
          "additionalProperties": false
        }
      },
      "required": ["mode", "skeleton"],
      "additionalProperties": false
    }
  ]
}`

// compiledSchema validates decoded generator output. Compiled once at package
// initialization; the schema is a constant so compilation cannot fail at
// runtime.
var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(responseSchema))
	if err != nil {
		panic(fmt.Sprintf("architect: unmarshal response schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("architect-response.json", doc); err != nil {
		panic(fmt.Sprintf("architect: add schema resource: %v", err))
	}
	schema, err := c.Compile("architect-response.json")
	if err != nil {
		panic(fmt.Sprintf("architect: compile schema: %v", err))
	}
	return schema
}

// extractJSON cuts the first top-level JSON object out of raw generator text,
// discarding anything before the first "{" and after the last "}".
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
