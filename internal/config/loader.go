package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// scenarioSchema is the JSON Schema every scenario file must satisfy before
// the typed validator sees it. Catching shape errors here gives much better
// messages than a failed unmarshal.
const scenarioSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "name": {"type": "string"},
    "thinkTimeMs": {
      "type": "array",
      "items": {"type": "integer", "minimum": 0},
      "minItems": 2,
      "maxItems": 2
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["path"],
        "properties": {
          "name": {"type": "string"},
          "method": {"type": "string"},
          "path": {"type": "string"},
          "headers": {"type": "object", "additionalProperties": {"type": "string"}},
          "body": {"type": "string"},
          "extract": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "source"],
              "properties": {
                "name": {"type": "string"},
                "source": {"type": "string", "enum": ["body", "header", "status"]},
                "path": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledScenarioSchema = jsonschema.MustCompileString("scenario.json", scenarioSchema)

// LoadScenario reads a scenario definition from a YAML or JSON file.
//
// The file is validated against the embedded schema, then unmarshalled into
// the typed Scenario. TestConfig.Validate performs the semantic checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	jsonData, err := toJSON(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	if err := compiledScenarioSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("scenario file %s is not valid: %w", path, err)
	}

	var scenario Scenario
	if err := json.Unmarshal(jsonData, &scenario); err != nil {
		return nil, fmt.Errorf("failed to decode scenario file %s: %w", path, err)
	}
	return &scenario, nil
}

// toJSON normalizes YAML input to JSON so a single schema covers both formats.
func toJSON(data []byte, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return data, nil
	case ".yaml", ".yml", "":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported scenario file extension %q", ext)
	}
}
