package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// runConfigSchema describes the shape of a run file. Semantic rules
// (positive values, threshold syntax) are left to Validate.
const runConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "duration": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {"type": "number", "minimum": 0}
      ]
    },
    "expressions": {
      "type": "array",
      "items": {"type": "string"}
    }
  },
  "properties": {
    "target": {"type": "string"},
    "endpoints": {
      "type": "array",
      "items": {"type": "string"}
    },
    "concurrency": {"type": "integer"},
    "duration": {"$ref": "#/definitions/duration"},
    "timeout": {"$ref": "#/definitions/duration"},
    "probe": {"type": "string"},
    "keepAlive": {"type": "boolean"},
    "maxRate": {"type": "number"},
    "anomaly": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "slowResponse": {"$ref": "#/definitions/duration"},
        "failureBurst": {"type": "integer"}
      }
    },
    "health": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "path", "fields"],
        "properties": {
          "name": {"type": "string"},
          "path": {"type": "string"},
          "fields": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          }
        }
      }
    },
    "thresholds": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "latency": {"$ref": "#/definitions/expressions"},
        "failures": {"$ref": "#/definitions/expressions"},
        "requests": {"$ref": "#/definitions/expressions"}
      }
    }
  }
}`

var (
	compiledSchema *jsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

func runSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("run-config.json", strings.NewReader(runConfigSchema)); err != nil {
			schemaErr = fmt.Errorf("invalid schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("run-config.json")
	})
	return compiledSchema, schemaErr
}

// validateDocument checks a decoded document against the run file schema.
// The document is round-tripped through JSON so that YAML scalars get the
// number representation the schema validator expects.
func validateDocument(doc interface{}) error {
	schema, err := runSchema()
	if err != nil {
		return err
	}

	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode config document: %w", err)
	}
	var normalized interface{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("failed to decode config document: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return &SchemaError{cause: err}
	}
	return nil
}

// SchemaError reports a run file that does not match the expected shape.
type SchemaError struct {
	cause error
}

func (e *SchemaError) Error() string {
	var verr *jsonschema.ValidationError
	if errors.As(e.cause, &verr) {
		var msgs []string
		for _, leaf := range leaves(verr) {
			loc := leaf.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, fmt.Sprintf("%s: %s", loc, leaf.Message))
		}
		return "config does not match schema: " + strings.Join(msgs, "; ")
	}
	return "config does not match schema: " + e.cause.Error()
}

func (e *SchemaError) Unwrap() error {
	return e.cause
}

// leaves returns the innermost causes, which carry the useful messages.
func leaves(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var out []*jsonschema.ValidationError
	for _, c := range err.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}
