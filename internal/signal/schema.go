package signal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rawSchema is the structural contract for inbound signal documents. Field
// sanity beyond structure (price relationships, liquidation safety) is the
// validator's job.
const rawSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["symbol", "direction", "entry"],
  "properties": {
    "symbol":    {"type": "string", "minLength": 1},
    "direction": {"type": "string", "enum": ["long", "short", "LONG", "SHORT"]},
    "entry":     {"type": "number", "exclusiveMinimum": 0},
    "stop_loss": {"type": "number", "exclusiveMinimum": 0},
    "targets":   {"type": "array", "items": {"type": "number", "exclusiveMinimum": 0}},
    "leverage":  {"type": "integer", "minimum": 1, "maximum": 125}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func signalSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("signal.json", strings.NewReader(rawSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("signal.json")
	})
	return compiledSchema, schemaErr
}

// validateSchema checks a decoded signal document against the structural
// schema.
func validateSchema(doc any) error {
	schema, err := signalSchema()
	if err != nil {
		return fmt.Errorf("signal schema unavailable: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("signal document invalid: %w", err)
	}
	return nil
}
