package results

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema_v1.json
var schemaV1 string

const schemaURL = "job-result-v1.json"

var (
	compiledOnce sync.Once
	compiled     *jsonschema.Schema
	compileErr   error
)

// Schema returns the JSON Schema text for the current version.
func Schema() string {
	return schemaV1
}

func schema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaV1)); err != nil {
			compileErr = fmt.Errorf("add result schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile result schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Validate checks a serialized document against the result schema.
func Validate(data []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("result does not match schema v%d: %w", SchemaVersion, err)
	}
	return nil
}
