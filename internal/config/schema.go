package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "loadsim.schema.json"

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// Schema returns the JSON Schema of the configuration file.
func Schema() string {
	return schemaJSON
}

func configSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("invalid schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}

// ValidateSchema checks a decoded document (as produced by encoding/json)
// against the configuration schema. Violations are returned as
// *ValidationErrors.
func ValidateSchema(doc interface{}) error {
	schema, err := configSchema()
	if err != nil {
		return err
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return err
	}
	errs := &ValidationErrors{}
	extractValidationErrors(validationErr, errs)
	if !errs.HasErrors() {
		errs.Add("", validationErr.Error())
	}
	return errs
}

// extractValidationErrors collects the leaf causes of a schema violation.
func extractValidationErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		errs.Add(instancePath(err.InstanceLocation), err.Message)
		return
	}
	for _, cause := range err.Causes {
		extractValidationErrors(cause, errs)
	}
}

// instancePath turns a JSON pointer into a dotted field path.
func instancePath(pointer string) string {
	p := strings.TrimPrefix(pointer, "/")
	if p == "" {
		return ""
	}
	return strings.ReplaceAll(p, "/", ".")
}
