package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	schemacheck "github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"
)

// ErrSchemaViolation is returned by ValidateFile when the file does not match
// the configuration schema.
var ErrSchemaViolation = errors.New("configuration does not match schema")

// Schema returns the JSON schema of the configuration file. Every key is
// optional and unknown keys are rejected.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		Mapper:                     durationSchema,
	}

	schema := reflector.Reflect(&Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "Lockstep Configuration"
	schema.Description = "Configuration schema for the lockstep coordinator"
	return schema
}

// SchemaJSON returns Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}

// durationSchema accepts both forms the loader decodes: Go duration strings
// and integer milliseconds.
func durationSchema(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{
		Description: `Duration such as "1500ms" or "2s"; integers are milliseconds`,
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "integer"},
		},
	}
}

// ValidateFile checks the YAML file at path against Schema. Unlike Load, it
// reports misspelled keys, which viper would otherwise ignore.
func ValidateFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert config to JSON: %w", err)
	}

	schemaJSON, err := SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}
	schema, err := schemacheck.NewCompiler().Compile(schemaJSON)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}

	paths := make([]string, 0, len(result.Errors))
	for p := range result.Errors {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	msgs := make([]string, 0, len(paths))
	for _, p := range paths {
		msgs = append(msgs, fmt.Sprintf("%s: %v", p, result.Errors[p]))
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
}
