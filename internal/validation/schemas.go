package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Request schema names.
const (
	ExplainRequest   = "explain-request"
	RecommendRequest = "recommend-request"
	SummaryRequest   = "summary-request"
	LocateRequest    = "locate-request"
)

//go:embed schemas/*.json
var embedded embed.FS

// SchemaValidator handles JSON schema validation for API requests
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaValidator compiles the embedded request schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
	if err := sv.LoadSchemaFromFS(embedded, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

// LoadSchemaFromFS compiles every *.json file in schemaDir. The schema name
// is the file name without extension.
func (sv *SchemaValidator) LoadSchemaFromFS(fsys fs.FS, schemaDir string) error {
	entries, err := fs.ReadDir(fsys, schemaDir)
	if err != nil {
		return fmt.Errorf("failed to read schema directory %s: %w", schemaDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		schemaPath := path.Join(schemaDir, entry.Name())

		schemaBytes, err := fs.ReadFile(fsys, schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", schemaPath, err)
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return fmt.Errorf("failed to load schema %s: %w", name, err)
		}

		sv.schemas[name] = schema
	}

	return nil
}

// validate performs the actual validation against a named schema
func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return &ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Field:   "data",
					Message: fmt.Sprintf("Failed to marshal data to JSON: %v", err),
					Code:    "JSON_MARSHAL_ERROR",
				}},
			}
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "validation",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}

	for _, err := range result.Errors() {
		validationResult.Errors = append(validationResult.Errors, ValidationError{
			Field:   err.Field(),
			Message: err.Description(),
			Code:    "VALIDATION_ERROR",
			Value:   err.Value(),
			Context: err.Context().String(),
		})
	}

	return validationResult
}

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
	Context string      `json:"context,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// ToAPIError converts validation errors to the API error envelope.
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	errorDetails := make(map[string]interface{})
	errorDetails["validationErrors"] = vr.Errors

	// Extract field-specific errors for easier client handling
	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	if len(fieldErrors) > 0 {
		errorDetails["fieldErrors"] = fieldErrors
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": errorDetails,
		},
	}
}

// ValidateJSON validates a raw JSON document against a schema
func (sv *SchemaValidator) ValidateJSON(schemaName string, body []byte) *ValidationResult {
	return sv.validate(schemaName, body)
}

// ValidateStruct validates a Go value against a schema
func (sv *SchemaValidator) ValidateStruct(schemaName string, data interface{}) *ValidationResult {
	return sv.validate(schemaName, data)
}

// GetAvailableSchemas returns the loaded schema names, sorted.
func (sv *SchemaValidator) GetAvailableSchemas() []string {
	schemas := make([]string, 0, len(sv.schemas))
	for name := range sv.schemas {
		schemas = append(schemas, name)
	}
	sort.Strings(schemas)
	return schemas
}

func (sv *SchemaValidator) SchemaExists(name string) bool {
	_, exists := sv.schemas[name]
	return exists
}
