package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Issue is one schema violation, located by a dot-joined path. The root path
// renders as the empty string.
type Issue struct {
	Path      string `json:"path"`
	IssueType string `json:"issue_type"`
	Message   string `json:"message,omitempty"`
}

// SchemaResult reports schema validation. Valid iff zero issues.
type SchemaResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// SchemaValidator validates decoded JSON values against a draft-07 schema
// and classifies each violation by its failing keyword.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the schema document.
func NewSchemaValidator(schemaJSON string) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate checks a decoded JSON value. Non-schema errors (for example a
// value the validator cannot walk) surface as a single validation_error
// issue at the root.
func (v *SchemaValidator) Validate(value any) SchemaResult {
	err := v.schema.Validate(value)
	if err == nil {
		return SchemaResult{Valid: true}
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return SchemaResult{
			Issues: []Issue{{IssueType: KindValidationError, Message: err.Error()}},
		}
	}

	issues := collectIssues(ve, nil)
	return SchemaResult{Valid: len(issues) == 0, Issues: issues}
}

// collectIssues walks to the leaf causes, which carry the concrete failing
// keywords.
func collectIssues(ve *jsonschema.ValidationError, issues []Issue) []Issue {
	if len(ve.Causes) == 0 {
		issues = append(issues, Issue{
			Path:      dotPath(ve.InstanceLocation),
			IssueType: classifyKeyword(ve.KeywordLocation),
			Message:   ve.Message,
		})
		return issues
	}
	for _, cause := range ve.Causes {
		issues = collectIssues(cause, issues)
	}
	return issues
}

// dotPath converts a JSON pointer to a dot-joined path, "" at the root.
func dotPath(pointer string) string {
	trimmed := strings.TrimPrefix(pointer, "/")
	if trimmed == "" {
		return ""
	}
	segments := strings.Split(trimmed, "/")
	for i, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		segments[i] = strings.ReplaceAll(seg, "~0", "~")
	}
	return strings.Join(segments, ".")
}

// classifyKeyword maps the failing schema keyword to an error kind.
func classifyKeyword(keywordLocation string) string {
	segments := strings.Split(keywordLocation, "/")
	keyword := ""
	if len(segments) > 0 {
		keyword = segments[len(segments)-1]
	}
	switch keyword {
	case "required":
		return KindMissingField
	case "type":
		return KindTypeMismatch
	case "enum":
		return KindEnumMismatch
	default:
		return KindValidationError
	}
}
