package validate

// Outcome is the result of running all validation layers over one model
// output. ErrorKind is empty when every layer passed.
type Outcome struct {
	Value        any                `json:"value,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	SchemaIssues []Issue            `json:"schema_issues,omitempty"`
	Consistency  *ConsistencyResult `json:"consistency,omitempty"`
}

// Valid reports whether all layers passed.
func (o Outcome) Valid() bool {
	return o.ErrorKind == ""
}

// Validator chains the layers in order: JSON extraction, schema validation,
// consistency checks. The first failing layer determines the outcome's
// error kind. Schema and consistency layers are optional.
type Validator struct {
	schema      *SchemaValidator
	consistency *ConsistencyChecker
}

// NewValidator creates a validator. Either layer may be nil to skip it.
func NewValidator(schema *SchemaValidator, consistency *ConsistencyChecker) *Validator {
	return &Validator{schema: schema, consistency: consistency}
}

// WithSchema returns a copy of the validator that uses the given schema
// layer, keeping the consistency layer. Safe on a nil receiver.
func (v *Validator) WithSchema(schema *SchemaValidator) *Validator {
	if v == nil {
		return NewValidator(schema, nil)
	}
	return &Validator{schema: schema, consistency: v.consistency}
}

// Validate runs the layers over raw model output. contextText, entities and
// keywords feed the consistency layer.
func (v *Validator) Validate(output, contextText string, requiredEntities, keywords []string) Outcome {
	value, kind := Extract(output)
	if kind != "" {
		return Outcome{ErrorKind: kind}
	}
	outcome := Outcome{Value: value}

	if v.schema != nil {
		result := v.schema.Validate(value)
		if !result.Valid {
			outcome.SchemaIssues = result.Issues
			outcome.ErrorKind = schemaErrorKind(result.Issues)
			return outcome
		}
	}

	if v.consistency != nil {
		result := v.consistency.Check(contextText, requiredEntities, keywords)
		outcome.Consistency = &result
		if !result.Passed {
			outcome.ErrorKind = KindConsistencyFailed
			return outcome
		}
	}

	return outcome
}

// schemaErrorKind picks the kind that feeds the fallback policy: the first
// specifically classified issue, else the generic schema failure.
func schemaErrorKind(issues []Issue) string {
	for _, issue := range issues {
		switch issue.IssueType {
		case KindMissingField, KindTypeMismatch, KindEnumMismatch:
			return issue.IssueType
		}
	}
	return KindSchemaFailure
}
