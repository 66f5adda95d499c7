package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAllLayersPass(t *testing.T) {
	schema := mustValidator(t, personSchema)
	v := NewValidator(schema, NewConsistencyChecker())

	outcome := v.Validate(
		"```json\n{\"name\": \"Acme\", \"age\": 12}\n```",
		"Acme was founded 12 years ago",
		[]string{"Acme"},
		[]string{"founded"},
	)

	assert.True(t, outcome.Valid())
	assert.NotNil(t, outcome.Value)
	require.NotNil(t, outcome.Consistency)
	assert.True(t, outcome.Consistency.Passed)
}

func TestValidatorExtractionFailureShortCircuits(t *testing.T) {
	v := NewValidator(mustValidator(t, personSchema), NewConsistencyChecker())

	outcome := v.Validate("no structured output here", "ctx", nil, nil)

	assert.Equal(t, KindNoJSONCandidate, outcome.ErrorKind)
	assert.Nil(t, outcome.Value)
	assert.Nil(t, outcome.Consistency)
}

func TestValidatorSchemaFailureKind(t *testing.T) {
	v := NewValidator(mustValidator(t, personSchema), nil)

	outcome := v.Validate(`{"name": "x"}`, "", nil, nil)

	assert.Equal(t, KindMissingField, outcome.ErrorKind)
	assert.NotEmpty(t, outcome.SchemaIssues)
}

func TestValidatorConsistencyFailureKind(t *testing.T) {
	v := NewValidator(nil, NewConsistencyChecker())

	outcome := v.Validate(`{"entity": "ghost"}`, "totally unrelated text", []string{"ghost corp"}, nil)

	assert.Equal(t, KindConsistencyFailed, outcome.ErrorKind)
	require.NotNil(t, outcome.Consistency)
	assert.False(t, outcome.Consistency.Passed)
}

func TestValidatorNilLayersSkip(t *testing.T) {
	v := NewValidator(nil, nil)
	outcome := v.Validate(`{"free": "form"}`, "", nil, nil)
	assert.True(t, outcome.Valid())
}
