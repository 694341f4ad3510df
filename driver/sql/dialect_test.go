package sql

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/metadata"
)

// fakeDialect is a minimal stand-in for postgres.Dialect that matchConditions
// can be exercised against without importing driver/sql/postgres, which
// would create an import cycle (postgres imports this package).
type fakeDialect struct{}

func (fakeDialect) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (fakeDialect) Placeholder(n int) string            { return "$" + strconv.Itoa(n) }
func (fakeDialect) MetadataExpression(field string) string {
	return "metadata->>'" + field + "'"
}
func (fakeDialect) BoolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
func (fakeDialect) RegexOperator() string          { return "~" }
func (fakeDialect) ValidateRegex(string) error      { return nil }
func (fakeDialect) IndexHint(string) string         { return "" }
func (fakeDialect) ClassifyError(err error) error   { return err }
func (fakeDialect) IsUnknownColumnError(error) bool { return false }
func (fakeDialect) CreatedAtLayout() string         { return "2006-01-02 15:04:05.999999" }

type fakeStrategy struct {
	indexed map[string]string
}

func (fakeStrategy) CreateSchema(string) []string                            { return nil }
func (fakeStrategy) ColumnNames() []string                                   { return nil }
func (fakeStrategy) PrepareData([]eventstore.Message) ([]interface{}, error) { return nil, nil }
func (fakeStrategy) GenerateTableName(eventstore.StreamName) (string, error) { return "_stream", nil }
func (f fakeStrategy) IndexedMetadataFields() map[string]string              { return f.indexed }

func TestMatchConditionsNilMatcherIsNoop(t *testing.T) {
	conditions, params := matchConditions(fakeDialect{}, fakeStrategy{}, nil, 0)
	assert.Nil(t, conditions)
	assert.Nil(t, params)
}

func TestMatchConditionsEqualsUsesMetadataExpression(t *testing.T) {
	m := metadata.WithConstraint(metadata.NewMatcher(), "type", metadata.Equals, "deposit")

	conditions, params := matchConditions(fakeDialect{}, fakeStrategy{}, m, 0)

	require.Len(t, conditions, 1)
	assert.Equal(t, `metadata->>'type' = $1`, conditions[0])
	assert.Equal(t, []interface{}{"deposit"}, params)
}

func TestMatchConditionsBoolIsInlinedNotParameterized(t *testing.T) {
	m := metadata.WithConstraint(metadata.NewMatcher(), "archived", metadata.Equals, true)

	conditions, params := matchConditions(fakeDialect{}, fakeStrategy{}, m, 0)

	require.Len(t, conditions, 1)
	assert.Equal(t, `metadata->>'archived' = true`, conditions[0])
	assert.Empty(t, params, "boolean constraints must never consume a bind parameter")
}

func TestMatchConditionsInExpandsPlaceholders(t *testing.T) {
	m := metadata.WithConstraint(metadata.NewMatcher(), "tag", metadata.In, []interface{}{"a", "b"})

	conditions, params := matchConditions(fakeDialect{}, fakeStrategy{}, m, 0)

	require.Len(t, conditions, 1)
	assert.Equal(t, `metadata->>'tag' IN ($1, $2)`, conditions[0])
	assert.Equal(t, []interface{}{"a", "b"}, params)
}

func TestMatchConditionsParamOffsetContinuesNumbering(t *testing.T) {
	m := metadata.WithConstraint(metadata.NewMatcher(), "type", metadata.Equals, "x")

	conditions, _ := matchConditions(fakeDialect{}, fakeStrategy{}, m, 2)

	require.Len(t, conditions, 1)
	assert.Equal(t, `metadata->>'type' = $3`, conditions[0])
}

func TestMatchConditionsRewritesIndexedMetadataField(t *testing.T) {
	m := metadata.WithConstraint(metadata.NewMatcher(), "_aggregate_type", metadata.Equals, "account")
	strategy := fakeStrategy{indexed: map[string]string{"_aggregate_type": "aggregate_type"}}

	conditions, _ := matchConditions(fakeDialect{}, strategy, m, 0)

	require.Len(t, conditions, 1)
	assert.Equal(t, `"aggregate_type" = $1`, conditions[0], "an indexed field must be queried via its projected column, not JSON extraction")
}

func TestMatchConditionsRegexUsesRegexOperator(t *testing.T) {
	m := metadata.WithConstraint(metadata.NewMatcher(), "type", metadata.Regex, "^dep.*")

	conditions, params := matchConditions(fakeDialect{}, fakeStrategy{}, m, 0)

	require.Len(t, conditions, 1)
	assert.Equal(t, `metadata->>'type' ~ $1`, conditions[0])
	assert.Equal(t, []interface{}{"^dep.*"}, params)
}
