package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatcherIsEmpty(t *testing.T) {
	m := NewMatcher()
	assert.Equal(t, 0, m.Len())

	var calls int
	m.Iterate(func(Constraint) { calls++ })
	assert.Zero(t, calls)
}

func TestWithConstraintAppendsInOrder(t *testing.T) {
	m := NewMatcher()
	m = WithConstraint(m, "type", Equals, "deposit")
	m = WithMessagePropertyConstraint(m, "no", GreaterThan, 10)

	require.Equal(t, 2, m.Len())

	var seen []Constraint
	m.Iterate(func(c Constraint) { seen = append(seen, c) })

	require.Len(t, seen, 2)
	assert.Equal(t, "type", seen[0].Field())
	assert.Equal(t, Equals, seen[0].Operator())
	assert.Equal(t, FieldTypeMetadata, seen[0].FieldType())

	assert.Equal(t, "no", seen[1].Field())
	assert.Equal(t, GreaterThan, seen[1].Operator())
	assert.Equal(t, FieldTypeMessageProperty, seen[1].FieldType())
}

func TestWithConstraintDoesNotMutateOriginal(t *testing.T) {
	base := WithConstraint(NewMatcher(), "a", Equals, 1)
	extended := WithConstraint(base, "b", Equals, 2)

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, extended.Len())
}

func TestConstraintWithFieldRewrites(t *testing.T) {
	m := WithConstraint(NewMatcher(), "_aggregate_type", Equals, "account")

	var original Constraint
	m.Iterate(func(c Constraint) { original = c })

	rewritten := original.WithField("aggregate_type", FieldTypeMessageProperty)

	assert.Equal(t, "aggregate_type", rewritten.Field())
	assert.Equal(t, FieldTypeMessageProperty, rewritten.FieldType())
	assert.Equal(t, "_aggregate_type", original.Field(), "WithField must not mutate the receiver")
}

func TestInOperatorCarriesSliceValue(t *testing.T) {
	values := []interface{}{"a", "b", "c"}
	m := WithConstraint(NewMatcher(), "tag", In, values)

	var c Constraint
	m.Iterate(func(got Constraint) { c = got })

	assert.Equal(t, values, c.Value())
}
