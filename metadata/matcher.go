package metadata

// FieldType distinguishes a predicate against the metadata JSON column
// from one against a base message column (event_id, event_name,
// created_at, no) — spec §4.4.
type FieldType int

// The field types a Constraint may target
const (
	FieldTypeMetadata FieldType = iota
	FieldTypeMessageProperty
)

// Operator is a metadata matcher comparison operator (spec §4.4)
type Operator string

// The operators a Constraint may use
const (
	Equals              Operator = "="
	NotEquals           Operator = "!="
	GreaterThan         Operator = ">"
	GreaterThanEquals   Operator = ">="
	LowerThan           Operator = "<"
	LowerThanEquals     Operator = "<="
	In                  Operator = "IN"
	NotIn               Operator = "NOT IN"
	Regex               Operator = "REGEX"
)

// Constraint is a single (field, operator, value) predicate
type Constraint struct {
	field     string
	operator  Operator
	value     interface{}
	fieldType FieldType
}

// Field returns the predicate's field name
func (c Constraint) Field() string { return c.field }

// Operator returns the predicate's operator
func (c Constraint) Operator() Operator { return c.operator }

// Value returns the predicate's comparison value. For In/NotIn this is a
// []interface{}.
func (c Constraint) Value() interface{} { return c.value }

// FieldType returns whether the predicate targets metadata JSON or a base column
func (c Constraint) FieldType() FieldType { return c.fieldType }

// WithField returns a copy of the Constraint targeting a different field
// and field type, used when an indexed-metadata projection (spec §4.1)
// rewrites a predicate onto a plain column.
func (c Constraint) WithField(field string, fieldType FieldType) Constraint {
	c.field = field
	c.fieldType = fieldType
	return c
}

// Matcher is an ordered, immutable list of Constraints combined with AND.
// A nil Matcher (or one with zero constraints) imposes no filter (spec §8
// boundary behavior).
type Matcher interface {
	// Iterate calls fn once per constraint, in the order they were added
	Iterate(fn func(Constraint))
	// Len returns the number of constraints
	Len() int
}

type matcher struct {
	constraints []Constraint
}

// NewMatcher returns an empty Matcher
func NewMatcher() Matcher {
	return matcher{}
}

// WithConstraint returns a new Matcher with the given metadata-field constraint appended
func WithConstraint(m Matcher, field string, operator Operator, value interface{}) Matcher {
	return appendConstraint(m, Constraint{field: field, operator: operator, value: value, fieldType: FieldTypeMetadata})
}

// WithMessagePropertyConstraint returns a new Matcher with the given
// base-column constraint appended
func WithMessagePropertyConstraint(m Matcher, field string, operator Operator, value interface{}) Matcher {
	return appendConstraint(m, Constraint{field: field, operator: operator, value: value, fieldType: FieldTypeMessageProperty})
}

func appendConstraint(m Matcher, c Constraint) Matcher {
	var existing []Constraint
	if m != nil {
		existing = make([]Constraint, 0, m.Len())
		m.Iterate(func(c Constraint) { existing = append(existing, c) })
	}
	return matcher{constraints: append(existing, c)}
}

func (m matcher) Iterate(fn func(Constraint)) {
	for _, c := range m.constraints {
		fn(c)
	}
}

func (m matcher) Len() int {
	return len(m.constraints)
}
