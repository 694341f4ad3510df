package sql

import (
	"context"

	"github.com/ledgerflow/eventstore/metadata"
)

// LockConn is the connection surface a WriteLockStrategy needs: enough
// to both exec a lock/unlock statement and, on MySQL/MariaDB, read back
// the result column of GET_LOCK/RELEASE_LOCK.
type LockConn interface {
	Execer
	Queryer
}

// WriteLockStrategy is the pluggable write-lock coordination layer (C4).
// Acquire/Release operate on a session-scoped DB-native lock named after
// the stream's write-lock name (spec §4.2).
type WriteLockStrategy interface {
	// Acquire attempts to take the named lock, returning false (not an
	// error) if it could not be obtained within the strategy's policy.
	Acquire(ctx context.Context, conn LockConn, name string) (bool, error)
	// Release releases the named lock. Returns false if it was not held.
	Release(ctx context.Context, conn LockConn, name string) (bool, error)
}

// Dialect captures every SQL-syntax difference between Postgres, MySQL
// and MariaDB that the generic event store core needs: identifier
// quoting, parameter placeholder syntax, metadata JSON extraction,
// boolean/regex rendering, optional index hints, and driver error
// classification (spec §4.1, §4.4, §4.7).
type Dialect interface {
	// QuoteIdentifier quotes a single table or column name
	QuoteIdentifier(name string) string

	// Placeholder returns the bound-parameter placeholder for the n-th
	// (1-indexed) parameter of a statement ("$1" on Postgres, "?" on
	// MySQL/MariaDB).
	Placeholder(n int) string

	// MetadataExpression returns the SQL fragment that extracts a
	// metadata field as text, e.g. metadata->>'field' or
	// json_value(metadata, '$.field').
	MetadataExpression(field string) string

	// BoolLiteral renders a boolean as an inline SQL literal (never
	// parameterized, spec §4.4).
	BoolLiteral(b bool) string

	// RegexOperator returns the dialect's regex match operator (~ or REGEXP).
	RegexOperator() string

	// ValidateRegex validates pattern client-side, before any query is
	// issued, returning a non-nil error if it is not a valid pattern for
	// this dialect's regex engine (spec §4.4, §8 scenario 6).
	ValidateRegex(pattern string) error

	// IndexHint returns the SQL fragment to inject after the table name
	// in a FROM clause to force the named index, or "" if the dialect
	// does not support/require one (Postgres: always "").
	IndexHint(indexName string) string

	// ClassifyError maps a driver error encountered during append/load/
	// delete into the store's typed *eventstore.Error: "relation missing"
	// becomes stream-not-found, a unique violation becomes concurrency,
	// anything else a runtime error. Load does not use it; it classifies
	// its own errors via IsUnknownColumnError.
	ClassifyError(err error) error

	// IsUnknownColumnError reports whether err is the dialect's "unknown
	// column" error (SQLSTATE 42S22 on MySQL/MariaDB), used by Load to
	// produce unexpected-value instead of stream-not-found (spec §4.4).
	IsUnknownColumnError(err error) bool

	// CreatedAtLayout is the time.Parse/time.Format layout used for the
	// created_at column (spec §4.3: 'Y-m-d H:i:s.u' as UTC).
	CreatedAtLayout() string
}

// matchConditions translates a metadata.Matcher into a SQL WHERE fragment
// and bound parameters, applying the dialect-specific rendering rules of
// spec §4.4 (JSON extraction syntax, inlined booleans, IN/NOT IN groups,
// indexed-metadata rewriting). paramOffset is the number of placeholders
// already consumed by the caller (e.g. the no >= ? predicate is appended
// separately, after the matcher's own parameters).
func matchConditions(dialect Dialect, strategy PersistenceStrategy, matcher metadata.Matcher, paramOffset int) (conditions []string, params []interface{}) {
	if matcher == nil {
		return nil, nil
	}

	indexed := map[string]string{}
	if hinter, ok := strategy.(IndexedMetadataFields); ok {
		indexed = hinter.IndexedMetadataFields()
	}

	n := paramOffset
	matcher.Iterate(func(c metadata.Constraint) {
		field := c.Field()
		fieldType := c.FieldType()
		if projected, ok := indexed[field]; ok && fieldType == metadata.FieldTypeMetadata {
			field = projected
			fieldType = metadata.FieldTypeMessageProperty
		}

		var column string
		if fieldType == metadata.FieldTypeMessageProperty {
			column = dialect.QuoteIdentifier(field)
		} else {
			column = dialect.MetadataExpression(field)
		}

		if b, ok := c.Value().(bool); ok {
			conditions = append(conditions, column+" "+string(operatorSQL(c.Operator()))+" "+dialect.BoolLiteral(b))
			return
		}

		switch c.Operator() {
		case metadata.Regex:
			n++
			conditions = append(conditions, column+" "+dialect.RegexOperator()+" "+dialect.Placeholder(n))
			params = append(params, c.Value())
		case metadata.In, metadata.NotIn:
			values, _ := c.Value().([]interface{})
			placeholders := make([]string, 0, len(values))
			for _, v := range values {
				n++
				placeholders = append(placeholders, dialect.Placeholder(n))
				params = append(params, v)
			}
			op := "IN"
			if c.Operator() == metadata.NotIn {
				op = "NOT IN"
			}
			conditions = append(conditions, column+" "+op+" ("+joinStrings(placeholders, ", ")+")")
		default:
			n++
			conditions = append(conditions, column+" "+string(operatorSQL(c.Operator()))+" "+dialect.Placeholder(n))
			params = append(params, c.Value())
		}
	})

	return conditions, params
}

func operatorSQL(op metadata.Operator) metadata.Operator {
	return op
}

func joinStrings(items []string, sep string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}
