// Package postgres provides the Postgres Dialect, WriteLockStrategy and
// PersistenceStrategy family (C2-C4, spec §4.1-§4.2) that plug into the
// generic driver/sql event store and projector, grounded on lib/pq.
package postgres

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/ledgerflow/eventstore"
	driversql "github.com/ledgerflow/eventstore/driver/sql"
)

// Postgres SQLSTATE codes this dialect classifies (spec §4.4 adapted to
// Postgres's own codes rather than the MySQL-style ones the source
// quotes generically; see DESIGN.md).
const (
	sqlstateUndefinedTable  = "42P01"
	sqlstateUniqueViolation = "23505"
	sqlstateUndefinedColumn = "42703"
)

// Dialect is the Postgres implementation of driversql.Dialect
type Dialect struct{}

// NewDialect returns the Postgres Dialect
func NewDialect() *Dialect { return &Dialect{} }

// QuoteIdentifier implements driversql.Dialect. A "." splits an optional
// schema prefix (spec §3); both parts are quoted independently.
func (Dialect) QuoteIdentifier(name string) string {
	parts := strings.SplitN(name, ".", 2)
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// Placeholder implements driversql.Dialect
func (Dialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// MetadataExpression implements driversql.Dialect
func (Dialect) MetadataExpression(field string) string {
	return `metadata->>'` + strings.ReplaceAll(field, `'`, `''`) + `'`
}

// BoolLiteral implements driversql.Dialect
func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RegexOperator implements driversql.Dialect
func (Dialect) RegexOperator() string { return "~" }

// ValidateRegex implements driversql.Dialect. Postgres evaluates POSIX
// regexes server-side (SQLSTATE 2201B on bad pattern); Go's regexp/syntax
// is a reasonable client-side approximation of the same class of errors.
func (Dialect) ValidateRegex(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return eventstore.InvalidArgumentError("pattern")
	}
	_, err := regexp.Compile(pattern)
	return err
}

// IndexHint implements driversql.Dialect: Postgres's planner does not
// support query hints, so this is always empty (spec §4.1).
func (Dialect) IndexHint(string) string { return "" }

// ClassifyError implements driversql.Dialect
func (Dialect) ClassifyError(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return eventstore.RuntimeError("postgres driver error", err)
	}
	switch pqErr.Code {
	case sqlstateUndefinedTable:
		return eventstore.StreamNotFoundError("", err)
	case sqlstateUniqueViolation:
		return eventstore.ConcurrencyError("unique constraint violation", err)
	default:
		return eventstore.RuntimeError(string(pqErr.Code)+": "+pqErr.Message, err)
	}
}

// IsUnknownColumnError implements driversql.Dialect
func (Dialect) IsUnknownColumnError(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == sqlstateUndefinedColumn
}

// CreatedAtLayout implements driversql.Dialect
func (Dialect) CreatedAtLayout() string {
	return "2006-01-02 15:04:05.999999"
}

var _ driversql.Dialect = Dialect{}
