// Package mysql provides the MySQL Dialect, WriteLockStrategy and
// PersistenceStrategy family (C2-C4, spec §4.1-§4.2), grounded on
// github.com/go-sql-driver/mysql.
package mysql

import (
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/ledgerflow/eventstore"
	driversql "github.com/ledgerflow/eventstore/driver/sql"
)

// MySQL error numbers this dialect classifies (spec §4.4, quoted there
// by their SQLSTATE: 42S02/undefined-table, 23000/unique-violation,
// 42S22/unknown-column; the deadlock code 3058 is quoted directly as a
// driver error number in spec §4.2).
const (
	errnoUndefinedTable   = 1146
	errnoDuplicateEntry   = 1062
	errnoUnknownColumn    = 1054
	errnoUserLockDeadlock = 3058
)

// Dialect is the MySQL implementation of driversql.Dialect
type Dialect struct{}

// NewDialect returns the MySQL Dialect
func NewDialect() *Dialect { return &Dialect{} }

// QuoteIdentifier implements driversql.Dialect
func (Dialect) QuoteIdentifier(name string) string {
	parts := strings.SplitN(name, ".", 2)
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

// Placeholder implements driversql.Dialect: MySQL's driver uses
// positional "?" regardless of parameter index.
func (Dialect) Placeholder(int) string { return "?" }

// MetadataExpression implements driversql.Dialect
func (Dialect) MetadataExpression(field string) string {
	return `json_value(metadata, '$.` + strings.ReplaceAll(field, `'`, `''`) + `')`
}

// BoolLiteral implements driversql.Dialect: MySQL's JSON functions return
// numerics for booleans (spec §4.4), so 1/0 literals are used.
func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// RegexOperator implements driversql.Dialect
func (Dialect) RegexOperator() string { return "REGEXP" }

// ValidateRegex implements driversql.Dialect: MySQL's REGEXP uses ICU
// regex syntax; Go's regexp is a reasonable client-side approximation.
func (Dialect) ValidateRegex(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return eventstore.InvalidArgumentError("pattern")
	}
	_, err := regexp.Compile(pattern)
	return err
}

// IndexHint implements driversql.Dialect
func (Dialect) IndexHint(indexName string) string {
	if indexName == "" {
		return ""
	}
	return " USE INDEX (" + Dialect{}.QuoteIdentifier(indexName) + ")"
}

// ClassifyError implements driversql.Dialect
func (Dialect) ClassifyError(err error) error {
	myErr, ok := err.(*mysql.MySQLError)
	if !ok {
		return eventstore.RuntimeError("mysql driver error", err)
	}
	switch myErr.Number {
	case errnoUndefinedTable:
		return eventstore.StreamNotFoundError("", err)
	case errnoDuplicateEntry:
		return eventstore.ConcurrencyError("unique constraint violation", err)
	default:
		return eventstore.RuntimeError(myErr.Error(), err)
	}
}

// IsUnknownColumnError implements driversql.Dialect
func (Dialect) IsUnknownColumnError(err error) bool {
	myErr, ok := err.(*mysql.MySQLError)
	return ok && myErr.Number == errnoUnknownColumn
}

// CreatedAtLayout implements driversql.Dialect
func (Dialect) CreatedAtLayout() string {
	return "2006-01-02 15:04:05.999999"
}

// isDeadlock reports whether err is the GET_LOCK/RELEASE_LOCK deadlock
// error (spec §4.2: "PDO error code 3058 (deadlock) returns false rather
// than propagating").
func isDeadlock(err error) bool {
	myErr, ok := err.(*mysql.MySQLError)
	return ok && myErr.Number == errnoUserLockDeadlock
}

var _ driversql.Dialect = Dialect{}
