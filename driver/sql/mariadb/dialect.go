// Package mariadb provides the MariaDB Dialect, WriteLockStrategy and
// PersistenceStrategy family (C2-C4, spec §4.1-§4.2). MariaDB shares the
// MySQL wire protocol and driver, but its GET_LOCK/RELEASE_LOCK pair has
// different semantics from MySQL's (spec §4.2), so it gets its own
// package rather than being folded into mysql.
package mariadb

import (
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/ledgerflow/eventstore"
	driversql "github.com/ledgerflow/eventstore/driver/sql"
)

const (
	errnoUndefinedTable   = 1146
	errnoDuplicateEntry   = 1062
	errnoUnknownColumn    = 1054
	errnoUserLockDeadlock = 3058
)

// Dialect is the MariaDB implementation of driversql.Dialect
type Dialect struct{}

// NewDialect returns the MariaDB Dialect
func NewDialect() *Dialect { return &Dialect{} }

// QuoteIdentifier implements driversql.Dialect
func (Dialect) QuoteIdentifier(name string) string {
	parts := strings.SplitN(name, ".", 2)
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

// Placeholder implements driversql.Dialect
func (Dialect) Placeholder(int) string { return "?" }

// MetadataExpression implements driversql.Dialect
func (Dialect) MetadataExpression(field string) string {
	return `json_value(metadata, '$.` + strings.ReplaceAll(field, `'`, `''`) + `')`
}

// BoolLiteral implements driversql.Dialect
func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// RegexOperator implements driversql.Dialect
func (Dialect) RegexOperator() string { return "REGEXP" }

// ValidateRegex implements driversql.Dialect
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
		return eventstore.RuntimeError("mariadb driver error", err)
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
// error (spec §4.2: error code 3058 returns false rather than propagating,
// same as MySQL).
func isDeadlock(err error) bool {
	myErr, ok := err.(*mysql.MySQLError)
	return ok && myErr.Number == errnoUserLockDeadlock
}

var _ driversql.Dialect = Dialect{}
