package mariadb

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/ledgerflow/eventstore"
)

func TestDialectQuoteIdentifierUsesBackticks(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "`events`", d.QuoteIdentifier("events"))
	assert.Equal(t, "`shard1`.`events`", d.QuoteIdentifier("shard1.events"))
}

func TestDialectMetadataExpressionUsesJSONValue(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, `json_value(metadata, '$.type')`, d.MetadataExpression("type"))
}

func TestDialectBoolLiteralIsNumeric(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "1", d.BoolLiteral(true))
	assert.Equal(t, "0", d.BoolLiteral(false))
}

func TestDialectClassifyErrorUndefinedTable(t *testing.T) {
	d := Dialect{}
	err := d.ClassifyError(&mysql.MySQLError{Number: 1146})
	assert.True(t, eventstore.IsKind(err, eventstore.KindStreamNotFound))
}

func TestDialectClassifyErrorDuplicateEntry(t *testing.T) {
	d := Dialect{}
	err := d.ClassifyError(&mysql.MySQLError{Number: 1062})
	assert.True(t, eventstore.IsKind(err, eventstore.KindConcurrency))
}

func TestDialectClassifyErrorNonMySQLErrorIsRuntime(t *testing.T) {
	d := Dialect{}
	err := d.ClassifyError(errors.New("boom"))
	assert.True(t, eventstore.IsKind(err, eventstore.KindRuntime))
}

func TestDialectIsUnknownColumnError(t *testing.T) {
	d := Dialect{}
	assert.True(t, d.IsUnknownColumnError(&mysql.MySQLError{Number: 1054}))
	assert.False(t, d.IsUnknownColumnError(&mysql.MySQLError{Number: 1146}))
}
