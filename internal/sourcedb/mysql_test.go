package sourcedb

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/rangemigrate/internal/domain"
)

func newMockConnector(t *testing.T) (*MySQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &MySQL{cfg: Config{Database: "orders"}, db: db}, mock
}

func TestTest(t *testing.T) {
	m, mock := newMockConnector(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := m.Test(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRowCount(t *testing.T) {
	m, mock := newMockConnector(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM `line_items`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := m.RowCount(context.Background(), "line_items")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestPrimaryKey(t *testing.T) {
	m, mock := newMockConnector(t)
	mock.ExpectQuery("SELECT COLUMN_NAME").
		WithArgs("orders", "line_items").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))

	cols, err := m.PrimaryKey(context.Background(), "line_items")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, cols)
}

func TestDescribe(t *testing.T) {
	m, mock := newMockConnector(t)
	mock.ExpectQuery("DESCRIBE `line_items`").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("id", "bigint(20)", "NO", "PRI", nil, "").
			AddRow("name", "varchar(255)", "YES", "", nil, "").
			AddRow("amount", "decimal(10,2)", "YES", "", nil, ""))

	schema, err := m.Describe(context.Background(), "line_items")
	require.NoError(t, err)
	require.Len(t, schema, 3)
	assert.Equal(t, domain.ColumnInt64, schema[0].Type)
	assert.Equal(t, domain.ColumnString, schema[1].Type)
	assert.Equal(t, domain.ColumnDecimal, schema[2].Type)
	assert.Equal(t, 10, schema[2].Precision)
	assert.Equal(t, 2, schema[2].Scale)
}

func TestColumnFromMySQLTypeBool(t *testing.T) {
	col := columnFromMySQLType("active", "tinyint(1)")
	assert.Equal(t, domain.ColumnBool, col.Type)
}

func TestColumnFromMySQLTypeTimestamp(t *testing.T) {
	col := columnFromMySQLType("created_at", "timestamp")
	assert.Equal(t, domain.ColumnTimestamp, col.Type)
}

// TestReadRangeConvertsDriverValues exercises the exact shape the
// go-sql-driver/mysql binary protocol returns for VARCHAR, DECIMAL, and
// TINYINT(1): []byte for the first two and int64 for the bool column.
// ReadRange must convert these into the string/*big.Rat/bool values
// internal/columnar.appendValue type-asserts against.
func TestReadRangeConvertsDriverValues(t *testing.T) {
	m, mock := newMockConnector(t)

	mock.ExpectQuery("DESCRIBE `accounts`").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("id", "bigint(20)", "NO", "PRI", nil, "").
			AddRow("name", "varchar(255)", "YES", "", nil, "").
			AddRow("balance", "decimal(10,2)", "YES", "", nil, "").
			AddRow("active", "tinyint(1)", "NO", "", nil, ""))

	mock.ExpectQuery("SELECT COLUMN_NAME").
		WithArgs("orders", "accounts").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))

	mock.ExpectQuery("SELECT \\* FROM `accounts`").
		WithArgs(int64(2), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "balance", "active"}).
			AddRow(int64(1), []byte("alice"), []byte("19.99"), int64(1)).
			AddRow(int64(2), []byte("bob"), []byte("4.50"), int64(0)))

	batch, err := m.ReadRange(context.Background(), "accounts", 0, 2)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)

	assert.Equal(t, int64(1), batch.Rows[0][0])
	assert.Equal(t, "alice", batch.Rows[0][1])
	require.IsType(t, &big.Rat{}, batch.Rows[0][2])
	assert.Equal(t, big.NewRat(1999, 100), batch.Rows[0][2])
	assert.Equal(t, true, batch.Rows[0][3])

	assert.Equal(t, "bob", batch.Rows[1][1])
	assert.Equal(t, false, batch.Rows[1][3])
}

func TestClassifyQueryErrorDistinguishesTransientFromPermanent(t *testing.T) {
	assert.Equal(t, domain.ConnectError, classifyQueryError(&mysqldriver.MySQLError{Number: 1213, Message: "deadlock"}))
	assert.Equal(t, domain.ConnectError, classifyQueryError(&mysqldriver.MySQLError{Number: 2006, Message: "gone away"}))
	assert.Equal(t, domain.QueryError, classifyQueryError(&mysqldriver.MySQLError{Number: 1146, Message: "no such table"}))
	assert.Equal(t, domain.QueryError, classifyQueryError(errors.New("syntax error")))
}
