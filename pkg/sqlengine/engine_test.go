package sqlengine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunProducesCompactJSON(t *testing.T) {
	engine := New(zerolog.Nop())

	out, err := engine.Run(context.Background(), "CREATE TABLE t(x INT); INSERT INTO t VALUES (1);", "SELECT 1+1 AS sum;")
	require.NoError(t, err)
	require.Equal(t, `[{"sum":2}]`, out)
}

func TestRunKeepsColumnOrderAndAutoIncrementsIDs(t *testing.T) {
	engine := New(zerolog.Nop())

	setup := `
CREATE TABLE employees (id INT PRIMARY KEY, name TEXT, salary INT);
INSERT INTO employees (name, salary) VALUES ('Zoe', 500);
INSERT INTO employees (name, salary) VALUES ('Adam', 700);
`
	out, err := engine.Run(context.Background(), setup, "SELECT name, id FROM employees ORDER BY salary DESC")
	require.NoError(t, err)
	require.Equal(t, `[{"name":"Adam","id":2},{"name":"Zoe","id":1}]`, out)
}

func TestRunDropsExistingTablesBeforeCreate(t *testing.T) {
	engine := New(zerolog.Nop())

	setup := "CREATE TABLE t(a INT); CREATE TABLE t(b INT); INSERT INTO t(b) VALUES (3);"
	out, err := engine.Run(context.Background(), setup, "SELECT b FROM t")
	require.NoError(t, err)
	require.Equal(t, `[{"b":3}]`, out)
}

func TestRunIsolatesDatabasesBetweenCalls(t *testing.T) {
	engine := New(zerolog.Nop())

	_, err := engine.Run(context.Background(), "CREATE TABLE leftovers(x INT);", "SELECT 1")
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), "", "SELECT * FROM leftovers")
	require.Error(t, err)
}

func TestRunEmptyResultAndNonQueryStatement(t *testing.T) {
	engine := New(zerolog.Nop())

	out, err := engine.Run(context.Background(), "CREATE TABLE t(x INT);", "SELECT x FROM t")
	require.NoError(t, err)
	require.Equal(t, `[]`, out)

	out, err = engine.Run(context.Background(), "CREATE TABLE t(x INT);", "INSERT INTO t VALUES (5); SELECT x, NULL AS missing FROM t;")
	require.NoError(t, err)
	require.Equal(t, `[{"x":5,"missing":null}]`, out)
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	engine := New(zerolog.Nop())

	_, err := engine.Run(context.Background(), "", "  -- nothing here\n")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSplitStatementsRespectsQuotesAndComments(t *testing.T) {
	script := "INSERT INTO t VALUES ('a;b'); -- trailing; comment\nSELECT \"x;y\" FROM t; /* block; */ SELECT 'it''s'"
	statements := SplitStatements(script)
	require.Equal(t, []string{
		"INSERT INTO t VALUES ('a;b')",
		"SELECT \"x;y\" FROM t",
		"SELECT 'it''s'",
	}, statements)
}

func TestNormalizeSchema(t *testing.T) {
	require.Equal(t,
		"CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)",
		NormalizeSchema("CREATE TABLE users (id INT PRIMARY KEY, name TEXT)"))
	require.Equal(t,
		"CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)",
		NormalizeSchema("CREATE TABLE users (id INT AUTO_INCREMENT PRIMARY KEY, name TEXT)"))
	require.Equal(t,
		"CREATE TABLE orders (id INTEGER PRIMARY KEY AUTOINCREMENT)",
		NormalizeSchema("CREATE TABLE orders (id SERIAL PRIMARY KEY)"))
	require.Equal(t, "INSERT INTO t VALUES (1)", NormalizeSchema("INSERT INTO t VALUES (1)"))
	require.Equal(t, "users", CreatedTable("create table if not exists `users` (id int)"))
}

func TestEncodeRowsDoesNotEscapeHTML(t *testing.T) {
	out, err := EncodeRows([]string{"expr"}, [][]any{{[]byte("a<b")}})
	require.NoError(t, err)
	require.Equal(t, `[{"expr":"a<b"}]`, out)
}
