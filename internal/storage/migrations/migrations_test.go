package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- first table
CREATE TABLE a (x String DEFAULT 'a;b');
CREATE TABLE b (y String DEFAULT 'it''s');

`
	stmts, err := splitStatements(sql)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x String DEFAULT 'a;b')", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y String DEFAULT 'it''s')", stmts[1])
}

func TestSplitStatements_Unterminated(t *testing.T) {
	_, err := splitStatements("SELECT 'oops;")
	assert.Error(t, err)
}

func TestLoad_OrdersAndSkipsEmpty(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql": {Data: []byte("SELECT 2;")},
		"pg/001_a.sql": {Data: []byte("SELECT 1;")},
		"pg/003_c.sql": {Data: []byte("  \n")},
		"pg/README.md": {Data: []byte("ignored")},
	}

	migs, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, "001_a", migs[0].version)
	assert.Equal(t, "002_b", migs[1].version)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.NotEmpty(t, pg)

	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)

	stmts, err := splitStatements(ch[0].sql)
	require.NoError(t, err)
	assert.Len(t, stmts, 1)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/kinetics")
	require.NoError(t, err)
	assert.Equal(t, "kinetics", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
