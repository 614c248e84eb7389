package migrator_test

import (
	"context"
	"testing"
	"testing/fstest"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/treemig/backend/dryrun"
	"github.com/stokaro/treemig/internal/testdb"
	"github.com/stokaro/treemig/migration/execution"
	"github.com/stokaro/treemig/migration/migrator"
	"github.com/stokaro/treemig/migration/revision"
)

func TestNoopMigrationFunc(t *testing.T) {
	c := qt.New(t)
	c.Assert(migrator.NoopMigrationFunc(context.Background(), nil), qt.IsNil)
}

func TestSplitSQLStatements(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "single statement",
			sql:      "CREATE TABLE users (id SERIAL PRIMARY KEY);",
			expected: []string{"CREATE TABLE users (id SERIAL PRIMARY KEY)"},
		},
		{
			name: "statements with comments",
			sql:  "-- Create users table\nCREATE TABLE users (id SERIAL PRIMARY KEY);\n/* index */\nCREATE INDEX idx_users_id ON users(id);",
			expected: []string{
				"CREATE TABLE users (id SERIAL PRIMARY KEY)",
				"CREATE INDEX idx_users_id ON users(id)",
			},
		},
		{
			name:     "semicolon inside a literal",
			sql:      "UPDATE config SET value = 'a;b'; SELECT 1",
			expected: []string{"UPDATE config SET value = 'a;b'", "SELECT 1"},
		},
		{
			name:     "only comments",
			sql:      "-- This is a comment\n/* Another comment */",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(migrator.SplitSQLStatements(tt.sql), qt.DeepEquals, tt.expected)
		})
	}
}

func TestMigrationFuncFromSQL(t *testing.T) {
	c := qt.New(t)
	b := testdb.Open(t)

	up := migrator.MigrationFuncFromSQL(`
		-- schema change goes through DDL
		CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO items (id, name) VALUES (1, 'a;b');
		INSERT INTO items (id, name) VALUES (2, 'c');
	`)
	err := execution.Run(context.Background(), b, execution.Target{Tree: "schema"}, execution.Options{}, up)
	c.Assert(err, qt.IsNil)
	c.Assert(testdb.QueryStrings(t, b, "SELECT name FROM items ORDER BY id"), qt.DeepEquals, []string{"a;b", "c"})
}

func TestMigrationFuncFromSQL_DryRun(t *testing.T) {
	c := qt.New(t)
	b := testdb.Open(t)

	var recorded []dryrun.Statement
	up := migrator.MigrationFuncFromSQL("CREATE TABLE items (id INTEGER PRIMARY KEY); DELETE FROM items")
	err := execution.Run(context.Background(), b, execution.Target{Tree: "schema"}, execution.Options{DryRun: true},
		func(ctx context.Context, ec *execution.Context) error {
			if err := up(ctx, ec); err != nil {
				return err
			}
			recorded = ec.DryRunStatements()
			return nil
		})
	c.Assert(err, qt.IsNil)
	c.Assert(recorded, qt.HasLen, 2)
	c.Assert(recorded[0].SQL, qt.Equals, "CREATE TABLE items (id INTEGER PRIMARY KEY)")
	c.Assert(recorded[1].SQL, qt.Equals, "DELETE FROM items")
	c.Assert(testdb.QueryStrings(t, b, `SELECT name FROM sqlite_master WHERE name = 'items'`), qt.HasLen, 0)
}

func TestMigrationFuncFromSQL_Error(t *testing.T) {
	c := qt.New(t)
	b := testdb.Open(t)

	up := migrator.MigrationFuncFromSQL("INSERT INTO missing (id) VALUES (1)")
	err := execution.Run(context.Background(), b, execution.Target{Tree: "schema"}, execution.Options{}, up)
	c.Assert(err, qt.ErrorMatches, `(?s)failed to execute SQL statement: .*missing.*\nSQL: INSERT INTO missing \(id\) VALUES \(1\)`)
}

func TestMigrationFuncFromSQLFilename_FileNotFound(t *testing.T) {
	c := qt.New(t)

	migrationFunc := migrator.MigrationFuncFromSQLFilename("nonexistent.sql", fstest.MapFS{})
	c.Assert(migrationFunc, qt.IsNotNil)

	err := migrationFunc(context.Background(), nil)
	c.Assert(err, qt.ErrorMatches, `failed to read migration file: .*`)
}

func TestCreateMigrationFromSQL(t *testing.T) {
	c := qt.New(t)

	rev := revision.New("schema", "1.0.0", "schema_root")
	m := migrator.CreateMigrationFromSQL(rev, "CREATE TABLE t (id INT)", "DROP TABLE t")
	c.Assert(m.ID(), qt.Equals, "schema_1.0.0")
	c.Assert(m.Up, qt.IsNotNil)
	c.Assert(m.Down, qt.IsNotNil)
}
