package ledger_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/backend/mocks"
	"github.com/stokaro/treemig/internal/testdb"
	"github.com/stokaro/treemig/migration/ledger"
	"github.com/stokaro/treemig/migration/metadata"
	"github.com/stokaro/treemig/migration/revision"
)

func TestSQLLedger(t *testing.T) {
	c := qt.New(t)
	b := testdb.Open(t)
	ctx := context.Background()

	session, err := b.Open(ctx)
	c.Assert(err, qt.IsNil)
	defer session.Close()

	l := ledger.New(session, b.Dialect(), "", nil)
	c.Assert(l.Persistent(), qt.IsTrue)

	heads, err := l.Heads(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(heads, qt.HasLen, 0)

	c.Assert(l.Record(ctx, "schema", revision.RootID("schema")), qt.IsNil)
	c.Assert(l.Record(ctx, "schema", revision.ID("schema", "1.0.0")), qt.IsNil)
	c.Assert(l.Record(ctx, "componentA", revision.RootID("componentA")), qt.IsNil)

	heads, err = l.Heads(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(heads, qt.DeepEquals, map[string]string{
		"schema":     "schema_1.0.0",
		"componentA": "componentA_root",
	})

	c.Assert(l.Remove(ctx, "componentA"), qt.IsNil)
	heads, err = l.Heads(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(heads, qt.DeepEquals, map[string]string{"schema": "schema_1.0.0"})
}

func TestSQLLedger_Stamp(t *testing.T) {
	c := qt.New(t)
	b := testdb.Open(t)
	ctx := context.Background()

	session, err := b.Open(ctx)
	c.Assert(err, qt.IsNil)
	defer session.Close()

	l := ledger.NewSQL(session, b.Dialect(), "", ledger.WithTable("custom_heads"))
	c.Assert(l.Stamp(ctx, map[string]string{"old": "old_1.0.0"}, false), qt.IsNil)
	c.Assert(l.Stamp(ctx, map[string]string{"schema": "schema_2.0.0"}, false), qt.IsNil)

	heads, err := l.Heads(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(heads, qt.DeepEquals, map[string]string{"old": "old_1.0.0", "schema": "schema_2.0.0"})

	c.Assert(l.Stamp(ctx, map[string]string{"schema": "schema_2.0.0"}, true), qt.IsNil)
	heads, err = l.Heads(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(heads, qt.DeepEquals, map[string]string{"schema": "schema_2.0.0"})

	c.Assert(testdb.QueryStrings(t, b, "SELECT tree FROM custom_heads"), qt.DeepEquals, []string{"schema"})
}

func TestDerivedLedger(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	session := &mocks.Session{
		QueryFunc: func(string, []any) (backend.Rows, error) {
			return mocks.NewRows([]string{"name", "value"},
				[]any{"version:schema", "1.9.0"},
				[]any{"version:ApdbCassandraReplica", "1.0.0"},
				[]any{"config:frozen.json", "{}"},
			), nil
		},
	}
	d, err := backend.NewDialect("cassandra")
	c.Assert(err, qt.IsNil)
	store := metadata.New(session, d, "apdb")

	l := ledger.New(session, d, "apdb", store)
	c.Assert(l.Persistent(), qt.IsFalse)

	heads, err := l.Heads(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(heads, qt.DeepEquals, map[string]string{
		"schema":               "schema_1.9.0",
		"ApdbCassandraReplica": revision.ID("ApdbCassandraReplica", "1.0.0"),
	})

	c.Assert(l.Record(ctx, "schema", "schema_2.0.0"), qt.IsNil)
	c.Assert(l.Stamp(ctx, heads, true), qt.IsNil)
	c.Assert(session.CallsOf("exec"), qt.HasLen, 0)
	c.Assert(session.CallsOf("ddl"), qt.HasLen, 0)
}
