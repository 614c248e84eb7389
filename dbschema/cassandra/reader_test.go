package cassandra_test

import (
	"context"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/backend/mocks"
	"github.com/stokaro/treemig/dbschema/cassandra"
)

func catalogSession() *mocks.Session {
	return &mocks.Session{
		QueryFunc: func(stmt string, args []any) (backend.Rows, error) {
			switch {
			case strings.HasPrefix(stmt, "SELECT table_name FROM system_schema.tables") && len(args) == 1:
				return mocks.NewRows([]string{"table_name"},
					[]any{"DiaSource"}, []any{"DiaSource_610"}, []any{"DiaSource_611"},
					[]any{"DiaSourceChunks"}, []any{"DiaSource_x"}, []any{"metadata"}), nil
			case strings.HasPrefix(stmt, "SELECT table_name FROM system_schema.tables"):
				if args[1] == "metadata" {
					return mocks.NewRows([]string{"table_name"}, []any{"metadata"}), nil
				}
				return mocks.NewRows([]string{"table_name"}), nil
			case strings.Contains(stmt, "system_schema.columns"):
				if args[1] != "metadata" {
					return mocks.NewRows(nil), nil
				}
				return mocks.NewRows([]string{"column_name", "type", "kind", "position", "clustering_order"},
					[]any{"value", "text", "regular", -1, "none"},
					[]any{"name", "text", "clustering", 0, "asc"},
					[]any{"meta_part", "int", "partition_key", 0, "none"},
				), nil
			case strings.HasPrefix(stmt, "SELECT * FROM system_schema.tables"):
				return mocks.NewRows([]string{"keyspace_name", "table_name", "id", "gc_grace_seconds", "comment"},
					[]any{"apdb", "metadata", "0000", 864000, ""}), nil
			}
			return mocks.NewRows(nil), nil
		},
	}
}

func TestReader_Tables(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	r := cassandra.NewCassandraReader(catalogSession(), "apdb")

	all, err := r.AllTables(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 6)

	parts, err := r.PartitionedTables(ctx, "DiaSource")
	c.Assert(err, qt.IsNil)
	c.Assert(parts, qt.DeepEquals, []string{"DiaSource_610", "DiaSource_611"})

	replicas, err := r.ReplicaTables(ctx, "DiaSource")
	c.Assert(err, qt.IsNil)
	c.Assert(replicas, qt.DeepEquals, []string{"DiaSourceChunks"})

	exists, err := r.TableExists(ctx, "metadata")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsTrue)

	exists, err = r.TableExists(ctx, "missing")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsFalse)
}

func TestReader_ReadTableSchema(t *testing.T) {
	c := qt.New(t)
	r := cassandra.NewCassandraReader(catalogSession(), "apdb")

	schema, err := r.ReadTableSchema(context.Background(), "metadata")
	c.Assert(err, qt.IsNil)
	c.Assert(schema.PrimaryKey(), qt.DeepEquals, []string{"meta_part", "name"})
	c.Assert(schema.Options, qt.DeepEquals, map[string]any{"gc_grace_seconds": 864000, "comment": ""})

	ddl, err := schema.MakeDDL()
	c.Assert(err, qt.IsNil)
	c.Assert(ddl, qt.Equals, `CREATE TABLE "apdb"."metadata" (
    "meta_part" int,
    "name" text,
    "value" text,
    PRIMARY KEY ("meta_part", "name")
) WITH comment = ''
    AND gc_grace_seconds = 864000`)

	table, err := r.ReadTable(context.Background(), "metadata")
	c.Assert(err, qt.IsNil)
	c.Assert(table.PrimaryKey, qt.DeepEquals, []string{"meta_part", "name"})
	c.Assert(table.Column("value").IsPrimaryKey, qt.IsFalse)
	c.Assert(table.Column("name").Kind, qt.Equals, cassandra.KindClustering)

	_, err = r.ReadTableSchema(context.Background(), "missing")
	c.Assert(err, qt.ErrorMatches, "table apdb.missing does not exist")
}
