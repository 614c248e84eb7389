package dbschema

import (
	"fmt"

	"github.com/stokaro/treemig/core/platform"
	"github.com/stokaro/treemig/dbschema/cassandra"
	"github.com/stokaro/treemig/dbschema/mysql"
	"github.com/stokaro/treemig/dbschema/postgres"
	"github.com/stokaro/treemig/dbschema/sqlite"
	"github.com/stokaro/treemig/dbschema/types"
)

// NewReader returns the catalog reader for a dialect. namespace is the schema,
// database or keyspace to read; it is ignored for SQLite.
func NewReader(dialect string, db types.Querier, namespace string) (types.SchemaReader, error) {
	switch platform.NormalizeDialect(dialect) {
	case platform.Postgres:
		return postgres.NewPostgreSQLReader(db, namespace), nil
	case platform.MySQL, platform.MariaDB:
		return mysql.NewMySQLReader(db, namespace), nil
	case platform.SQLite:
		return sqlite.NewSQLiteReader(db), nil
	case platform.Cassandra:
		return cassandra.NewCassandraReader(db, namespace), nil
	default:
		return nil, fmt.Errorf("no schema reader for dialect %q", dialect)
	}
}
