package dbschema_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/treemig/core/platform"
	"github.com/stokaro/treemig/dbschema"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		dialect string
		driver  string
		dsn     string
		schema  string
		hosts   []string
	}{
		{
			name:    "postgres with pool params",
			url:     "postgres://u:p@localhost:5432/db?pool_max_conns=4&sslmode=disable",
			dialect: platform.Postgres,
			driver:  "pgx",
			dsn:     "postgres://u:p@localhost:5432/db?sslmode=disable",
		},
		{
			name:    "postgresql scheme with search path",
			url:     "postgresql://localhost/db?search_path=apdb",
			dialect: platform.Postgres,
			driver:  "pgx",
			dsn:     "postgresql://localhost/db?search_path=apdb",
			schema:  "apdb",
		},
		{
			name:    "mysql",
			url:     "mysql://root:pw@127.0.0.1:3306/apdb",
			dialect: platform.MySQL,
			driver:  "mysql",
			dsn:     "root:pw@tcp(127.0.0.1:3306)/apdb?parseTime=true",
			schema:  "apdb",
		},
		{
			name:    "sqlite absolute path",
			url:     "sqlite:///tmp/apdb.db",
			dialect: platform.SQLite,
			driver:  "sqlite",
			dsn:     "/tmp/apdb.db",
		},
		{
			name:    "sqlite memory",
			url:     "sqlite::memory:",
			dialect: platform.SQLite,
			driver:  "sqlite",
			dsn:     ":memory:",
		},
		{
			name:    "cassandra",
			url:     "cassandra://node1,node2:9042/apdb",
			dialect: platform.Cassandra,
			schema:  "apdb",
			hosts:   []string{"node1", "node2:9042"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			info, err := dbschema.ParseURL(tt.url)
			c.Assert(err, qt.IsNil)
			c.Assert(info.Dialect, qt.Equals, tt.dialect)
			c.Assert(info.Driver, qt.Equals, tt.driver)
			c.Assert(info.DSN, qt.Equals, tt.dsn)
			c.Assert(info.Schema, qt.Equals, tt.schema)
			c.Assert(info.Hosts, qt.DeepEquals, tt.hosts)
			c.Assert(info.URL, qt.Equals, tt.url)
		})
	}
}

func TestParseURL_Errors(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		message string
	}{
		{"no scheme", "localhost", `invalid database URL "localhost": missing scheme`},
		{"unknown scheme", "oracle://db", `unsupported database scheme "oracle"`},
		{"empty sqlite path", "sqlite://", `invalid sqlite URL "sqlite://": missing path`},
		{"cassandra without hosts", "cassandra:///ks", `invalid cassandra URL "cassandra:///ks": missing hosts`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			_, err := dbschema.ParseURL(tt.url)
			c.Assert(err, qt.ErrorMatches, tt.message)
		})
	}
}

func TestConnect_SQLite(t *testing.T) {
	c := qt.New(t)

	db, err := dbschema.Connect("sqlite://" + c.TempDir() + "/test.db")
	c.Assert(err, qt.IsNil)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	c.Assert(err, qt.IsNil)
}

func TestConnect_ColumnStoreRejected(t *testing.T) {
	c := qt.New(t)
	_, err := dbschema.Connect("cassandra://localhost/ks")
	c.Assert(err, qt.ErrorMatches, "cassandra is not a relational database URL")
}
