package platform_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/treemig/core/platform"
)

func TestNormalizeDialect(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"pgx", platform.Postgres},
		{"PostgreSQL", platform.Postgres},
		{"mysql", platform.MySQL},
		{"mariadb", platform.MariaDB},
		{"sqlite3", platform.SQLite},
		{"file", platform.SQLite},
		{"cql", platform.Cassandra},
		{"Cassandra", platform.Cassandra},
		{"oracle", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(platform.NormalizeDialect(tt.input), qt.Equals, tt.expected)
		})
	}
}

func TestIsRelational(t *testing.T) {
	c := qt.New(t)
	c.Assert(platform.IsRelational("pgx"), qt.IsTrue)
	c.Assert(platform.IsRelational("sqlite"), qt.IsTrue)
	c.Assert(platform.IsRelational("cassandra"), qt.IsFalse)
	c.Assert(platform.IsRelational(""), qt.IsFalse)
}
