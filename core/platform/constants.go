package platform

import (
	"strings"
)

const (
	Postgres  = "postgres"
	MySQL     = "mysql"
	MariaDB   = "mariadb"
	SQLite    = "sqlite"
	Cassandra = "cassandra"
)

func NormalizeDialect(dialect string) string {
	switch strings.ToLower(dialect) {
	case "pgx", "postgresql", "postgres":
		return Postgres
	case "mysql":
		return MySQL
	case "mariadb":
		return MariaDB
	case "sqlite", "sqlite3", "file":
		return SQLite
	case "cassandra", "cql", "scylla":
		return Cassandra
	default:
		return ""
	}
}

// IsRelational reports whether the dialect is served by the database/sql backend.
func IsRelational(dialect string) bool {
	switch NormalizeDialect(dialect) {
	case Postgres, MySQL, MariaDB, SQLite:
		return true
	default:
		return false
	}
}
