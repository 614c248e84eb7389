package backend

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/stokaro/treemig/core/platform"
)

// Dialect captures the syntax differences between backends.
type Dialect interface {
	// Name is one of the platform constants.
	Name() string
	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string
	// QuoteLiteral renders a string literal, used when rendering statements for display.
	QuoteLiteral(value string) string
	// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
	Placeholder(n int) string
}

// NewDialect returns the dialect for the given name.
func NewDialect(name string) (Dialect, error) {
	switch platform.NormalizeDialect(name) {
	case platform.Postgres:
		return postgresDialect{}, nil
	case platform.MySQL:
		return mysqlDialect{name: platform.MySQL}, nil
	case platform.MariaDB:
		return mysqlDialect{name: platform.MariaDB}, nil
	case platform.SQLite:
		return ansiDialect{name: platform.SQLite}, nil
	case platform.Cassandra:
		return ansiDialect{name: platform.Cassandra}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", name)
	}
}

// QualifiedName quotes a table name, prefixed with its namespace when one is given.
func QualifiedName(d Dialect, namespace, table string) string {
	if namespace == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(namespace) + "." + d.QuoteIdent(table)
}

// Placeholders returns count placeholders starting at position start, joined with ", ".
func Placeholders(d Dialect, start, count int) string {
	marks := make([]string, count)
	for i := range marks {
		marks[i] = d.Placeholder(start + i)
	}
	return strings.Join(marks, ", ")
}

type postgresDialect struct{}

func (postgresDialect) Name() string                     { return platform.Postgres }
func (postgresDialect) QuoteIdent(name string) string    { return pq.QuoteIdentifier(name) }
func (postgresDialect) QuoteLiteral(value string) string { return pq.QuoteLiteral(value) }
func (postgresDialect) Placeholder(n int) string         { return fmt.Sprintf("$%d", n) }

type mysqlDialect struct {
	name string
}

func (d mysqlDialect) Name() string { return d.name }

func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) QuoteLiteral(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

// ansiDialect covers SQLite and CQL, which share double-quoted identifiers and ? markers.
type ansiDialect struct {
	name string
}

func (d ansiDialect) Name() string { return d.name }

func (ansiDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (ansiDialect) QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func (ansiDialect) Placeholder(int) string { return "?" }
