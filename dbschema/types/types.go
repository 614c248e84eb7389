package types

import (
	"context"

	"github.com/stokaro/treemig/backend"
)

// DBSchema represents the schema read from a database namespace
type DBSchema struct {
	Namespace string    `json:"namespace"`
	Tables    []DBTable `json:"tables"`
}

// DBTable represents a database table
type DBTable struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"` // TABLE, VIEW, etc.
	Comment    string     `json:"comment"`
	Columns    []DBColumn `json:"columns"`
	PrimaryKey []string   `json:"primary_key"` // Key columns in key order
}

// Column returns the named column, or nil.
func (t *DBTable) Column(name string) *DBColumn {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// DBColumn represents a database column
type DBColumn struct {
	Name            string  `json:"name"`
	DataType        string  `json:"data_type"`
	IsNullable      string  `json:"is_nullable"`    // YES/NO
	ColumnDefault   *string `json:"column_default"` // Can be NULL
	OrdinalPosition int     `json:"ordinal_position"`
	IsPrimaryKey    bool    `json:"is_primary_key"`
	Kind            string  `json:"kind,omitempty"`             // Column store: partition_key, clustering, regular
	ClusteringOrder string  `json:"clustering_order,omitempty"` // Column store: asc, desc
}

// DBInfo contains connection and metadata information
type DBInfo struct {
	Dialect string   `json:"dialect"` // postgres, mysql, mariadb, sqlite, cassandra
	Schema  string   `json:"schema"`  // schema, database or keyspace name
	URL     string   `json:"url"`     // original connection URL (for reference)
	Driver  string   `json:"driver"`  // database/sql driver name, empty for the column store
	DSN     string   `json:"-"`       // driver specific data source name
	Hosts   []string `json:"hosts,omitempty"`
}

// Querier is the read capability readers need. backend.Session satisfies it.
type Querier interface {
	Query(ctx context.Context, stmt string, args ...any) (backend.Rows, error)
}

// SchemaReader interface for reading database schemas
type SchemaReader interface {
	ReadSchema(ctx context.Context) (*DBSchema, error)
	ReadTable(ctx context.Context, name string) (*DBTable, error)
	TableExists(ctx context.Context, name string) (bool, error)
}
