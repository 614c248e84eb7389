// Package cassandra reads table definitions of a column store keyspace from
// system_schema and renders them back as DDL.
package cassandra

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/stokaro/treemig/dbschema/types"
)

// Reader reads schema of one keyspace
type Reader struct {
	db       types.Querier
	keyspace string
}

// NewCassandraReader creates a new keyspace reader
func NewCassandraReader(db types.Querier, keyspace string) *Reader {
	return &Reader{db: db, keyspace: keyspace}
}

// AllTables returns names of all tables in the keyspace, sorted.
func (r *Reader) AllTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, "SELECT table_name FROM system_schema.tables WHERE keyspace_name = ?", r.keyspace)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// TableExists checks whether a table exists in the keyspace
func (r *Reader) TableExists(ctx context.Context, name string) (bool, error) {
	rows, err := r.db.Query(ctx,
		"SELECT table_name FROM system_schema.tables WHERE keyspace_name = ? AND table_name = ?", r.keyspace, name)
	if err != nil {
		return false, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, rows.Err()
}

// PartitionedTables returns time-partitioned tables derived from base, named "<base>_<n>".
func (r *Reader) PartitionedTables(ctx context.Context, base string) ([]string, error) {
	all, err := r.AllTables(ctx)
	if err != nil {
		return nil, err
	}
	return partitionsOf(all, base), nil
}

// ReplicaTables returns the replica tables of base that exist, "<base>Chunks" and "<base>Chunks2".
func (r *Reader) ReplicaTables(ctx context.Context, base string) ([]string, error) {
	all, err := r.AllTables(ctx)
	if err != nil {
		return nil, err
	}
	return replicasOf(all, base), nil
}

func partitionsOf(all []string, base string) []string {
	var result []string
	for _, table := range all {
		kind, part, ok := strings.Cut(table, "_")
		if !ok || kind != base || part == "" {
			continue
		}
		if strings.IndexFunc(part, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
			result = append(result, table)
		}
	}
	return result
}

func replicasOf(all []string, base string) []string {
	existing := make(map[string]bool, len(all))
	for _, table := range all {
		existing[table] = true
	}
	var result []string
	for _, candidate := range []string{base + "Chunks", base + "Chunks2"} {
		if existing[candidate] {
			result = append(result, candidate)
		}
	}
	return result
}

// ReadTableSchema reads columns and options of one table.
func (r *Reader) ReadTableSchema(ctx context.Context, name string) (*TableSchema, error) {
	rows, err := r.db.Query(ctx,
		"SELECT column_name, type, kind, position, clustering_order FROM system_schema.columns WHERE keyspace_name = ? AND table_name = ?",
		r.keyspace, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for table %s: %w", name, err)
	}
	schema := &TableSchema{Keyspace: r.keyspace, Name: name}
	for rows.Next() {
		col := &Column{}
		if err := rows.Scan(&col.Name, &col.Type, &col.Kind, &col.Position, &col.ClusteringOrder); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read columns for table %s: %w", name, err)
	}
	rows.Close()
	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("table %s.%s does not exist", r.keyspace, name)
	}
	OrderColumns(schema.Columns)

	options, err := r.readOptions(ctx, name)
	if err != nil {
		return nil, err
	}
	schema.Options = options
	return schema, nil
}

func (r *Reader) readOptions(ctx context.Context, name string) (map[string]any, error) {
	rows, err := r.db.Query(ctx, "SELECT * FROM system_schema.tables WHERE keyspace_name = ? AND table_name = ?", r.keyspace, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query options for table %s: %w", name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("table %s.%s does not exist", r.keyspace, name)
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan options for table %s: %w", name, err)
	}

	options := make(map[string]any, len(columns))
	for i, col := range columns {
		switch col {
		case "keyspace_name", "table_name", "id", "memtable", "flags":
			continue
		}
		options[col] = values[i]
	}
	return options, nil
}

// ReadTable reads a table in the generic catalog representation.
func (r *Reader) ReadTable(ctx context.Context, name string) (*types.DBTable, error) {
	schema, err := r.ReadTableSchema(ctx, name)
	if err != nil {
		return nil, err
	}

	table := &types.DBTable{Name: name, Type: "TABLE", PrimaryKey: schema.PrimaryKey()}
	for i, col := range schema.Columns {
		nullable := "YES"
		if col.IsPartitioning() || col.IsClustering() {
			nullable = "NO"
		}
		table.Columns = append(table.Columns, types.DBColumn{
			Name:            col.Name,
			DataType:        col.Type,
			IsNullable:      nullable,
			OrdinalPosition: i + 1,
			IsPrimaryKey:    col.IsPartitioning() || col.IsClustering(),
			Kind:            col.Kind,
			ClusteringOrder: col.ClusteringOrder,
		})
	}
	return table, nil
}

// ReadSchema reads all tables of the keyspace.
func (r *Reader) ReadSchema(ctx context.Context) (*types.DBSchema, error) {
	names, err := r.AllTables(ctx)
	if err != nil {
		return nil, err
	}
	schema := &types.DBSchema{Namespace: r.keyspace}
	for _, name := range names {
		table, err := r.ReadTable(ctx, name)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, *table)
	}
	return schema, nil
}
