package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/stokaro/treemig/dbschema/types"
)

// Reader reads schema from PostgreSQL databases
type Reader struct {
	db     types.Querier
	schema string
}

// NewPostgreSQLReader creates a new PostgreSQL schema reader
func NewPostgreSQLReader(db types.Querier, schema string) *Reader {
	if schema == "" {
		schema = "public"
	}
	return &Reader{
		db:     db,
		schema: schema,
	}
}

// ReadSchema reads all base tables of the schema with their columns and primary keys
func (r *Reader) ReadSchema(ctx context.Context) (*types.DBSchema, error) {
	schema := &types.DBSchema{Namespace: r.schema}

	names, err := r.readTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}

	for _, name := range names {
		table, err := r.ReadTable(ctx, name)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, *table)
	}

	return schema, nil
}

// ReadTable reads a single table definition
func (r *Reader) ReadTable(ctx context.Context, name string) (*types.DBTable, error) {
	table := &types.DBTable{Name: name, Type: "BASE TABLE"}

	columns, err := r.readColumns(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns for table %s: %w", name, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s does not exist", r.schema, name)
	}
	table.Columns = columns

	pk, err := r.readPrimaryKey(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key for table %s: %w", name, err)
	}
	table.PrimaryKey = pk
	for _, col := range pk {
		if c := table.Column(col); c != nil {
			c.IsPrimaryKey = true
		}
	}

	return table, nil
}

// TableExists checks whether a base table exists in the schema
func (r *Reader) TableExists(ctx context.Context, name string) (bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2`, r.schema, name)
	if err != nil {
		return false, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, rows.Err()
}

func (r *Reader) readTableNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, r.schema)
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
	return names, rows.Err()
}

// readColumns reads all columns for a specific table
func (r *Reader) readColumns(ctx context.Context, tableName string) ([]types.DBColumn, error) {
	columnsQuery := `
		SELECT
			column_name,
			data_type,
			udt_name,
			is_nullable,
			column_default,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := r.db.Query(ctx, columnsQuery, r.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.DBColumn
	for rows.Next() {
		var col types.DBColumn
		var udtName string
		err := rows.Scan(
			&col.Name,
			&col.DataType,
			&udtName,
			&col.IsNullable,
			&col.ColumnDefault,
			&col.OrdinalPosition,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		// User defined types (enums) report USER-DEFINED as data type
		if strings.EqualFold(col.DataType, "USER-DEFINED") {
			col.DataType = udtName
		}

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

func (r *Reader) readPrimaryKey(ctx context.Context, tableName string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position`, r.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan primary key column: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}
