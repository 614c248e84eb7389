package mysql

import (
	"context"
	"fmt"

	"github.com/stokaro/treemig/dbschema/types"
)

// Reader reads schema from MySQL and MariaDB databases
type Reader struct {
	db     types.Querier
	schema string
}

// NewMySQLReader creates a new MySQL schema reader. An empty schema means the
// database selected by the connection.
func NewMySQLReader(db types.Querier, schema string) *Reader {
	return &Reader{
		db:     db,
		schema: schema,
	}
}

// schemaExpr returns the SQL expression and arguments selecting the schema.
func (r *Reader) schemaExpr() (string, []any) {
	if r.schema == "" {
		return "DATABASE()", nil
	}
	return "?", []any{r.schema}
}

// ReadSchema reads all base tables with their columns and primary keys
func (r *Reader) ReadSchema(ctx context.Context) (*types.DBSchema, error) {
	schema := &types.DBSchema{Namespace: r.schema}

	expr, args := r.schemaExpr()
	rows, err := r.db.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = `+expr+` AND table_type = 'BASE TABLE'
		ORDER BY table_name`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	rows.Close()

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
	expr, args := r.schemaExpr()
	rows, err := r.db.Query(ctx, `
		SELECT column_name, column_type, is_nullable, column_default, ordinal_position, column_key
		FROM information_schema.columns
		WHERE table_schema = `+expr+` AND table_name = ?
		ORDER BY ordinal_position`, append(args, name)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for table %s: %w", name, err)
	}
	defer rows.Close()

	table := &types.DBTable{Name: name, Type: "BASE TABLE"}
	for rows.Next() {
		var col types.DBColumn
		var key string
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.ColumnDefault, &col.OrdinalPosition, &key); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.IsPrimaryKey = key == "PRI"
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns for table %s: %w", name, err)
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", name)
	}

	pk, err := r.readPrimaryKey(ctx, name)
	if err != nil {
		return nil, err
	}
	table.PrimaryKey = pk
	return table, nil
}

func (r *Reader) readPrimaryKey(ctx context.Context, name string) ([]string, error) {
	expr, args := r.schemaExpr()
	rows, err := r.db.Query(ctx, `
		SELECT column_name FROM information_schema.key_column_usage
		WHERE table_schema = `+expr+` AND table_name = ? AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position`, append(args, name)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key for table %s: %w", name, err)
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("failed to scan primary key column: %w", err)
		}
		pk = append(pk, col)
	}
	return pk, rows.Err()
}

// TableExists checks whether a table exists in the schema
func (r *Reader) TableExists(ctx context.Context, name string) (bool, error) {
	expr, args := r.schemaExpr()
	rows, err := r.db.Query(ctx, `
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = `+expr+` AND table_name = ?`, append(args, name)...)
	if err != nil {
		return false, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, rows.Err()
}
