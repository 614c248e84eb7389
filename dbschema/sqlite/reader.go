package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/stokaro/treemig/dbschema/types"
)

// Reader reads schema from SQLite databases
type Reader struct {
	db types.Querier
}

// NewSQLiteReader creates a new SQLite schema reader
func NewSQLiteReader(db types.Querier) *Reader {
	return &Reader{db: db}
}

// ReadSchema reads all user tables with their columns and primary keys
func (r *Reader) ReadSchema(ctx context.Context) (*types.DBSchema, error) {
	rows, err := r.db.Query(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
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

	schema := &types.DBSchema{Namespace: "main"}
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
	rows, err := r.db.Query(ctx, `
		SELECT cid, name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for table %s: %w", name, err)
	}
	defer rows.Close()

	table := &types.DBTable{Name: name, Type: "BASE TABLE"}
	keyPos := map[string]int{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			col              types.DBColumn
			def              sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &col.DataType, &notNull, &def, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.OrdinalPosition = cid + 1
		col.IsNullable = "YES"
		if notNull != 0 {
			col.IsNullable = "NO"
		}
		if def.Valid {
			col.ColumnDefault = &def.String
		}
		if pk > 0 {
			col.IsPrimaryKey = true
			keyPos[col.Name] = pk
			table.PrimaryKey = append(table.PrimaryKey, col.Name)
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns for table %s: %w", name, err)
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", name)
	}

	sort.SliceStable(table.PrimaryKey, func(i, j int) bool {
		return keyPos[table.PrimaryKey[i]] < keyPos[table.PrimaryKey[j]]
	})
	return table, nil
}

// TableExists checks whether a table exists
func (r *Reader) TableExists(ctx context.Context, name string) (bool, error) {
	rows, err := r.db.Query(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, rows.Err()
}
