package cassandra

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Column kinds as reported by system_schema.columns.
const (
	KindPartitionKey = "partition_key"
	KindClustering   = "clustering"
	KindRegular      = "regular"
	KindStatic       = "static"
)

// Column is a column definition read from system_schema.columns.
type Column struct {
	Name            string
	Type            string
	Kind            string
	Position        int
	ClusteringOrder string
}

// IsPartitioning reports whether the column is part of the partition key.
func (c *Column) IsPartitioning() bool { return c.Kind == KindPartitionKey }

// IsClustering reports whether the column is a clustering column.
func (c *Column) IsClustering() bool { return c.Kind == KindClustering }

// group orders partition columns first, then clustering, then everything else.
func (c *Column) group() int {
	switch {
	case c.IsPartitioning():
		return 0
	case c.IsClustering():
		return 1
	default:
		return 2
	}
}

// OrderColumns sorts columns in place: partition key by position, clustering
// columns by position, remaining columns by name.
func OrderColumns(columns []*Column) {
	sort.SliceStable(columns, func(i, j int) bool {
		a, b := columns[i], columns[j]
		if a.group() != b.group() {
			return a.group() < b.group()
		}
		if a.group() < 2 {
			return a.Position < b.Position
		}
		return a.Name < b.Name
	})
}

// TableSchema is the definition of one column store table.
type TableSchema struct {
	Keyspace string
	Name     string
	Columns  []*Column
	Options  map[string]any
}

// PartitioningColumns returns the partition key columns in key order.
func (t *TableSchema) PartitioningColumns() []*Column {
	return t.keyColumns((*Column).IsPartitioning)
}

// ClusteringColumns returns the clustering columns in key order.
func (t *TableSchema) ClusteringColumns() []*Column {
	return t.keyColumns((*Column).IsClustering)
}

// PrimaryKey returns partition then clustering column names.
func (t *TableSchema) PrimaryKey() []string {
	var names []string
	for _, col := range t.PartitioningColumns() {
		names = append(names, col.Name)
	}
	for _, col := range t.ClusteringColumns() {
		names = append(names, col.Name)
	}
	return names
}

func (t *TableSchema) keyColumns(pred func(*Column) bool) []*Column {
	var cols []*Column
	for _, col := range t.Columns {
		if pred(col) {
			cols = append(cols, col)
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
	return cols
}

// skippedOptions are reported by system_schema but rejected in DDL.
var skippedOptions = map[string]bool{
	"dclocal_read_repair_chance": true,
	"read_repair_chance":         true,
}

// MakeDDL renders a CREATE TABLE statement reproducing the table, including
// its options and clustering order.
func (t *TableSchema) MakeDDL() (string, error) {
	OrderColumns(t.Columns)

	var partCols []string
	for _, col := range t.PartitioningColumns() {
		partCols = append(partCols, quote(col.Name))
	}
	var partKey string
	switch len(partCols) {
	case 0:
		return "", fmt.Errorf("table %s has no partitioning columns", t.Name)
	case 1:
		partKey = partCols[0]
	default:
		partKey = "(" + strings.Join(partCols, ", ") + ")"
	}
	pkList := []string{partKey}
	for _, col := range t.ClusteringColumns() {
		pkList = append(pkList, quote(col.Name))
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, col := range t.Columns {
		defs = append(defs, quote(col.Name)+" "+col.Type)
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(pkList, ", ")+")")

	ddl := fmt.Sprintf("CREATE TABLE %s.%s (\n    %s\n)", quote(t.Keyspace), quote(t.Name), strings.Join(defs, ",\n    "))

	names := make([]string, 0, len(t.Options))
	for name := range t.Options {
		names = append(names, name)
	}
	sort.Strings(names)

	var options []string
	for _, name := range names {
		value := t.Options[name]
		if skippedOptions[name] || value == nil {
			continue
		}
		options = append(options, name+" = "+renderOption(value))
	}

	desc := false
	var order []string
	for _, col := range t.ClusteringColumns() {
		order = append(order, quote(col.Name)+" "+col.ClusteringOrder)
		desc = desc || col.ClusteringOrder == "desc"
	}
	if desc {
		options = append(options, "CLUSTERING ORDER BY ("+strings.Join(order, ", ")+")")
	}

	if len(options) > 0 {
		ddl += " WITH " + strings.Join(options, "\n    AND ")
	}
	return ddl, nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func renderOption(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", `\'`) + "'"
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case float32:
		return renderOption(float64(val))
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, renderOption(k)+": "+renderOption(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case map[string][]byte:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: 0x%x", renderOption(k), val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
