// Package inspect implements read-only catalog commands.
package inspect

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stokaro/treemig/cmd/internal/cmdutil"
	"github.com/stokaro/treemig/dbschema"
)

// NewShowSchemaCommand returns show-schema.
func NewShowSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show-schema <connection>",
		Short: "Print the tables, columns and primary keys of the managed namespace",
		Long: `Read the catalog of the database and print every table of the managed
schema or keyspace.

Examples:
  treemig show-schema sqlite://apdb.db
  treemig show-schema cassandra://node1,node2/apdb`,
		Args: cobra.ExactArgs(1),
		RunE: showSchemaCommand,
	}
}

func showSchemaCommand(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Settings()
	if err != nil {
		return err
	}
	b, err := cmdutil.Backend(args[0], s)
	if err != nil {
		return err
	}
	defer b.Close()

	session, err := b.Open(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	reader, err := dbschema.NewReader(b.Dialect().Name(), session, b.Namespace())
	if err != nil {
		return err
	}
	schema, err := reader.ReadSchema(cmd.Context())
	if err != nil {
		return fmt.Errorf("error reading schema: %w", err)
	}

	out := cmd.OutOrStdout()
	if schema.Namespace != "" {
		fmt.Fprintf(out, "Namespace: %s\n", schema.Namespace)
	}
	fmt.Fprintf(out, "Found %d tables\n\n", len(schema.Tables))
	for _, table := range schema.Tables {
		fmt.Fprintf(out, "%s\n", table.Name)
		for _, col := range table.Columns {
			nullable := "NULL"
			if col.IsNullable == "NO" {
				nullable = "NOT NULL"
			}
			line := fmt.Sprintf("  %-24s %-16s %s", col.Name, col.DataType, nullable)
			if col.Kind != "" {
				line += " " + col.Kind
			}
			if col.ClusteringOrder != "" {
				line += " " + strings.ToUpper(col.ClusteringOrder)
			}
			fmt.Fprintln(out, strings.TrimRight(line, " "))
		}
		if len(table.PrimaryKey) > 0 {
			fmt.Fprintf(out, "  PRIMARY KEY (%s)\n", strings.Join(table.PrimaryKey, ", "))
		}
		fmt.Fprintln(out)
	}
	return nil
}
