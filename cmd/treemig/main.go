// Command treemig manages the revision trees of a database and moves the
// database between revisions.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stokaro/treemig/cmd/inspect"
	"github.com/stokaro/treemig/cmd/internal/cmdutil"
	"github.com/stokaro/treemig/cmd/migrate"
	"github.com/stokaro/treemig/cmd/tree"
	"github.com/stokaro/treemig/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treemig",
		Short: "Schema migrations organised as independent revision trees",
		Long: `treemig keeps the schema of a database as several independently versioned
trees. Each revision of a tree carries up and down steps and may depend on
revisions of other trees. The applied version of every tree is stored in the
metadata table of the database.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}

	d := config.DefaultSettings()
	flags := cmd.PersistentFlags()
	flags.String(config.KeyConfig, "", "Config file (YAML, TOML or JSON)")
	flags.String(config.KeyMigPath, d.MigPath, "Folder holding one sub-folder per tree")
	flags.String(config.KeySchema, d.Schema, "Schema or keyspace of the managed tables, overrides the connection URL")
	flags.String(config.KeyMetadataTable, d.MetadataTable, "Name of the metadata table")
	flags.String(config.KeyLedgerTable, d.LedgerTable, "Name of the ledger table")
	flags.String(config.KeyConfigKey, d.ConfigKey, "Metadata key of the frozen configuration")
	flags.Duration(config.KeyRequestTimeout, d.RequestTimeout, "Column store request timeout")
	flags.Duration(config.KeyConnectTimeout, d.ConnectTimeout, "Column store connect timeout")
	flags.String(config.KeyConsistency, d.Consistency, "Column store consistency level")
	flags.Int(config.KeyBatchSize, d.BatchSize, "Rows per bulk rewrite batch")
	flags.Bool(config.KeyTransactional, d.Transactional, "Run every step in a transaction where the backend allows it")
	flags.String(config.KeyLogLevel, d.LogLevel, "Log level, LEVEL or component=LEVEL, comma separated")
	for _, key := range []string{
		config.KeyConfig, config.KeyMigPath, config.KeySchema, config.KeyMetadataTable,
		config.KeyLedgerTable, config.KeyConfigKey, config.KeyRequestTimeout,
		config.KeyConnectTimeout, config.KeyConsistency, config.KeyBatchSize,
		config.KeyTransactional, config.KeyLogLevel,
	} {
		_ = viper.BindPFlag(key, flags.Lookup(key))
	}

	cmd.AddCommand(tree.NewCommands()...)
	cmd.AddCommand(migrate.NewCommands()...)
	cmd.AddCommand(inspect.NewShowSchemaCommand())
	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	s, err := cmdutil.Settings()
	if err != nil {
		return err
	}
	levels, err := config.ParseLogLevels(s.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(config.NewLogger(cmd.ErrOrStderr(), levels))
	return nil
}
