// Package cmdutil wires settings, backends and migrators for the commands.
package cmdutil

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gocql/gocql"
	"github.com/spf13/viper"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/backend/connect"
	"github.com/stokaro/treemig/backend/cqlbackend"
	"github.com/stokaro/treemig/config"
	"github.com/stokaro/treemig/migration/migrator"
	"github.com/stokaro/treemig/migration/revision"
)

// Settings loads the settings from flags bound to the global viper instance,
// the environment and the optional config file.
func Settings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}

// Backend opens the database named by dbURL.
func Backend(dbURL string, s *config.Settings) (backend.Backend, error) {
	opts := connect.Options{
		Namespace: s.Schema,
		Cassandra: cqlbackend.Config{
			RequestTimeout: s.RequestTimeout,
			ConnectTimeout: s.ConnectTimeout,
		},
		Logger: slog.Default(),
	}
	if s.Consistency != "" {
		consistency, err := gocql.ParseConsistencyWrapper(strings.ToUpper(s.Consistency))
		if err != nil {
			return nil, fmt.Errorf("invalid consistency %q: %w", s.Consistency, err)
		}
		opts.Cassandra.Consistency = consistency
	}
	return connect.Open(dbURL, opts)
}

// Migrator opens the database named by dbURL and returns a migrator over the
// revisions found in the migrations folder. The caller closes the backend.
func Migrator(dbURL string) (*migrator.Migrator, backend.Backend, error) {
	s, err := Settings()
	if err != nil {
		return nil, nil, err
	}
	b, err := Backend(dbURL, s)
	if err != nil {
		return nil, nil, err
	}
	m, err := migrator.NewFSMigrator(b, os.DirFS(s.MigPath))
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	return m.WithSettings(s).WithLogger(slog.Default()), b, nil
}

// Graph loads the revision graph from the migrations folder.
func Graph() (*revision.Graph, *config.Settings, error) {
	s, err := Settings()
	if err != nil {
		return nil, nil, err
	}
	provider, err := migrator.NewFSMigrationProvider(os.DirFS(s.MigPath))
	if err != nil {
		return nil, nil, err
	}
	graph, err := migrator.Graph(provider)
	if err != nil {
		return nil, nil, err
	}
	return graph, s, nil
}
