// Package connect opens the backend matching a connection URL.
package connect

import (
	"fmt"
	"log/slog"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/backend/cqlbackend"
	"github.com/stokaro/treemig/backend/sqlbackend"
	"github.com/stokaro/treemig/core/platform"
	"github.com/stokaro/treemig/dbschema"
)

// Options tune the connection.
type Options struct {
	// Namespace overrides the schema or keyspace named in the URL.
	Namespace string
	// Column store settings; zero values keep the URL or library defaults.
	Cassandra cqlbackend.Config
	Logger    *slog.Logger
}

// Open returns a relational backend for postgres, mysql, mariadb and sqlite
// URLs and a column store backend for cassandra URLs.
func Open(dbURL string, opts Options) (backend.Backend, error) {
	info, err := dbschema.ParseURL(dbURL)
	if err != nil {
		return nil, err
	}

	if platform.IsRelational(info.Dialect) {
		b, err := sqlbackend.Open(dbURL, opts.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", info.Dialect, err)
		}
		return b, nil
	}

	cfg, err := cqlbackend.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}
	mergeCassandra(cfg, opts)

	b, err := cqlbackend.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if opts.Logger != nil {
		b = b.WithLogger(opts.Logger)
	}
	return b, nil
}

func mergeCassandra(cfg *cqlbackend.Config, opts Options) {
	if opts.Namespace != "" {
		cfg.Keyspace = opts.Namespace
	}
	o := opts.Cassandra
	if o.Port != 0 {
		cfg.Port = o.Port
	}
	if o.Username != "" {
		cfg.Username = o.Username
		cfg.Password = o.Password
	}
	if o.RequestTimeout != 0 {
		cfg.RequestTimeout = o.RequestTimeout
	}
	if o.ConnectTimeout != 0 {
		cfg.ConnectTimeout = o.ConnectTimeout
	}
	if o.Consistency != 0 {
		cfg.Consistency = o.Consistency
	}
}
