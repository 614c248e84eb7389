// Package cqlbackend implements backend.Backend for Cassandra-compatible
// column stores using gocql.
package cqlbackend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/core/platform"
)

// DefaultRequestTimeout bounds a single request. Data migrations on large
// tables can run for a long time, hence the generous default.
const DefaultRequestTimeout = time.Hour

// Config describes how to reach a cluster.
type Config struct {
	Hosts          []string
	Port           int
	Keyspace       string
	Username       string
	Password       string
	RequestTimeout time.Duration
	// ConnectTimeout bounds dialing a node, zero keeps the driver default.
	ConnectTimeout time.Duration
	Consistency    gocql.Consistency
}

// ParseConfig reads cassandra://[user:pass@]host1,host2[:port]/keyspace[?timeout=30m&consistency=QUORUM].
func ParseConfig(dbURL string) (*Config, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cassandra URL: %w", err)
	}
	if platform.NormalizeDialect(u.Scheme) != platform.Cassandra {
		return nil, fmt.Errorf("not a cassandra URL: %q", dbURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid cassandra URL %q: missing hosts", dbURL)
	}

	cfg := &Config{
		Keyspace:       strings.Trim(u.Path, "/"),
		RequestTimeout: DefaultRequestTimeout,
		Consistency:    gocql.LocalQuorum,
	}
	if cfg.Keyspace == "" {
		return nil, fmt.Errorf("invalid cassandra URL %q: missing keyspace", dbURL)
	}

	for _, host := range strings.Split(u.Host, ",") {
		name, port, found := strings.Cut(host, ":")
		if found {
			p, err := strconv.Atoi(port)
			if err != nil {
				return nil, fmt.Errorf("invalid port in cassandra URL %q: %w", dbURL, err)
			}
			cfg.Port = p
		}
		cfg.Hosts = append(cfg.Hosts, name)
	}

	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}

	params := u.Query()
	if v := params.Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		cfg.RequestTimeout = d
	}
	if v := params.Get("consistency"); v != "" {
		c, err := gocql.ParseConsistencyWrapper(strings.ToUpper(v))
		if err != nil {
			return nil, fmt.Errorf("invalid consistency %q: %w", v, err)
		}
		cfg.Consistency = c
	}

	return cfg, nil
}

// ClusterConfig converts the configuration to a gocql cluster config.
func (c *Config) ClusterConfig() *gocql.ClusterConfig {
	cluster := gocql.NewCluster(c.Hosts...)
	if c.Port != 0 {
		cluster.Port = c.Port
	}
	cluster.Keyspace = c.Keyspace
	cluster.Timeout = c.RequestTimeout
	if c.ConnectTimeout != 0 {
		cluster.ConnectTimeout = c.ConnectTimeout
	}
	cluster.Consistency = c.Consistency
	if c.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: c.Username,
			Password: c.Password,
		}
	}
	return cluster
}

// Backend is a keyspace of a column store cluster. All sessions opened from
// it share one gocql session.
type Backend struct {
	session  *gocql.Session
	keyspace string
	logger   *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// Open connects to the cluster described by a cassandra:// URL.
func Open(dbURL string) (*Backend, error) {
	cfg, err := ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}
	return Connect(cfg)
}

// Connect creates the shared gocql session.
func Connect(cfg *Config) (*Backend, error) {
	session, err := cfg.ClusterConfig().CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}
	return &Backend{
		session:  session,
		keyspace: cfg.Keyspace,
		logger:   slog.Default(),
	}, nil
}

// WithLogger returns a copy of the backend that logs to logger.
func (b *Backend) WithLogger(logger *slog.Logger) *Backend {
	clone := *b
	clone.logger = logger
	return &clone
}

func (b *Backend) Dialect() backend.Dialect {
	d, _ := backend.NewDialect(platform.Cassandra)
	return d
}

func (b *Backend) Namespace() string { return b.keyspace }

func (b *Backend) Open(context.Context) (backend.Session, error) {
	return &session{s: b.session, logger: b.logger}, nil
}

func (b *Backend) Close() error {
	b.session.Close()
	return nil
}

type session struct {
	s      *gocql.Session
	logger *slog.Logger
}

var _ backend.Session = (*session)(nil)

func (s *session) Query(ctx context.Context, stmt string, args ...any) (backend.Rows, error) {
	iter := s.s.Query(stmt, args...).WithContext(ctx).Iter()
	return &rows{iter: iter, scanner: iter.Scanner()}, nil
}

func (s *session) Exec(ctx context.Context, stmt string, args ...any) (backend.Result, error) {
	if err := s.s.Query(stmt, args...).WithContext(ctx).Exec(); err != nil {
		return backend.Result{}, err
	}
	return backend.Result{RowsAffected: -1}, nil
}

// DDL executes a schema change and waits until all nodes agree on the new schema.
func (s *session) DDL(ctx context.Context, stmt string) error {
	if err := s.s.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return err
	}
	if err := s.s.AwaitSchemaAgreement(ctx); err != nil {
		return fmt.Errorf("failed to reach schema agreement: %w", err)
	}
	return nil
}

func (s *session) Prepare(_ context.Context, stmt string) (backend.Prepared, error) {
	return &preparedBatch{session: s, stmt: stmt}, nil
}

func (s *session) SupportsPreparedBatches() bool { return true }

// Close is a no-op, the shared session is closed with the backend.
func (s *session) Close() error { return nil }

// preparedBatch sends each ExecBatch call as one unlogged batch. gocql
// prepares and caches the statement on first use.
type preparedBatch struct {
	session *session
	stmt    string
}

func (p *preparedBatch) ExecBatch(ctx context.Context, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	batch := p.session.s.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, args := range rows {
		batch.Query(p.stmt, args...)
	}
	p.session.logger.Debug("Executing batch", "statement", p.stmt, "rows", len(rows))
	if err := p.session.s.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to execute batch of %d statements: %w", len(rows), err)
	}
	return nil
}

func (p *preparedBatch) Close() error { return nil }

type rows struct {
	iter    *gocql.Iter
	scanner gocql.Scanner
}

func (r *rows) Next() bool { return r.scanner.Next() }

// Scan supports *any destinations, which receive nil for NULL values and the
// natural Go type of the column otherwise.
func (r *rows) Scan(dest ...any) error {
	columns := r.iter.Columns()
	targets := make([]any, len(dest))
	var generic []int
	for i, d := range dest {
		if _, ok := d.(*any); ok && i < len(columns) {
			typ := reflect.TypeOf(columns[i].TypeInfo.New())
			targets[i] = reflect.New(typ).Interface()
			generic = append(generic, i)
			continue
		}
		targets[i] = d
	}

	if err := r.scanner.Scan(targets...); err != nil {
		return err
	}

	for _, i := range generic {
		ptr := reflect.ValueOf(targets[i]).Elem()
		out := dest[i].(*any)
		if ptr.IsNil() {
			*out = nil
			continue
		}
		*out = ptr.Elem().Interface()
	}
	return nil
}

func (r *rows) Columns() ([]string, error) {
	columns := r.iter.Columns()
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names, nil
}

func (r *rows) Err() error { return r.scanner.Err() }

func (r *rows) Close() error { return r.iter.Close() }
