// Package ledger records which revision of every tree the migration graph
// considers applied.
package ledger

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sort"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/core/platform"
	"github.com/stokaro/treemig/dbschema"
	"github.com/stokaro/treemig/migration/metadata"
	"github.com/stokaro/treemig/migration/revision"
)

// DefaultTable is the name of the relational ledger table.
const DefaultTable = "revision_ledger"

//go:embed base/schema.sql
var schemaSQL string

//go:embed base/heads.sql
var headsSQL string

//go:embed base/insert_head.sql
var insertHeadSQL string

//go:embed base/delete_head.sql
var deleteHeadSQL string

//go:embed base/purge.sql
var purgeSQL string

// Ledger is the record of applied heads, one revision id per tree.
type Ledger interface {
	// Heads returns the applied revision of every tree in the ledger.
	Heads(ctx context.Context) (map[string]string, error)
	// Record moves the head of tree to rev.
	Record(ctx context.Context, tree, rev string) error
	// Remove drops tree from the ledger.
	Remove(ctx context.Context, tree string) error
	// Stamp writes heads without running any migration; purge clears the ledger first.
	Stamp(ctx context.Context, heads map[string]string, purge bool) error
	// Persistent reports whether the ledger is stored separately from the metadata table.
	Persistent() bool
}

// Option configures the relational ledger.
type Option func(*SQLLedger)

// WithTable overrides the ledger table name.
func WithTable(name string) Option {
	return func(l *SQLLedger) {
		if name != "" {
			l.table = name
		}
	}
}

// WithLogger sets the logger of the relational ledger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *SQLLedger) {
		l.logger = logger
	}
}

// New returns the ledger appropriate for the dialect: a table on relational
// backends, and a view derived from store on the column store.
func New(session backend.Session, dialect backend.Dialect, namespace string, store *metadata.Store, opts ...Option) Ledger {
	if dialect.Name() == platform.Cassandra {
		return NewDerived(store)
	}
	return NewSQL(session, dialect, namespace, opts...)
}

// SQLLedger keeps heads in a two-column table.
type SQLLedger struct {
	session     backend.Session
	dialect     backend.Dialect
	namespace   string
	table       string
	logger      *slog.Logger
	initialized bool
}

// NewSQL creates a relational ledger.
func NewSQL(session backend.Session, dialect backend.Dialect, namespace string, opts ...Option) *SQLLedger {
	l := &SQLLedger{
		session:   session,
		dialect:   dialect,
		namespace: namespace,
		table:     DefaultTable,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SQLLedger) Persistent() bool { return true }

func (l *SQLLedger) qualified() string {
	return backend.QualifiedName(l.dialect, l.namespace, l.table)
}

// Initialize creates the ledger table if it doesn't exist
func (l *SQLLedger) Initialize(ctx context.Context) error {
	if l.initialized {
		return nil
	}
	if err := l.session.DDL(ctx, fmt.Sprintf(schemaSQL, l.qualified())); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	l.initialized = true
	return nil
}

// Heads returns an empty map when the ledger table does not exist yet.
func (l *SQLLedger) Heads(ctx context.Context) (map[string]string, error) {
	reader, err := dbschema.NewReader(l.dialect.Name(), l.session, l.namespace)
	if err != nil {
		return nil, err
	}
	exists, err := reader.TableExists(ctx, l.table)
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger table: %w", err)
	}
	heads := map[string]string{}
	if !exists {
		return heads, nil
	}

	rows, err := l.session.Query(ctx, fmt.Sprintf(headsSQL, l.qualified()))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tree, rev string
		if err := rows.Scan(&tree, &rev); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		heads[tree] = rev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return heads, nil
}

func (l *SQLLedger) Record(ctx context.Context, tree, rev string) error {
	if err := l.Initialize(ctx); err != nil {
		return err
	}
	if err := l.Remove(ctx, tree); err != nil {
		return err
	}
	stmt := fmt.Sprintf(insertHeadSQL, l.qualified(), l.dialect.Placeholder(1), l.dialect.Placeholder(2))
	if _, err := l.session.Exec(ctx, stmt, tree, rev); err != nil {
		return fmt.Errorf("failed to record revision %s: %w", rev, err)
	}
	l.logger.Debug("Recorded ledger head", "tree", tree, "revision", rev)
	return nil
}

func (l *SQLLedger) Remove(ctx context.Context, tree string) error {
	if err := l.Initialize(ctx); err != nil {
		return err
	}
	stmt := fmt.Sprintf(deleteHeadSQL, l.qualified(), l.dialect.Placeholder(1))
	if _, err := l.session.Exec(ctx, stmt, tree); err != nil {
		return fmt.Errorf("failed to remove ledger head of tree %s: %w", tree, err)
	}
	return nil
}

func (l *SQLLedger) Stamp(ctx context.Context, heads map[string]string, purge bool) error {
	if err := l.Initialize(ctx); err != nil {
		return err
	}
	if purge {
		if _, err := l.session.Exec(ctx, fmt.Sprintf(purgeSQL, l.qualified())); err != nil {
			return fmt.Errorf("failed to purge ledger: %w", err)
		}
		l.logger.Info("Purged ledger table", "table", l.table)
	}

	trees := make([]string, 0, len(heads))
	for tree := range heads {
		trees = append(trees, tree)
	}
	sort.Strings(trees)
	for _, tree := range trees {
		if err := l.Record(ctx, tree, heads[tree]); err != nil {
			return err
		}
	}
	return nil
}

// Derived computes heads from the tree versions of the metadata table. Its
// writes are no-ops because the version commit already moved the head.
type Derived struct {
	store *metadata.Store
}

// NewDerived creates a ledger view over store.
func NewDerived(store *metadata.Store) *Derived {
	return &Derived{store: store}
}

func (d *Derived) Persistent() bool { return false }

func (d *Derived) Heads(ctx context.Context) (map[string]string, error) {
	versions, err := d.store.TreeVersions(ctx)
	if err != nil {
		return nil, err
	}
	heads := make(map[string]string, len(versions))
	for tree, version := range versions {
		heads[tree] = revision.ID(tree, version)
	}
	return heads, nil
}

func (d *Derived) Record(context.Context, string, string) error { return nil }

func (d *Derived) Remove(context.Context, string) error { return nil }

func (d *Derived) Stamp(context.Context, map[string]string, bool) error { return nil }
