// Package metadata reads and writes the name/value metadata table kept in
// every managed database: per-tree versions under "version:<tree>" and the
// frozen configuration blob.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/core/platform"
)

const (
	// DefaultTable is the name of the metadata table.
	DefaultTable = "metadata"
	// DefaultConfigKey holds the frozen configuration blob.
	DefaultConfigKey = "config:frozen.json"

	versionPrefix = "version:"
	// partition of every metadata row on the column store
	metaPart = 0
)

var (
	ErrKeyExists   = errors.New("key already exists")
	ErrKeyNotFound = errors.New("key not found")
)

// Item is one row of the metadata table.
type Item struct {
	Name  string
	Value string
}

// Store accesses the metadata table through a backend session.
type Store struct {
	session   backend.Session
	dialect   backend.Dialect
	namespace string
	table     string
	configKey string
	overlay   *Overlay
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the metadata table name.
func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

// WithConfigKey overrides the key of the frozen configuration blob.
func WithConfigKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.configKey = key
		}
	}
}

// WithOverlay shares an overlay between stores, typically all steps of one dry run.
func WithOverlay(o *Overlay) Option {
	return func(s *Store) {
		if o != nil {
			s.overlay = o
		}
	}
}

// New creates a store over session.
func New(session backend.Session, dialect backend.Dialect, namespace string, opts ...Option) *Store {
	s := &Store{
		session:   session,
		dialect:   dialect,
		namespace: namespace,
		table:     DefaultTable,
		configKey: DefaultConfigKey,
		overlay:   NewOverlay(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithLogger returns a copy of the store that logs to logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	clone := *s
	clone.logger = logger
	return &clone
}

// Table returns the unqualified table name.
func (s *Store) Table() string { return s.table }

func (s *Store) partitioned() bool {
	return s.dialect.Name() == platform.Cassandra
}

func (s *Store) qualified() string {
	return backend.QualifiedName(s.dialect, s.namespace, s.table)
}

// keyFilter returns the WHERE clause selecting one key, with its arguments,
// using placeholders from position start.
func (s *Store) keyFilter(start int, key string) (string, []any) {
	name := s.dialect.QuoteIdent("name")
	if s.partitioned() {
		where := fmt.Sprintf("%s = %s AND %s = %s",
			s.dialect.QuoteIdent("meta_part"), s.dialect.Placeholder(start),
			name, s.dialect.Placeholder(start+1))
		return where, []any{metaPart, key}
	}
	return fmt.Sprintf("%s = %s", name, s.dialect.Placeholder(start)), []any{key}
}

// CreateTable creates the metadata table if it does not exist.
func (s *Store) CreateTable(ctx context.Context) error {
	var stmt string
	switch s.dialect.Name() {
	case platform.Cassandra:
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (meta_part int, name text, value text, PRIMARY KEY (meta_part, name))`, s.qualified())
	case platform.MySQL, platform.MariaDB:
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name VARCHAR(255) NOT NULL PRIMARY KEY, value TEXT NOT NULL)`, s.qualified())
	default:
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT NOT NULL PRIMARY KEY, value TEXT NOT NULL)`, s.qualified())
	}
	if err := s.session.DDL(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}
	return nil
}

// Get returns the value of key; found is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if v, ok, known := s.overlay.lookup(key); known {
		return v, ok, nil
	}

	where, args := s.keyFilter(1, key)
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s", s.dialect.QuoteIdent("value"), s.qualified(), where)
	rows, err := s.session.Query(ctx, stmt, args...)
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata key %s: %w", key, err)
	}
	defer rows.Close()

	if rows.Next() {
		var v *string
		if err := rows.Scan(&v); err != nil {
			return "", false, fmt.Errorf("failed to scan metadata key %s: %w", key, err)
		}
		if v != nil {
			value, found = *v, true
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("failed to read metadata key %s: %w", key, err)
	}
	return value, found, nil
}

// Items returns all rows, sorted by name.
func (s *Store) Items(ctx context.Context) ([]Item, error) {
	stmt := fmt.Sprintf("SELECT %s, %s FROM %s",
		s.dialect.QuoteIdent("name"), s.dialect.QuoteIdent("value"), s.qualified())
	var args []any
	if s.partitioned() {
		stmt += fmt.Sprintf(" WHERE %s = %s", s.dialect.QuoteIdent("meta_part"), s.dialect.Placeholder(1))
		args = append(args, metaPart)
	}

	rows, err := s.session.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var name string
		var value *string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		if value != nil {
			values[name] = *value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	s.overlay.merge(values)

	items := make([]Item, 0, len(values))
	for name, value := range values {
		items = append(items, Item{Name: name, Value: value})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// Insert adds a new key. It fails with ErrKeyExists if the key is present.
func (s *Store) Insert(ctx context.Context, key, value string) error {
	_, found, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("failed to insert metadata key %s: %w", key, ErrKeyExists)
	}
	return s.insert(ctx, key, value)
}

func (s *Store) insert(ctx context.Context, key, value string) error {
	q := s.dialect.QuoteIdent
	var stmt string
	var args []any
	if s.partitioned() {
		stmt = fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s)",
			s.qualified(), q("meta_part"), q("name"), q("value"), backend.Placeholders(s.dialect, 1, 3))
		args = []any{metaPart, key, value}
	} else {
		stmt = fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s)",
			s.qualified(), q("name"), q("value"), backend.Placeholders(s.dialect, 1, 2))
		args = []any{key, value}
	}

	res, err := s.session.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to insert metadata key %s: %w", key, err)
	}
	if res.Skipped {
		s.overlay.set(key, value)
	}
	s.logger.Debug("Inserted metadata key", "key", key, "value", value, "skipped", res.Skipped)
	return nil
}

// Update replaces the value of an existing key. It fails with ErrKeyNotFound
// if the key is absent.
func (s *Store) Update(ctx context.Context, key, value string) error {
	_, found, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("failed to update metadata key %s: %w", key, ErrKeyNotFound)
	}

	where, args := s.keyFilter(2, key)
	stmt := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s",
		s.qualified(), s.dialect.QuoteIdent("value"), s.dialect.Placeholder(1), where)
	res, err := s.session.Exec(ctx, stmt, append([]any{value}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update metadata key %s: %w", key, err)
	}
	if res.Skipped {
		s.overlay.set(key, value)
	} else if !s.partitioned() && res.RowsAffected == 0 {
		return fmt.Errorf("failed to update metadata key %s: %w", key, ErrKeyNotFound)
	}
	s.logger.Debug("Updated metadata key", "key", key, "value", value, "skipped", res.Skipped)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	where, args := s.keyFilter(1, key)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", s.qualified(), where)
	res, err := s.session.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to delete metadata key %s: %w", key, err)
	}
	if res.Skipped {
		s.overlay.delete(key)
	}
	s.logger.Debug("Deleted metadata key", "key", key, "skipped", res.Skipped)
	return nil
}

// VersionKey returns the metadata key holding the version of tree.
func VersionKey(tree string) string {
	return versionPrefix + tree
}

// TreeVersions returns the stored version of every tree.
func (s *Store) TreeVersions(ctx context.Context) (map[string]string, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return nil, err
	}
	versions := map[string]string{}
	for _, item := range items {
		if tree, ok := strings.CutPrefix(item.Name, versionPrefix); ok {
			versions[tree] = item.Value
		}
	}
	return versions, nil
}

// TreeVersion returns the stored version of one tree.
func (s *Store) TreeVersion(ctx context.Context, tree string) (string, bool, error) {
	return s.Get(ctx, VersionKey(tree))
}

// SetTreeVersion stores the version of tree. With insert the key must not
// exist yet, otherwise it must.
func (s *Store) SetTreeVersion(ctx context.Context, tree, version string, insert bool) error {
	if insert {
		return s.Insert(ctx, VersionKey(tree), version)
	}
	return s.Update(ctx, VersionKey(tree), version)
}

// DeleteTreeVersion removes the version of tree.
func (s *Store) DeleteTreeVersion(ctx context.Context, tree string) error {
	return s.Delete(ctx, VersionKey(tree))
}

// Config returns the frozen configuration blob. Numbers are returned as
// json.Number. It fails with ErrKeyNotFound if the blob was never stored.
func (s *Store) Config(ctx context.Context) (map[string]any, error) {
	raw, found, err := s.Get(ctx, s.configKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("failed to read configuration %s: %w", s.configKey, ErrKeyNotFound)
	}
	cfg, err := decodeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration %s: %w", s.configKey, err)
	}
	return cfg, nil
}

// decodeConfig keeps numbers as json.Number so that a rewrite of the blob
// reproduces them exactly.
func decodeConfig(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	cfg := map[string]any{}
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return cfg, nil
}

// StoreConfig writes the whole configuration blob, creating it if needed.
func (s *Store) StoreConfig(ctx context.Context, cfg map[string]any) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, found, err := s.Get(ctx, s.configKey)
	if err != nil {
		return err
	}
	if found {
		return s.Update(ctx, s.configKey, string(data))
	}
	return s.insert(ctx, s.configKey, string(data))
}

// UpdateConfig merges updates into the configuration blob and removes the
// deletes keys, writing the result back as a whole.
func (s *Store) UpdateConfig(ctx context.Context, updates map[string]any, deletes []string) error {
	cfg, err := s.Config(ctx)
	if err != nil {
		return err
	}
	for key, value := range updates {
		cfg[key] = value
	}
	for _, key := range deletes {
		delete(cfg, key)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return s.Update(ctx, s.configKey, string(data))
}
