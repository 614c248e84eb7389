// Package sqlbackend implements backend.Backend for relational databases on top of database/sql.
package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/dbschema"
)

// Backend is a relational database reached through database/sql.
type Backend struct {
	db        *sql.DB
	dialect   backend.Dialect
	namespace string
}

var _ backend.Backend = (*Backend)(nil)

// New wraps an open database handle. dialect is one of the platform constants
// or a driver name such as "pgx".
func New(db *sql.DB, dialect, namespace string) (*Backend, error) {
	d, err := backend.NewDialect(dialect)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db, dialect: d, namespace: namespace}, nil
}

// Open connects to a relational database URL. An empty namespace falls back
// to the schema named in the URL, if any.
func Open(dbURL, namespace string) (*Backend, error) {
	db, info, err := dbschema.ConnectWithInfo(dbURL)
	if err != nil {
		return nil, err
	}
	if namespace == "" {
		namespace = info.Schema
	}
	b, err := New(db, info.Dialect, namespace)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) Dialect() backend.Dialect { return b.dialect }

func (b *Backend) Namespace() string { return b.namespace }

// DB returns the underlying handle.
func (b *Backend) DB() *sql.DB { return b.db }

// Open pins one pooled connection for the lifetime of the session so that
// transactions and session state stay on it.
func (b *Backend) Open(ctx context.Context) (backend.Session, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &session{conn: conn}, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type session struct {
	conn *sql.Conn
	tx   *sql.Tx
}

var (
	_ backend.Session    = (*session)(nil)
	_ backend.Transactor = (*session)(nil)
)

func (s *session) target() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

func (s *session) Query(ctx context.Context, stmt string, args ...any) (backend.Rows, error) {
	rows, err := s.target().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *session) Exec(ctx context.Context, stmt string, args ...any) (backend.Result, error) {
	res, err := s.target().ExecContext(ctx, stmt, args...)
	if err != nil {
		return backend.Result{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = -1
	}
	return backend.Result{RowsAffected: affected}, nil
}

func (s *session) DDL(ctx context.Context, stmt string) error {
	_, err := s.target().ExecContext(ctx, stmt)
	return err
}

func (s *session) Prepare(ctx context.Context, stmt string) (backend.Prepared, error) {
	prepared, err := s.target().PrepareContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return &preparedStmt{stmt: prepared}, nil
}

func (s *session) SupportsPreparedBatches() bool { return true }

func (s *session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("transaction already in progress")
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

func (s *session) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("no transaction in progress")
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

func (s *session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

func (s *session) Close() error {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.conn.Close()
}

type preparedStmt struct {
	stmt *sql.Stmt
}

func (p *preparedStmt) ExecBatch(ctx context.Context, rows [][]any) error {
	for _, args := range rows {
		if _, err := p.stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func (p *preparedStmt) Close() error {
	return p.stmt.Close()
}
