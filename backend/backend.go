// Package backend defines the capability interface every storage backend
// implements: sessions with read, write, DDL and optional prepared batches.
package backend

import (
	"context"
)

// Backend is a configured connection to one managed database.
type Backend interface {
	// Dialect describes quoting and placeholder rules.
	Dialect() Dialect
	// Namespace is the schema (relational) or keyspace (column store) holding managed tables.
	Namespace() string
	// Open acquires a session. Callers must Close it.
	Open(ctx context.Context) (Session, error)
	// Close releases all resources of the backend.
	Close() error
}

// Session is a single connection-scoped handle used by one migration step.
type Session interface {
	// Query runs a read statement.
	Query(ctx context.Context, stmt string, args ...any) (Rows, error)
	// Exec runs a data-modifying statement.
	Exec(ctx context.Context, stmt string, args ...any) (Result, error)
	// DDL runs a schema-changing statement.
	DDL(ctx context.Context, stmt string) error
	// Prepare returns a statement template for batched execution.
	Prepare(ctx context.Context, stmt string) (Prepared, error)
	// SupportsPreparedBatches reports whether Prepare may be used.
	SupportsPreparedBatches() bool
	// Close releases the session.
	Close() error
}

// Rows iterates over a query result. *sql.Rows satisfies it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// Prepared is a statement template executed for many argument rows.
type Prepared interface {
	// ExecBatch executes the template once per row of arguments.
	ExecBatch(ctx context.Context, rows [][]any) error
	Close() error
}

// Result describes the outcome of Exec.
type Result struct {
	// RowsAffected is -1 when the backend does not report it.
	RowsAffected int64
	// Skipped is set when the statement was recorded but not executed.
	Skipped bool
}

// Transactor is implemented by sessions that can wrap a step in a transaction.
type Transactor interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error
}
