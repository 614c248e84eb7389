// Package dryrun provides a session wrapper that lets migration steps read
// real data while every write is recorded instead of executed.
package dryrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stokaro/treemig/backend"
)

// ErrUnsupported matches every UnsupportedError.
var ErrUnsupported = errors.New("operation cannot be previewed in dry-run mode")

// UnsupportedError is returned for operations whose effect cannot be shown
// as a literal statement, such as prepared batches.
type UnsupportedError struct {
	Operation string
	Statement string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported in dry-run mode: %s", e.Operation, e.Statement)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// Statement is one suppressed write.
type Statement struct {
	SQL  string
	Args []any
	// Rendered has the arguments substituted, for display.
	Rendered string
}

// Guard wraps a session: reads pass through, writes are logged and recorded.
type Guard struct {
	session backend.Session
	dialect backend.Dialect
	logger  *slog.Logger

	mu         sync.Mutex
	statements []Statement
}

var _ backend.Session = (*Guard)(nil)

// New wraps session. dialect is used to render statements for the log.
func New(session backend.Session, dialect backend.Dialect) *Guard {
	return &Guard{
		session: session,
		dialect: dialect,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger that receives suppressed statements.
func (g *Guard) WithLogger(logger *slog.Logger) *Guard {
	g.logger = logger
	return g
}

// Statements returns the writes suppressed so far, in order.
func (g *Guard) Statements() []Statement {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Statement(nil), g.statements...)
}

func (g *Guard) record(stmt string, args []any) {
	rendered := backend.Render(g.dialect, stmt, args...)
	g.logger.Info("Dry run, skipping statement", "statement", rendered)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.statements = append(g.statements, Statement{SQL: stmt, Args: args, Rendered: rendered})
}

func (g *Guard) Query(ctx context.Context, stmt string, args ...any) (backend.Rows, error) {
	return g.session.Query(ctx, stmt, args...)
}

func (g *Guard) Exec(_ context.Context, stmt string, args ...any) (backend.Result, error) {
	g.record(stmt, args)
	return backend.Result{Skipped: true}, nil
}

func (g *Guard) DDL(_ context.Context, stmt string) error {
	g.record(stmt, nil)
	return nil
}

func (g *Guard) Prepare(_ context.Context, stmt string) (backend.Prepared, error) {
	return nil, &UnsupportedError{Operation: "prepared batch", Statement: stmt}
}

func (g *Guard) SupportsPreparedBatches() bool { return false }

func (g *Guard) Close() error {
	return g.session.Close()
}
