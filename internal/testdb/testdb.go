// Package testdb opens throwaway SQLite backends for tests.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/backend/sqlbackend"
)

// Open returns a backend over a fresh on-disk SQLite database that is closed
// when the test ends.
func Open(tb testing.TB) *sqlbackend.Backend {
	tb.Helper()

	b, err := sqlbackend.Open("sqlite://"+filepath.Join(tb.TempDir(), "test.db"), "")
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}
	tb.Cleanup(func() { _ = b.Close() })
	return b
}

// Exec runs statements on a short-lived session.
func Exec(tb testing.TB, b backend.Backend, stmts ...string) {
	tb.Helper()

	ctx := context.Background()
	s, err := b.Open(ctx)
	if err != nil {
		tb.Fatalf("failed to open session: %v", err)
	}
	defer s.Close()

	for _, stmt := range stmts {
		if _, err := s.Exec(ctx, stmt); err != nil {
			tb.Fatalf("failed to execute %q: %v", stmt, err)
		}
	}
}

// QueryStrings returns the first column of every row as strings, NULL as "<nil>".
func QueryStrings(tb testing.TB, b backend.Backend, stmt string, args ...any) []string {
	tb.Helper()

	ctx := context.Background()
	s, err := b.Open(ctx)
	if err != nil {
		tb.Fatalf("failed to open session: %v", err)
	}
	defer s.Close()

	rows, err := s.Query(ctx, stmt, args...)
	if err != nil {
		tb.Fatalf("failed to query %q: %v", stmt, err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var v *string
		if err := rows.Scan(&v); err != nil {
			tb.Fatalf("failed to scan: %v", err)
		}
		if v == nil {
			result = append(result, "<nil>")
			continue
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		tb.Fatalf("failed to read rows: %v", err)
	}
	return result
}
