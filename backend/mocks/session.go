// Package mocks provides an in-memory backend that records every statement.
package mocks

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/stokaro/treemig/backend"
)

// Call is one recorded interaction with a Session.
type Call struct {
	Kind  string // query, exec, ddl, prepare, batch
	Stmt  string
	Args  []any
	Batch [][]any
}

// Session is a backend.Session that records calls and answers queries from callbacks.
type Session struct {
	mu sync.Mutex

	// QueryFunc answers Query; nil returns an empty result.
	QueryFunc func(stmt string, args []any) (backend.Rows, error)
	// ExecFunc answers Exec and every row of a prepared batch; nil reports one affected row.
	ExecFunc func(stmt string, args []any) (backend.Result, error)
	// DDLFunc answers DDL; nil succeeds.
	DDLFunc func(stmt string) error
	// PreparedBatches is returned by SupportsPreparedBatches.
	PreparedBatches bool

	calls  []Call
	closed bool
}

var _ backend.Session = (*Session)(nil)

func (s *Session) record(call Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

// Calls returns the recorded calls.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsOf returns the recorded calls of one kind.
func (s *Session) CallsOf(kind string) []Call {
	var result []Call
	for _, call := range s.Calls() {
		if call.Kind == kind {
			result = append(result, call)
		}
	}
	return result
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Query(_ context.Context, stmt string, args ...any) (backend.Rows, error) {
	s.record(Call{Kind: "query", Stmt: stmt, Args: args})
	if s.QueryFunc == nil {
		return NewRows(nil), nil
	}
	return s.QueryFunc(stmt, args)
}

func (s *Session) Exec(_ context.Context, stmt string, args ...any) (backend.Result, error) {
	s.record(Call{Kind: "exec", Stmt: stmt, Args: args})
	return s.exec(stmt, args)
}

func (s *Session) exec(stmt string, args []any) (backend.Result, error) {
	if s.ExecFunc == nil {
		return backend.Result{RowsAffected: 1}, nil
	}
	return s.ExecFunc(stmt, args)
}

func (s *Session) DDL(_ context.Context, stmt string) error {
	s.record(Call{Kind: "ddl", Stmt: stmt})
	if s.DDLFunc == nil {
		return nil
	}
	return s.DDLFunc(stmt)
}

func (s *Session) Prepare(_ context.Context, stmt string) (backend.Prepared, error) {
	s.record(Call{Kind: "prepare", Stmt: stmt})
	if !s.PreparedBatches {
		return nil, fmt.Errorf("prepared statements are not supported")
	}
	return &prepared{session: s, stmt: stmt}, nil
}

func (s *Session) SupportsPreparedBatches() bool { return s.PreparedBatches }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type prepared struct {
	session *Session
	stmt    string
}

func (p *prepared) ExecBatch(_ context.Context, rows [][]any) error {
	p.session.record(Call{Kind: "batch", Stmt: p.stmt, Batch: rows})
	for _, args := range rows {
		if _, err := p.session.exec(p.stmt, args); err != nil {
			return err
		}
	}
	return nil
}

func (p *prepared) Close() error { return nil }

// Rows is a static backend.Rows.
type Rows struct {
	columns []string
	data    [][]any
	pos     int
	err     error
}

// NewRows returns rows with the given column names and values.
func NewRows(columns []string, data ...[]any) *Rows {
	return &Rows{columns: columns, data: data}
}

// WithErr makes Err report err once iteration completes.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.data) {
		return fmt.Errorf("scan called without a current row")
	}
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destination arguments, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func (r *Rows) Columns() ([]string, error) { return r.columns, nil }
func (r *Rows) Err() error                 { return r.err }
func (r *Rows) Close() error               { return nil }

func assign(dest, value any) error {
	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("destination is not a non-nil pointer")
	}
	elem := target.Elem()
	if value == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(elem.Type()):
		elem.Set(v)
	case elem.Kind() == reflect.Pointer && v.Type().AssignableTo(elem.Type().Elem()):
		ptr := reflect.New(elem.Type().Elem())
		ptr.Elem().Set(v)
		elem.Set(ptr)
	case v.Type().ConvertibleTo(elem.Type()):
		elem.Set(v.Convert(elem.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", value, elem.Type())
	}
	return nil
}
