// Package backfill fills or corrects values of existing rows in large tables
// without relying on transactions or multi-row updates.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/dbschema"
)

// DefaultBatchSize is the number of rows written per batch.
const DefaultBatchSize = 10_000

// Row is one scanned row, addressable by column name.
type Row struct {
	index  map[string]int
	values []any
}

// Get returns the value of column, nil when the column was not selected.
func (r Row) Get(column string) any {
	i, ok := r.index[column]
	if !ok {
		return nil
	}
	return r.values[i]
}

// Job describes one table rewrite.
type Job struct {
	// Table is the unqualified table name.
	Table string
	// PrimaryKey lists the key columns; read from the catalog when empty.
	PrimaryKey []string
	// Columns are the target columns.
	Columns []string
	// Source optionally replaces the default full-table SELECT. It must
	// return the key and target columns, by name.
	Source string
	// Missing reports whether a value needs rewriting; defaults to nil values.
	Missing func(column string, value any) bool
	// Value computes the new value of column for a row.
	Value func(row Row, column string) (any, error)
}

// Constant returns a Value function writing v to every column.
func Constant(v any) func(Row, string) (any, error) {
	return func(Row, string) (any, error) { return v, nil }
}

// Stats summarises a rewrite.
type Stats struct {
	Scanned int
	Passes  int
	Writes  int
	Batches int
}

// BulkRewriteError reports a failed batch. Batches written before it stay
// applied, so rerunning the rewrite only targets what is still missing.
type BulkRewriteError struct {
	Table   string
	Columns []string
	// Written counts the rows written before the failure.
	Written int
	Err     error
}

func (e *BulkRewriteError) Error() string {
	return fmt.Sprintf("failed to rewrite columns %s of table %s after %d rows: %v",
		strings.Join(e.Columns, ", "), e.Table, e.Written, e.Err)
}

func (e *BulkRewriteError) Unwrap() error { return e.Err }

// Rewriter executes backfill jobs through a session.
type Rewriter struct {
	session   backend.Session
	dialect   backend.Dialect
	namespace string
	batchSize int
	logger    *slog.Logger
}

// New creates a rewriter writing tables of namespace through session.
func New(session backend.Session, dialect backend.Dialect, namespace string) *Rewriter {
	return &Rewriter{
		session:   session,
		dialect:   dialect,
		namespace: namespace,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
}

// WithBatchSize returns a copy of the rewriter with a different batch size.
func (r *Rewriter) WithBatchSize(n int) *Rewriter {
	tmp := *r
	if n > 0 {
		tmp.batchSize = n
	}
	return &tmp
}

// WithLogger returns a copy of the rewriter that logs to l.
func (r *Rewriter) WithLogger(l *slog.Logger) *Rewriter {
	tmp := *r
	tmp.logger = l
	return &tmp
}

// Rewrite scans the table once, plans the writes and issues them in sorted
// key order. Running it again over already rewritten data writes nothing.
func (r *Rewriter) Rewrite(ctx context.Context, job Job) (*Stats, error) {
	if err := r.prepareJob(ctx, &job); err != nil {
		return nil, err
	}

	missing, rows, scanned, err := r.scan(ctx, job)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Scanned: scanned}

	counts := make(map[string]int, len(missing))
	for column, keys := range missing {
		counts[column] = len(keys)
	}
	r.logger.Debug("Scanned table", "table", job.Table, "rows", scanned, "missing", counts)
	if len(rows) > 0 {
		r.logger.Info("Rewriting records", "table", job.Table, "records", len(rows))
	}

	for _, pass := range Plan(missing) {
		batches, err := r.write(ctx, job, pass, rows)
		stats.Batches += batches
		if err != nil {
			return stats, err
		}
		stats.Passes++
		stats.Writes += pass.Writes()
		r.logger.Debug("Columns are done", "table", job.Table, "columns", pass.Columns, "rows", pass.Writes())
	}

	r.logger.Info("Rewrite finished", "table", job.Table, "writes", stats.Writes, "passes", stats.Passes)
	return stats, nil
}

func (r *Rewriter) prepareJob(ctx context.Context, job *Job) error {
	if job.Table == "" {
		return errors.New("backfill job has no table")
	}
	if len(job.Columns) == 0 {
		return fmt.Errorf("backfill job for table %s has no columns", job.Table)
	}
	if job.Value == nil {
		return fmt.Errorf("backfill job for table %s has no value function", job.Table)
	}
	if job.Missing == nil {
		job.Missing = func(_ string, value any) bool { return value == nil }
	}
	if len(job.PrimaryKey) > 0 {
		return nil
	}

	reader, err := dbschema.NewReader(r.dialect.Name(), r.session, r.namespace)
	if err != nil {
		return err
	}
	table, err := reader.ReadTable(ctx, job.Table)
	if err != nil {
		return fmt.Errorf("failed to read primary key of table %s: %w", job.Table, err)
	}
	if len(table.PrimaryKey) == 0 {
		return fmt.Errorf("table %s has no primary key", job.Table)
	}
	job.PrimaryKey = table.PrimaryKey
	return nil
}

func (r *Rewriter) quoteAll(names []string) []string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = r.dialect.QuoteIdent(name)
	}
	return quoted
}

func (r *Rewriter) source(job Job) string {
	if job.Source != "" {
		return job.Source
	}
	columns := append(append([]string{}, job.PrimaryKey...), job.Columns...)
	return fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(r.quoteAll(columns), ", "),
		backend.QualifiedName(r.dialect, r.namespace, job.Table))
}

// scan returns, per target column, the keys of rows needing a rewrite, and
// the scanned rows of those keys.
func (r *Rewriter) scan(ctx context.Context, job Job) (map[string][]Key, map[string]Row, int, error) {
	result, err := r.session.Query(ctx, r.source(job))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to scan table %s: %w", job.Table, err)
	}
	defer result.Close()

	names, err := result.Columns()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read columns of table %s: %w", job.Table, err)
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	for _, name := range append(append([]string{}, job.PrimaryKey...), job.Columns...) {
		if _, ok := index[name]; !ok {
			return nil, nil, 0, fmt.Errorf("scan of table %s does not return column %s", job.Table, name)
		}
	}

	missing := map[string][]Key{}
	rows := map[string]Row{}
	scanned := 0
	for result.Next() {
		values := make([]any, len(names))
		dest := make([]any, len(names))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := result.Scan(dest...); err != nil {
			return nil, nil, 0, fmt.Errorf("failed to scan row of table %s: %w", job.Table, err)
		}
		scanned++

		row := Row{index: index, values: values}
		key := make(Key, len(job.PrimaryKey))
		for i, column := range job.PrimaryKey {
			key[i] = row.Get(column)
		}
		for _, column := range job.Columns {
			if job.Missing(column, row.Get(column)) {
				missing[column] = append(missing[column], key)
				rows[key.String()] = row
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to scan table %s: %w", job.Table, err)
	}
	return missing, rows, scanned, nil
}

func (r *Rewriter) updateStatement(job Job, columns []string) string {
	set := make([]string, len(columns))
	for i, column := range columns {
		set[i] = fmt.Sprintf("%s = %s", r.dialect.QuoteIdent(column), r.dialect.Placeholder(i+1))
	}
	where := make([]string, len(job.PrimaryKey))
	for i, column := range job.PrimaryKey {
		where[i] = fmt.Sprintf("%s = %s", r.dialect.QuoteIdent(column), r.dialect.Placeholder(len(columns)+i+1))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		backend.QualifiedName(r.dialect, r.namespace, job.Table),
		strings.Join(set, ", "),
		strings.Join(where, " AND "))
}

func (r *Rewriter) write(ctx context.Context, job Job, pass Pass, rows map[string]Row) (int, error) {
	stmt := r.updateStatement(job, pass.Columns)
	fail := func(written int, err error) error {
		return &BulkRewriteError{Table: job.Table, Columns: pass.Columns, Written: written, Err: err}
	}

	var prepared backend.Prepared
	if r.session.SupportsPreparedBatches() {
		p, err := r.session.Prepare(ctx, stmt)
		if err != nil {
			return 0, fail(0, err)
		}
		defer p.Close()
		prepared = p
	}

	batches := 0
	written := 0
	skipped := false
	for start := 0; start < len(pass.Keys); start += r.batchSize {
		end := min(start+r.batchSize, len(pass.Keys))

		batch := make([][]any, 0, end-start)
		for _, key := range pass.Keys[start:end] {
			row := rows[key.String()]
			args := make([]any, 0, len(pass.Columns)+len(key))
			for _, column := range pass.Columns {
				v, err := job.Value(row, column)
				if err != nil {
					return batches, fail(written, fmt.Errorf("failed to compute value of column %s: %w", column, err))
				}
				args = append(args, v)
			}
			batch = append(batch, append(args, key...))
		}

		r.logger.Debug("Writing batch", "table", job.Table, "columns", pass.Columns, "rows", len(batch))
		if prepared != nil {
			if err := prepared.ExecBatch(ctx, batch); err != nil {
				return batches, fail(written, err)
			}
		} else if !skipped {
			for i, args := range batch {
				res, err := r.session.Exec(ctx, stmt, args...)
				if err != nil {
					return batches, fail(written+i, err)
				}
				// A session that records instead of writing sees one row per pass.
				if res.Skipped {
					skipped = true
					break
				}
			}
		}
		batches++
		written += len(batch)
	}
	if skipped {
		r.logger.Info("Dry run, skipping rewrite", "table", job.Table, "columns", pass.Columns, "rows", written, "statement", stmt)
	}
	return batches, nil
}
