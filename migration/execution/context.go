// Package execution runs one migration step against a backend and commits the
// tree version if and only if the step body succeeds.
package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/backend/dryrun"
	"github.com/stokaro/treemig/dbschema"
	"github.com/stokaro/treemig/dbschema/types"
	"github.com/stokaro/treemig/migration/backfill"
	"github.com/stokaro/treemig/migration/metadata"
	"github.com/stokaro/treemig/migration/revision"
)

// Mode selects how the target version is committed.
type Mode int

const (
	// ModeNone leaves the metadata table alone, used for root steps.
	ModeNone Mode = iota
	// ModeInsert creates the version key of a tree seen for the first time.
	ModeInsert
	// ModeUpdate moves an existing version key.
	ModeUpdate
	// ModeDelete removes the version key, used when a tree is downgraded to its root.
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeInsert:
		return "insert"
	case ModeUpdate:
		return "update"
	case ModeDelete:
		return "delete"
	default:
		return "none"
	}
}

// Target is the version a step moves its tree to.
type Target struct {
	Tree    string
	Version string
	Mode    Mode
}

// Options tune a single Run.
type Options struct {
	// DryRun routes all writes through a dryrun.Guard.
	DryRun bool
	// Options are free-form step options, see Context.Option.
	Options map[string]string
	Logger  *slog.Logger
	// Overlay carries unexecuted metadata writes between dry-run steps.
	Overlay *metadata.Overlay
	// Transactional wraps the step in a transaction on sessions that support it.
	Transactional bool
	// BatchSize is passed to the rewriter, 0 keeps its default.
	BatchSize     int
	MetadataTable string
	ConfigKey     string
	// OnCommit runs after the version commit and before the transaction
	// commit, with the session the step used.
	OnCommit func(ctx context.Context, session backend.Session) error
}

// PreconditionError reports that a tree is not at the version a step requires.
type PreconditionError struct {
	Tree     string
	Required string
	// Current is empty when the tree has no stored version.
	Current string
	// Dependent is the revision declaring the requirement, when known.
	Dependent string
	// Root is set instead of Required when the requirement is the root
	// revision of Tree.
	Root string
}

func (e *PreconditionError) Error() string {
	requirement := fmt.Sprintf("at version %s or later", e.Required)
	if e.Required == "" && e.Root != "" {
		requirement = "at its root revision " + e.Root
	}
	msg := fmt.Sprintf("tree %s must be %s", e.Tree, requirement)
	if e.Dependent != "" {
		msg = fmt.Sprintf("revision %s requires tree %s %s", e.Dependent, e.Tree, requirement)
	}
	if e.Current == "" {
		return msg + ", but it has no version"
	}
	return msg + ", current version is " + e.Current
}

// Context is handed to a step body. It is valid only during Run.
type Context struct {
	backend backend.Backend
	session backend.Session
	guard   *dryrun.Guard
	target  Target
	opts    Options
	store   *metadata.Store
	logger  *slog.Logger
}

// Run opens a session, runs body and commits target.
//
// The session is always closed. When body fails, nothing is committed and,
// inside a transaction, its changes are rolled back; without a transaction
// statements it already issued stay applied.
func Run(ctx context.Context, b backend.Backend, target Target, opts Options, body func(context.Context, *Context) error) (err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("tree", target.Tree, "version", target.Version)

	session, err := b.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	ec := &Context{
		backend: b,
		session: session,
		target:  target,
		opts:    opts,
		logger:  logger,
	}
	if opts.DryRun {
		ec.guard = dryrun.New(session, b.Dialect()).WithLogger(logger)
		ec.session = ec.guard
	}
	ec.store = metadata.New(ec.session, b.Dialect(), b.Namespace(),
		metadata.WithTable(opts.MetadataTable),
		metadata.WithConfigKey(opts.ConfigKey),
		metadata.WithOverlay(opts.Overlay),
	).WithLogger(logger)

	tx, ok := session.(backend.Transactor)
	inTx := ok && opts.Transactional && !opts.DryRun
	if inTx {
		if err := tx.Begin(ctx); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				if rbErr := tx.Rollback(); rbErr != nil {
					logger.Error("Failed to roll back transaction", "error", rbErr)
				}
			}
		}()
	}

	if body != nil {
		if err := body(ctx, ec); err != nil {
			logger.Error("Migration step failed, version not committed", "error", err)
			return err
		}
	}

	if err := ec.commitVersion(ctx); err != nil {
		return err
	}
	if opts.OnCommit != nil {
		if err := opts.OnCommit(ctx, ec.session); err != nil {
			return err
		}
	}

	if inTx {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	return nil
}

func (c *Context) commitVersion(ctx context.Context) error {
	var err error
	switch c.target.Mode {
	case ModeInsert:
		err = c.store.SetTreeVersion(ctx, c.target.Tree, c.target.Version, true)
	case ModeUpdate:
		err = c.store.SetTreeVersion(ctx, c.target.Tree, c.target.Version, false)
	case ModeDelete:
		err = c.store.DeleteTreeVersion(ctx, c.target.Tree)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to commit version %s of tree %s: %w", c.target.Version, c.target.Tree, err)
	}
	c.logger.Info("Committed tree version", "mode", c.target.Mode.String(), "dry_run", c.opts.DryRun)
	return nil
}

func (c *Context) Query(ctx context.Context, stmt string, args ...any) (backend.Rows, error) {
	return c.session.Query(ctx, stmt, args...)
}

func (c *Context) Exec(ctx context.Context, stmt string, args ...any) (backend.Result, error) {
	return c.session.Exec(ctx, stmt, args...)
}

func (c *Context) DDL(ctx context.Context, stmt string) error {
	return c.session.DDL(ctx, stmt)
}

// Prepare fails with dryrun.ErrUnsupported in dry-run mode.
func (c *Context) Prepare(ctx context.Context, stmt string) (backend.Prepared, error) {
	return c.session.Prepare(ctx, stmt)
}

func (c *Context) SupportsPreparedBatches() bool {
	return c.session.SupportsPreparedBatches()
}

// Session returns the session of the step, wrapped in dry-run mode.
func (c *Context) Session() backend.Session { return c.session }

// Option returns a step option passed with --options name=value.
func (c *Context) Option(name string) (string, bool) {
	v, ok := c.opts.Options[name]
	return v, ok
}

func (c *Context) DryRun() bool { return c.opts.DryRun }

// DryRunStatements returns the writes suppressed so far in dry-run mode.
func (c *Context) DryRunStatements() []dryrun.Statement {
	if c.guard == nil {
		return nil
	}
	return c.guard.Statements()
}

func (c *Context) Tree() string    { return c.target.Tree }
func (c *Context) Version() string { return c.target.Version }

func (c *Context) Dialect() backend.Dialect { return c.backend.Dialect() }

// Namespace is the schema or keyspace of managed tables.
func (c *Context) Namespace() string { return c.backend.Namespace() }

// Table returns the quoted, namespace-qualified name of a table.
func (c *Context) Table(name string) string {
	return backend.QualifiedName(c.backend.Dialect(), c.backend.Namespace(), name)
}

// Metadata returns the metadata store bound to the step session.
func (c *Context) Metadata() *metadata.Store { return c.store }

// Rewriter returns a bulk rewriter bound to the step session.
func (c *Context) Rewriter() *backfill.Rewriter {
	return backfill.New(c.session, c.backend.Dialect(), c.backend.Namespace()).
		WithBatchSize(c.opts.BatchSize).
		WithLogger(c.logger.With("component", "backfill"))
}

// Schema returns a catalog reader for the managed namespace.
func (c *Context) Schema() (types.SchemaReader, error) {
	return dbschema.NewReader(c.backend.Dialect().Name(), c.session, c.backend.Namespace())
}

func (c *Context) Logger() *slog.Logger { return c.logger }

// RequireVersion fails with a PreconditionError unless tree is at least at version.
func (c *Context) RequireVersion(ctx context.Context, tree, version string) error {
	current, found, err := c.store.TreeVersion(ctx, tree)
	if err != nil {
		return err
	}
	if !found || revision.CompareVersions(current, version) < 0 {
		return &PreconditionError{Tree: tree, Required: version, Current: current}
	}
	return nil
}
