package migrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"slices"

	"github.com/stokaro/treemig/backend"
	"github.com/stokaro/treemig/config"
	"github.com/stokaro/treemig/core/platform"
	"github.com/stokaro/treemig/dbschema"
	"github.com/stokaro/treemig/migration/consistency"
	"github.com/stokaro/treemig/migration/execution"
	"github.com/stokaro/treemig/migration/ledger"
	"github.com/stokaro/treemig/migration/metadata"
	"github.com/stokaro/treemig/migration/revision"
)

var (
	// ErrLedgerEmpty is returned by Upgrade and Downgrade on a relational
	// backend whose ledger has never been stamped.
	ErrLedgerEmpty = errors.New("revision ledger is empty, run stamp first")
	// ErrStampUnsupported is returned by Stamp on the column store, whose
	// ledger is derived from the metadata table.
	ErrStampUnsupported = errors.New("stamp is only supported on relational backends")
	// ErrNothingToStamp is returned by Stamp when there is no stored version
	// and no tree was named.
	ErrNothingToStamp = errors.New("no versions defined in metadata table, specify a tree to stamp")
)

// Migrator applies the revisions of a provider to one backend
type Migrator struct {
	backend           backend.Backend
	migrationProvider MigrationProvider
	settings          *config.Settings
	dryRun            bool
	options           map[string]string
	logger            *slog.Logger
}

// NewFSMigrator creates a new migrator that loads revision manifests and SQL
// bodies from a filesystem, see FSMigrationProvider.
func NewFSMigrator(b backend.Backend, fsys fs.FS) (*Migrator, error) {
	provider, err := NewFSMigrationProvider(fsys)
	if err != nil {
		return nil, err
	}
	return NewMigrator(b, provider), nil
}

// NewMigrator creates a new migrator with the given backend
func NewMigrator(b backend.Backend, provider MigrationProvider) *Migrator {
	return &Migrator{
		backend:           b,
		migrationProvider: provider,
		settings:          config.DefaultSettings(),
		logger:            slog.Default(),
	}
}

// WithLogger sets the logger for the migrator
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// WithDryRun returns a migrator that previews writes instead of applying them.
func (m *Migrator) WithDryRun(dryRun bool) *Migrator {
	tmp := *m
	tmp.dryRun = dryRun
	return &tmp
}

// WithOptions returns a migrator passing options to every step body.
func (m *Migrator) WithOptions(options map[string]string) *Migrator {
	tmp := *m
	tmp.options = options
	return &tmp
}

// WithSettings returns a migrator using table names, batch size and
// transaction mode from settings.
func (m *Migrator) WithSettings(settings *config.Settings) *Migrator {
	tmp := *m
	tmp.settings = settings
	return &tmp
}

// MigrationProvider returns the migration provider used by the migrator
func (m *Migrator) MigrationProvider() MigrationProvider {
	return m.migrationProvider
}

// Graph returns the revision graph of all migrations.
func (m *Migrator) Graph() (*revision.Graph, error) {
	return Graph(m.migrationProvider)
}

func (m *Migrator) store(session backend.Session) *metadata.Store {
	return metadata.New(session, m.backend.Dialect(), m.backend.Namespace(),
		metadata.WithTable(m.settings.MetadataTable),
		metadata.WithConfigKey(m.settings.ConfigKey),
	).WithLogger(m.logger)
}

func (m *Migrator) ledger(session backend.Session, store *metadata.Store) ledger.Ledger {
	return ledger.New(session, m.backend.Dialect(), m.backend.Namespace(), store,
		ledger.WithTable(m.settings.LedgerTable),
		ledger.WithLogger(m.logger),
	)
}

// Current reads the ledger heads and stored tree versions. A missing
// metadata table reads as no versions.
func (m *Migrator) Current(ctx context.Context) (*State, error) {
	session, err := m.backend.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	store := m.store(session)
	reader, err := dbschema.NewReader(m.backend.Dialect().Name(), session, m.backend.Namespace())
	if err != nil {
		return nil, err
	}
	exists, err := reader.TableExists(ctx, store.Table())
	if err != nil {
		return nil, fmt.Errorf("failed to check metadata table: %w", err)
	}

	state := &State{Heads: map[string]string{}, Versions: map[string]string{}}
	if exists {
		if state.Versions, err = store.TreeVersions(ctx); err != nil {
			return nil, fmt.Errorf("failed to read tree versions: %w", err)
		}
	}

	l := m.ledger(session, store)
	state.Persistent = l.Persistent()
	if !state.Persistent && !exists {
		return state, nil
	}
	if state.Heads, err = l.Heads(ctx); err != nil {
		return nil, fmt.Errorf("failed to read ledger heads: %w", err)
	}
	return state, nil
}

// Validate compares the ledger heads with the stored tree versions.
func (m *Migrator) Validate(ctx context.Context) (*consistency.Report, error) {
	graph, err := m.Graph()
	if err != nil {
		return nil, err
	}
	state, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	return validate(graph, state), nil
}

func validate(graph *revision.Graph, state *State) *consistency.Report {
	heads := slices.Sorted(maps.Values(state.Heads))
	return consistency.NewValidator(graph).Validate(heads, state.Versions, graph.Bases())
}

// Plan returns the steps Upgrade (dir revision.Up) or Downgrade would run to
// reach target, without touching the database.
func (m *Migrator) Plan(ctx context.Context, target string, dir revision.Direction) ([]Step, error) {
	graph, err := m.Graph()
	if err != nil {
		return nil, err
	}
	state, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	return m.plan(graph, state, target, dir)
}

func (m *Migrator) plan(graph *revision.Graph, state *State, target string, dir revision.Direction) ([]Step, error) {
	targets, err := graph.ResolveTarget(target)
	if err != nil {
		return nil, err
	}
	return newPlanner(graph, m.migrationProvider.Migrations(), state).plan(targets, dir)
}

// Upgrade applies all revisions up to target. See revision.Graph.ResolveTarget
// for the accepted target expressions.
func (m *Migrator) Upgrade(ctx context.Context, target string) error {
	return m.migrate(ctx, target, revision.Up)
}

// Downgrade reverts all revisions above target.
func (m *Migrator) Downgrade(ctx context.Context, target string) error {
	return m.migrate(ctx, target, revision.Down)
}

func (m *Migrator) migrate(ctx context.Context, target string, dir revision.Direction) error {
	graph, err := m.Graph()
	if err != nil {
		return err
	}
	state, err := m.Current(ctx)
	if err != nil {
		return err
	}
	if state.Persistent && len(state.Heads) == 0 {
		return ErrLedgerEmpty
	}
	if err := validate(graph, state).Err(); err != nil {
		return err
	}

	steps, err := m.plan(graph, state, target, dir)
	if err != nil {
		return fmt.Errorf("failed to %s to %s: %w", verb(dir), target, err)
	}
	if len(steps) == 0 {
		m.logger.Info("Nothing to migrate", "target", target)
		return nil
	}

	var overlay *metadata.Overlay
	if m.dryRun {
		overlay = metadata.NewOverlay()
	}
	for _, step := range steps {
		if err := m.runStep(ctx, step, overlay); err != nil {
			return fmt.Errorf("failed to %s revision %s: %w", verb(step.Direction), step.Migration.ID(), err)
		}
	}

	m.logger.Info("Migration completed", "target", target, "steps", len(steps), "dry_run", m.dryRun)
	return nil
}

func (m *Migrator) runStep(ctx context.Context, step Step, overlay *metadata.Overlay) error {
	body := step.Migration.Up
	if step.Direction == revision.Down {
		body = step.Migration.Down
	}

	m.logger.Info("Running migration step",
		"tree", step.Target.Tree,
		"revision", step.Migration.ID(),
		"direction", step.Direction.String(),
		"dry_run", m.dryRun,
	)

	opts := execution.Options{
		DryRun:        m.dryRun,
		Options:       m.options,
		Logger:        m.logger,
		Overlay:       overlay,
		Transactional: m.settings.Transactional,
		BatchSize:     m.settings.BatchSize,
		MetadataTable: m.settings.MetadataTable,
		ConfigKey:     m.settings.ConfigKey,
		OnCommit: func(ctx context.Context, session backend.Session) error {
			l := m.ledger(session, m.store(session))
			if step.Head == "" {
				return l.Remove(ctx, step.Target.Tree)
			}
			return l.Record(ctx, step.Target.Tree, step.Head)
		},
	}

	return execution.Run(ctx, m.backend, step.Target, opts, body)
}

// Stamp writes the ledger heads implied by the stored tree versions without
// running any step. When tree is named only that tree is stamped, at its
// root if it has no stored version. With purge the ledger is cleared first. A missing metadata
// table is created. In dry-run mode the heads are only returned.
func (m *Migrator) Stamp(ctx context.Context, tree string, purge bool) (map[string]string, error) {
	if platform.NormalizeDialect(m.backend.Dialect().Name()) == platform.Cassandra {
		return nil, ErrStampUnsupported
	}

	graph, err := m.Graph()
	if err != nil {
		return nil, err
	}
	state, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}

	heads := make(map[string]string, len(state.Versions)+1)
	for t, version := range state.Versions {
		heads[t] = revision.ID(t, version)
	}
	if tree != "" {
		head, ok := heads[tree]
		if !ok {
			root, err := graph.Root(tree)
			if err != nil {
				return nil, err
			}
			head = root.ID
		}
		heads = map[string]string{tree: head}
	}
	if len(heads) == 0 {
		return nil, ErrNothingToStamp
	}

	if m.dryRun {
		m.logger.Info("Dry run, ledger not stamped", "heads", heads)
		return heads, nil
	}

	session, err := m.backend.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	if err := m.store(session).CreateTable(ctx); err != nil {
		return nil, err
	}
	l := ledger.NewSQL(session, m.backend.Dialect(), m.backend.Namespace(),
		ledger.WithTable(m.settings.LedgerTable),
		ledger.WithLogger(m.logger),
	)
	if err := l.Stamp(ctx, heads, purge); err != nil {
		return nil, fmt.Errorf("failed to stamp ledger: %w", err)
	}
	m.logger.Info("Stamped ledger", "heads", heads, "purge", purge)
	return heads, nil
}
