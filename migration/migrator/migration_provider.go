package migrator

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stokaro/treemig/migration/revision"
)

const (
	manifestSuffix = ".yaml"
	upSuffix       = ".up.sql"
	downSuffix     = ".down.sql"
)

// MigrationProvider provides the migrations of all trees
type MigrationProvider interface {
	// Migrations provides all migrations, grouped by tree, each tree ordered
	// from its root to its head
	Migrations() []*Migration
}

// Graph builds the revision graph of the migrations of a provider.
func Graph(p MigrationProvider) (*revision.Graph, error) {
	migrations := p.Migrations()
	revisions := make([]*revision.Revision, 0, len(migrations))
	for _, m := range migrations {
		revisions = append(revisions, m.Revision)
	}
	return revision.NewGraph(revisions...)
}

// RegisteredMigrationProvider is a simple in-memory implementation of MigrationProvider
type RegisteredMigrationProvider struct {
	migrations []*Migration
	sorted     bool
}

// NewRegisteredMigrationProvider creates a new in-memory migration provider with the given migrations.
// The migrations will be sorted when accessed through the Migrations() method.
func NewRegisteredMigrationProvider(migrations ...*Migration) *RegisteredMigrationProvider {
	return &RegisteredMigrationProvider{
		migrations: migrations,
	}
}

// Register adds a migration to the provider
func (p *RegisteredMigrationProvider) Register(migration *Migration) {
	p.migrations = append(p.migrations, migration)
	p.sorted = false
}

// Migrations returns the registered migrations sorted by tree, roots first
// and then by version
func (p *RegisteredMigrationProvider) Migrations() []*Migration {
	p.maybeSort()
	return p.migrations
}

// maybeSort sorts the migrations if they haven't been sorted yet
func (p *RegisteredMigrationProvider) maybeSort() {
	if p.sorted {
		return
	}
	sortMigrations(p.migrations)
	p.sorted = true
}

// FSMigrationProvider loads migrations from a filesystem laid out as
//
//	<tree>/<id>.yaml       revision manifest
//	<tree>/<id>.up.sql     optional upgrade body
//	<tree>/<id>.down.sql   optional downgrade body
//
// Bodies written in Go are attached with Bind.
type FSMigrationProvider struct {
	fsys       fs.FS
	migrations []*Migration
	byID       map[string]*Migration
}

// NewFSMigrationProvider creates a new filesystem-based migration provider.
// Every manifest must be well formed and stored under the folder of its tree
// with its own identity as file name.
func NewFSMigrationProvider(fsys fs.FS) (*FSMigrationProvider, error) {
	p := &FSMigrationProvider{fsys: fsys, byID: make(map[string]*Migration)}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// Migrations returns the migrations loaded from the filesystem, sorted by
// tree and version.
func (p *FSMigrationProvider) Migrations() []*Migration {
	return p.migrations
}

// Bind attaches Go bodies to a loaded revision. A nil body leaves the current
// one in place.
func (p *FSMigrationProvider) Bind(id string, up, down MigrationFunc) error {
	m, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", revision.ErrUnknownRevision, id)
	}
	if m.Revision.IsRoot() {
		return &revision.StructuralError{Revision: id, Reason: "root revisions have no body"}
	}
	if up != nil {
		m.Up = up
	}
	if down != nil {
		m.Down = down
	}
	return nil
}

func (p *FSMigrationProvider) load() error {
	err := fs.WalkDir(p.fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(name, manifestSuffix) {
			return nil
		}
		return p.loadManifest(name)
	})
	if err != nil {
		return fmt.Errorf("failed to scan migrations directory: %w", err)
	}

	sortMigrations(p.migrations)
	return nil
}

func (p *FSMigrationProvider) loadManifest(name string) error {
	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		return err
	}

	var rev revision.Revision
	if err := yaml.Unmarshal(data, &rev); err != nil {
		return fmt.Errorf("failed to parse revision manifest %s: %w", name, err)
	}
	if err := rev.Validate(); err != nil {
		return err
	}

	dir, file := path.Split(name)
	if tree := path.Base(path.Clean(dir)); tree != rev.Tree {
		return &revision.StructuralError{
			Revision: rev.ID,
			Reason:   fmt.Sprintf("manifest %s is stored outside the folder of tree %q", name, rev.Tree),
		}
	}
	if id := strings.TrimSuffix(file, manifestSuffix); id != rev.ID {
		return &revision.StructuralError{
			Revision: rev.ID,
			Reason:   fmt.Sprintf("manifest file name %s does not match the revision identity", file),
		}
	}
	if _, exists := p.byID[rev.ID]; exists {
		return &revision.StructuralError{Revision: rev.ID, Reason: "duplicate revision"}
	}

	m := &Migration{Revision: &rev}
	if !rev.IsRoot() {
		base := strings.TrimSuffix(name, manifestSuffix)
		m.Up = p.sqlBody(base + upSuffix)
		m.Down = p.sqlBody(base + downSuffix)
	}

	p.migrations = append(p.migrations, m)
	p.byID[rev.ID] = m
	return nil
}

// sqlBody returns a body running the script at name, or nil when there is none.
func (p *FSMigrationProvider) sqlBody(name string) MigrationFunc {
	if _, err := fs.Stat(p.fsys, name); err != nil {
		return nil
	}
	return MigrationFuncFromSQLFilename(name, p.fsys)
}

func sortMigrations(migrations []*Migration) {
	sort.SliceStable(migrations, func(i, j int) bool {
		a, b := migrations[i].Revision, migrations[j].Revision
		if a.Tree != b.Tree {
			return a.Tree < b.Tree
		}
		if a.IsRoot() != b.IsRoot() {
			return a.IsRoot()
		}
		return revision.CompareVersions(a.Version, b.Version) < 0
	})
}
