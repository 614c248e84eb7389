package migrator_test

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/treemig/internal/testdb"
	"github.com/stokaro/treemig/migration/execution"
	"github.com/stokaro/treemig/migration/migrator"
	"github.com/stokaro/treemig/migration/revision"
)

func ids(migrations []*migrator.Migration) []string {
	result := make([]string, len(migrations))
	for i, m := range migrations {
		result[i] = m.ID()
	}
	return result
}

func TestRegisteredMigrationProvider_Sorting(t *testing.T) {
	c := qt.New(t)

	provider := migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{Revision: revision.New("schema", "1.10.0", "schema_1.9.0")},
		&migrator.Migration{Revision: revision.New("componentA", "1.0.0", "componentA_root")},
		&migrator.Migration{Revision: revision.NewRoot("schema")},
	)
	provider.Register(&migrator.Migration{Revision: revision.New("schema", "1.9.0", "schema_root")})
	provider.Register(&migrator.Migration{Revision: revision.NewRoot("componentA")})

	c.Assert(ids(provider.Migrations()), qt.DeepEquals, []string{
		"componentA_root",
		"componentA_1.0.0",
		"schema_root",
		"schema_1.9.0",
		"schema_1.10.0",
	})

	graph, err := migrator.Graph(provider)
	c.Assert(err, qt.IsNil)
	c.Assert(graph.Heads(), qt.DeepEquals, []string{"componentA_1.0.0", "schema_1.10.0"})
}

func manifests() fstest.MapFS {
	return fstest.MapFS{
		"schema/schema_root.yaml": &fstest.MapFile{Data: []byte(`
revision: schema_root
tree: schema
message: Root revision for tree schema
`)},
		"schema/schema_1.0.0.yaml": &fstest.MapFile{Data: []byte(`
revision: schema_1.0.0
tree: schema
version: 1.0.0
parent: schema_root
message: Create items
created: 2024-05-01T10:00:00Z
`)},
		"schema/schema_1.0.0.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);")},
		"schema/schema_1.0.0.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE items;")},
		"componentA/componentA_root.yaml": &fstest.MapFile{Data: []byte(`
revision: componentA_root
tree: componentA
`)},
		"componentA/componentA_1.0.0.yaml": &fstest.MapFile{Data: []byte(`
revision: componentA_1.0.0
tree: componentA
version: 1.0.0
parent: componentA_root
depends_on:
  - schema_1.0.0
`)},
		"README.md": &fstest.MapFile{Data: []byte("not a manifest")},
	}
}

func TestNewFSMigrationProvider(t *testing.T) {
	c := qt.New(t)

	provider, err := migrator.NewFSMigrationProvider(manifests())
	c.Assert(err, qt.IsNil)

	migrations := provider.Migrations()
	c.Assert(ids(migrations), qt.DeepEquals, []string{
		"componentA_root",
		"componentA_1.0.0",
		"schema_root",
		"schema_1.0.0",
	})

	c.Assert(migrations[1].Revision.DependsOn, qt.DeepEquals, []string{"schema_1.0.0"})
	c.Assert(migrations[1].Up, qt.IsNil)
	c.Assert(migrations[2].Up, qt.IsNil)
	c.Assert(migrations[3].Revision.Message, qt.Equals, "Create items")
	c.Assert(migrations[3].Revision.Created.Year(), qt.Equals, 2024)
	c.Assert(migrations[3].Up, qt.IsNotNil)
	c.Assert(migrations[3].Down, qt.IsNotNil)
}

func TestNewFSMigrationProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name: "identity does not match derivation",
			fsys: fstest.MapFS{"schema/schema_2.0.0.yaml": &fstest.MapFile{Data: []byte(
				"revision: schema_2.0.0\ntree: schema\nversion: 1.0.0\nparent: schema_root\n")}},
			wantErr: `invalid revision "schema_2.0.0": identity does not match tree "schema" version "1.0.0", expected "schema_1.0.0"`,
		},
		{
			name: "wrong tree folder",
			fsys: fstest.MapFS{"other/schema_root.yaml": &fstest.MapFile{Data: []byte(
				"revision: schema_root\ntree: schema\n")}},
			wantErr: `invalid revision "schema_root": manifest other/schema_root.yaml is stored outside the folder of tree "schema"`,
		},
		{
			name: "file name differs from identity",
			fsys: fstest.MapFS{"schema/root.yaml": &fstest.MapFile{Data: []byte(
				"revision: schema_root\ntree: schema\n")}},
			wantErr: `invalid revision "schema_root": manifest file name root.yaml does not match the revision identity`,
		},
		{
			name:    "malformed yaml",
			fsys:    fstest.MapFS{"schema/schema_root.yaml": &fstest.MapFile{Data: []byte("revision: [")}},
			wantErr: `failed to scan migrations directory: failed to parse revision manifest schema/schema_root.yaml: .*`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			provider, err := migrator.NewFSMigrationProvider(tt.fsys)
			c.Assert(provider, qt.IsNil)
			c.Assert(err, qt.ErrorMatches, `(failed to scan migrations directory: )?`+tt.wantErr)
		})
	}
}

func TestNewFSMigrationProvider_StructuralErrorType(t *testing.T) {
	c := qt.New(t)

	_, err := migrator.NewFSMigrationProvider(fstest.MapFS{
		"schema/schema_root.yaml": &fstest.MapFile{Data: []byte("revision: schema_root\ntree: schema\nversion: 1.0.0\n")},
	})
	var structural *revision.StructuralError
	c.Assert(errors.As(err, &structural), qt.IsTrue)
	c.Assert(structural.Revision, qt.Equals, "schema_root")
}

func TestFSMigrationProvider_Bind(t *testing.T) {
	c := qt.New(t)

	provider, err := migrator.NewFSMigrationProvider(manifests())
	c.Assert(err, qt.IsNil)

	called := false
	up := func(context.Context, *execution.Context) error {
		called = true
		return nil
	}
	c.Assert(provider.Bind("componentA_1.0.0", up, nil), qt.IsNil)
	c.Assert(provider.Bind("componentA_9.0.0", up, nil), qt.ErrorIs, revision.ErrUnknownRevision)
	c.Assert(provider.Bind("componentA_root", up, nil), qt.ErrorMatches, `invalid revision "componentA_root": root revisions have no body`)

	m := provider.Migrations()[1]
	c.Assert(m.ID(), qt.Equals, "componentA_1.0.0")
	c.Assert(m.Up(context.Background(), nil), qt.IsNil)
	c.Assert(called, qt.IsTrue)
	c.Assert(m.Down, qt.IsNil)
}

func TestNewFSMigrator_Upgrade(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	b := testdb.Open(t)
	testdb.Exec(t, b, `CREATE TABLE metadata (name TEXT NOT NULL PRIMARY KEY, value TEXT NOT NULL)`)

	m, err := migrator.NewFSMigrator(b, manifests())
	c.Assert(err, qt.IsNil)

	_, err = m.Stamp(ctx, "schema", false)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Upgrade(ctx, "heads"), qt.IsNil)

	c.Assert(testdb.QueryStrings(t, b, `SELECT name FROM sqlite_master WHERE name = 'items'`), qt.DeepEquals, []string{"items"})
	c.Assert(versions(t, b), qt.DeepEquals, []string{
		"version:componentA=1.0.0",
		"version:schema=1.0.0",
	})
}

type errorFS struct{}

func (errorFS) Open(name string) (fs.File, error) {
	return nil, fs.ErrPermission
}

func TestNewFSMigrator_FilesystemError(t *testing.T) {
	c := qt.New(t)

	m, err := migrator.NewFSMigrator(testdb.Open(t), errorFS{})
	c.Assert(m, qt.IsNil)
	c.Assert(err, qt.ErrorMatches, `failed to scan migrations directory: .*permission denied`)
}
