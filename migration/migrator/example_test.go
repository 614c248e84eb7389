package migrator_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing/fstest"

	"github.com/go-extras/go-kit/must"

	"github.com/stokaro/treemig/backend/sqlbackend"
	"github.com/stokaro/treemig/migration/execution"
	"github.com/stokaro/treemig/migration/migrator"
	"github.com/stokaro/treemig/migration/revision"
)

// exampleDB opens a SQLite database with an empty metadata table.
func exampleDB(dir string) *sqlbackend.Backend {
	b := must.Must(sqlbackend.Open("sqlite://"+filepath.Join(dir, "example.db"), ""))
	s := must.Must(b.Open(context.Background()))
	defer s.Close()
	must.Must(s.Exec(context.Background(), `CREATE TABLE metadata (name TEXT NOT NULL PRIMARY KEY, value TEXT NOT NULL)`))
	return b
}

// Example demonstrates how to use the migrator programmatically
func ExampleMigrator() {
	dir := must.Must(os.MkdirTemp("", "treemig-example"))
	defer os.RemoveAll(dir)

	b := exampleDB(dir)
	defer b.Close()

	provider := migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{Revision: revision.NewRoot("schema")},
		migrator.CreateMigrationFromSQL(
			revision.New("schema", "1.0.0", revision.RootID("schema")),
			"CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL)",
			"DROP TABLE users",
		),
		&migrator.Migration{
			Revision: revision.New("schema", "1.1.0", revision.ID("schema", "1.0.0")),
			Up: func(ctx context.Context, ec *execution.Context) error {
				return ec.DDL(ctx, "ALTER TABLE "+ec.Table("users")+" ADD COLUMN name TEXT")
			},
		},
	)

	ctx := context.Background()
	m := migrator.NewMigrator(b, provider)

	// A fresh database has no ledger yet, stamp the root of the first tree.
	if _, err := m.Stamp(ctx, "schema", false); err != nil {
		fmt.Printf("Stamp failed: %v\n", err)
		return
	}
	if err := m.Upgrade(ctx, "heads"); err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		return
	}

	state := must.Must(m.Current(ctx))
	fmt.Println("schema version:", state.Versions["schema"])
	fmt.Println("ledger head:", state.Heads["schema"])
	// Output:
	// schema version: 1.1.0
	// ledger head: schema_1.1.0
}

// Example demonstrates loading revisions from a folder per tree
func ExampleNewFSMigrator() {
	dir := must.Must(os.MkdirTemp("", "treemig-example"))
	defer os.RemoveAll(dir)

	b := exampleDB(dir)
	defer b.Close()

	fsys := fstest.MapFS{
		"schema/schema_root.yaml": {Data: []byte("revision: schema_root\ntree: schema\n")},
		"schema/schema_1.0.0.yaml": {Data: []byte(
			"revision: schema_1.0.0\ntree: schema\nversion: 1.0.0\nparent: schema_root\n")},
		"schema/schema_1.0.0.up.sql":   {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);")},
		"schema/schema_1.0.0.down.sql": {Data: []byte("DROP TABLE items;")},
	}

	mig, err := migrator.NewFSMigrator(b, fsys)
	if err != nil {
		fmt.Printf("Failed to create migrator: %v\n", err)
		return
	}

	graph := must.Must(mig.Graph())
	fmt.Println("trees:", graph.Trees())
	fmt.Println("heads:", graph.Heads())
	// Output:
	// trees: [schema]
	// heads: [schema_1.0.0]
}

// Example demonstrates previewing an upgrade
func ExampleMigrator_Plan() {
	dir := must.Must(os.MkdirTemp("", "treemig-example"))
	defer os.RemoveAll(dir)

	b := exampleDB(dir)
	defer b.Close()

	provider := migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{Revision: revision.NewRoot("schema")},
		&migrator.Migration{Revision: revision.New("schema", "1.0.0", "schema_root")},
		&migrator.Migration{Revision: revision.NewRoot("componentA")},
		&migrator.Migration{Revision: revision.New("componentA", "1.0.0", "componentA_root", "schema_1.0.0")},
	)

	ctx := context.Background()
	m := migrator.NewMigrator(b, provider)
	must.Must(m.Stamp(ctx, "schema", false))

	steps := must.Must(m.Plan(ctx, "heads", revision.Up))
	for _, step := range steps {
		fmt.Println(step)
	}
	// Output:
	// up componentA_root (componentA)
	// up schema_1.0.0 (schema)
	// up componentA_1.0.0 (componentA)
}

// Example demonstrates a dry run, which reports the statements a step would
// issue and leaves the database untouched
func ExampleMigrator_WithDryRun() {
	dir := must.Must(os.MkdirTemp("", "treemig-example"))
	defer os.RemoveAll(dir)

	b := exampleDB(dir)
	defer b.Close()

	provider := migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{Revision: revision.NewRoot("schema")},
		&migrator.Migration{
			Revision: revision.New("schema", "1.0.0", "schema_root"),
			Up: func(ctx context.Context, ec *execution.Context) error {
				if err := ec.DDL(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY)"); err != nil {
					return err
				}
				for _, stmt := range ec.DryRunStatements() {
					fmt.Println("would run:", stmt.SQL)
				}
				return nil
			},
		},
	)

	ctx := context.Background()
	m := migrator.NewMigrator(b, provider)
	must.Must(m.Stamp(ctx, "schema", false))

	if err := m.WithDryRun(true).Upgrade(ctx, "heads"); err != nil {
		fmt.Printf("Dry run failed: %v\n", err)
		return
	}

	state := must.Must(m.Current(ctx))
	fmt.Println("stored versions:", len(state.Versions))
	// Output:
	// would run: CREATE TABLE items (id INTEGER PRIMARY KEY)
	// stored versions: 0
}

// Example demonstrates reading step options inside a body
func ExampleMigrator_WithOptions() {
	dir := must.Must(os.MkdirTemp("", "treemig-example"))
	defer os.RemoveAll(dir)

	b := exampleDB(dir)
	defer b.Close()

	provider := migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{Revision: revision.NewRoot("schema")},
		&migrator.Migration{
			Revision: revision.New("schema", "1.0.0", "schema_root"),
			Up: func(ctx context.Context, ec *execution.Context) error {
				if v, ok := ec.Option("replication-factor"); ok {
					fmt.Println("replication factor:", v)
				}
				return nil
			},
		},
	)

	ctx := context.Background()
	m := migrator.NewMigrator(b, provider).WithOptions(map[string]string{"replication-factor": "3"})
	must.Must(m.Stamp(ctx, "schema", false))
	if err := m.Upgrade(ctx, "heads"); err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		return
	}
	// Output:
	// replication factor: 3
}
