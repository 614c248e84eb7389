package migrator

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/stokaro/treemig/core/sqlutil"
	"github.com/stokaro/treemig/migration/execution"
	"github.com/stokaro/treemig/migration/revision"
)

// MigrationFunc is the body of a migration step. It reads and writes only
// through the execution context it is given.
type MigrationFunc func(context.Context, *execution.Context) error

// SplitSQLStatements splits a SQL or CQL script into individual statements,
// ignoring comments and semicolons inside quoted text.
func SplitSQLStatements(sql string) []string {
	return sqlutil.SplitSQLStatements(sqlutil.StripComments(sql))
}

// MigrationFuncFromSQL returns a migration function executing every statement
// of a script in order. Schema changes go through DDL, everything else
// through Exec.
func MigrationFuncFromSQL(sql string) MigrationFunc {
	return func(ctx context.Context, ec *execution.Context) error {
		return executeSQLStatements(ctx, ec, sql)
	}
}

// MigrationFuncFromSQLFilename returns a migration function that reads a
// script from fsys when the step runs.
func MigrationFuncFromSQLFilename(filename string, fsys fs.FS) MigrationFunc {
	return func(ctx context.Context, ec *execution.Context) error {
		sql, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}
		return executeSQLStatements(ctx, ec, string(sql))
	}
}

// NoopMigrationFunc is a no-op migration function
func NoopMigrationFunc(context.Context, *execution.Context) error {
	return nil
}

// Migration is one revision together with its bodies. Root revisions have no
// bodies; a nil body only moves the version.
type Migration struct {
	Revision *revision.Revision
	Up       MigrationFunc
	Down     MigrationFunc
}

// ID returns the revision identity.
func (m *Migration) ID() string { return m.Revision.ID }

// CreateMigrationFromSQL creates a migration from SQL strings.
// This is useful for programmatically creating migrations.
func CreateMigrationFromSQL(rev *revision.Revision, upSQL, downSQL string) *Migration {
	return &Migration{
		Revision: rev,
		Up:       MigrationFuncFromSQL(upSQL),
		Down:     MigrationFuncFromSQL(downSQL),
	}
}

var ddlKeywords = []string{"CREATE", "ALTER", "DROP", "TRUNCATE", "RENAME", "COMMENT"}

func isDDL(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	word := strings.ToUpper(fields[0])
	for _, kw := range ddlKeywords {
		if word == kw {
			return true
		}
	}
	return false
}

func executeSQLStatements(ctx context.Context, ec *execution.Context, sql string) error {
	for _, stmt := range SplitSQLStatements(sql) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		var err error
		if isDDL(stmt) {
			err = ec.DDL(ctx, stmt)
		} else {
			_, err = ec.Exec(ctx, stmt)
		}
		if err != nil {
			return fmt.Errorf("failed to execute SQL statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
