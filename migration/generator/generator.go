// Package generator scaffolds revision manifests and step files on disk.
package generator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/stokaro/treemig/migration/migrator"
	"github.com/stokaro/treemig/migration/revision"
)

var timeNow = time.Now

// RevisionOptions contains options for revision generation
type RevisionOptions struct {
	// MigPath is the folder holding one sub-folder per tree
	MigPath string
	// Tree is the tree to extend
	Tree string
	// Version is the MAJOR.MINOR.PATCH version of the new revision, it must
	// be greater than the version of the current head
	Version string
	// DependsOn lists revisions of other trees the new revision requires
	DependsOn []string
	// Message describes the revision (optional, defaults to the tree and version)
	Message string
}

// Files represents the generated files
type Files struct {
	Revision *revision.Revision
	Manifest string // Path to the revision manifest
	UpFile   string // Path to the up step file, empty for roots
	DownFile string // Path to the down step file, empty for roots
}

// ValidateTreeName checks that name can be used as a tree and folder name.
func ValidateTreeName(name string) error {
	switch {
	case name == "":
		return &revision.StructuralError{Reason: "tree name is empty"}
	case strings.ContainsAny(name, `/\`) || strings.ContainsFunc(name, unicode.IsSpace):
		return &revision.StructuralError{Reason: fmt.Sprintf("tree name %q must not contain slashes or whitespace", name)}
	case name == "." || name == "..":
		return &revision.StructuralError{Reason: fmt.Sprintf("invalid tree name %q", name)}
	}
	return nil
}

// GenerateTree creates the folder of a new tree with its root revision.
func GenerateTree(migPath, tree string) (*Files, error) {
	if err := ValidateTreeName(tree); err != nil {
		return nil, err
	}

	dir := filepath.Join(migPath, tree)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("tree %s already exists in %s", tree, migPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to check tree folder: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tree folder: %w", err)
	}

	rev := revision.NewRoot(tree)
	rev.Created = timeNow().UTC().Truncate(time.Second)

	manifest, err := writeManifest(dir, rev)
	if err != nil {
		return nil, err
	}
	return &Files{Revision: rev, Manifest: manifest}, nil
}

// GenerateRevision adds a revision on top of the current head of a tree and
// creates empty up and down step files for it.
func GenerateRevision(opts RevisionOptions) (*Files, error) {
	provider, err := migrator.NewFSMigrationProvider(os.DirFS(opts.MigPath))
	if err != nil {
		return nil, err
	}
	graph, err := migrator.Graph(provider)
	if err != nil {
		return nil, err
	}

	head, err := graph.Head(opts.Tree)
	if err != nil {
		return nil, err
	}
	if !revision.ValidVersion(opts.Version) {
		return nil, &revision.StructuralError{Reason: fmt.Sprintf("version %q is not MAJOR.MINOR.PATCH", opts.Version)}
	}
	if revision.CompareVersions(opts.Version, head.Version) <= 0 {
		return nil, &revision.StructuralError{
			Revision: head.ID,
			Reason:   fmt.Sprintf("new version %s must be greater than head version %s", opts.Version, head.Version),
		}
	}
	for _, dep := range opts.DependsOn {
		target, err := graph.Revision(dep)
		if err != nil {
			return nil, err
		}
		if target.Tree == opts.Tree {
			return nil, &revision.StructuralError{Revision: dep, Reason: "dependency is in the same tree"}
		}
	}

	rev := revision.New(opts.Tree, opts.Version, head.ID, opts.DependsOn...)
	rev.Message = opts.Message
	if rev.Message == "" {
		rev.Message = defaultMessage(opts.Tree, opts.Version)
	}
	rev.Created = timeNow().UTC().Truncate(time.Second)

	dir := filepath.Join(opts.MigPath, opts.Tree)
	manifest, err := writeManifest(dir, rev)
	if err != nil {
		return nil, err
	}

	files := &Files{
		Revision: rev,
		Manifest: manifest,
		UpFile:   filepath.Join(dir, rev.ID+".up.sql"),
		DownFile: filepath.Join(dir, rev.ID+".down.sql"),
	}
	upSQL := fmt.Sprintf("-- Upgrade tree %s to version %s\n", rev.Tree, rev.Version)
	downSQL := fmt.Sprintf("-- Downgrade tree %s to version %s\n", rev.Tree, head.Version)
	if head.IsRoot() {
		downSQL = fmt.Sprintf("-- Downgrade tree %s to its root\n", rev.Tree)
	}
	if err := os.WriteFile(files.UpFile, []byte(upSQL), 0644); err != nil { //nolint:gosec // 0644 is fine
		return nil, fmt.Errorf("failed to write up step file: %w", err)
	}
	if err := os.WriteFile(files.DownFile, []byte(downSQL), 0644); err != nil { //nolint:gosec // 0644 is fine
		return nil, fmt.Errorf("failed to write down step file: %w", err)
	}
	return files, nil
}

func defaultMessage(tree, version string) string {
	words := strings.FieldsFunc(tree, func(r rune) bool { return r == '_' || r == '-' })
	return cases.Title(language.English, cases.NoLower).String(strings.Join(words, " ")) + " " + version
}

func writeManifest(dir string, rev *revision.Revision) (string, error) {
	data, err := yaml.Marshal(rev)
	if err != nil {
		return "", fmt.Errorf("failed to encode revision manifest: %w", err)
	}
	path := filepath.Join(dir, rev.ID+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec // 0644 is fine
		return "", fmt.Errorf("failed to write revision manifest: %w", err)
	}
	return path, nil
}
