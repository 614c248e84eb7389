package revision

import (
	"time"
)

// Revision is one immutable step of a tree.
type Revision struct {
	// ID is the deterministic identity derived from Tree and Version.
	ID string `yaml:"revision"`
	// Tree is the lineage the revision belongs to.
	Tree string `yaml:"tree"`
	// Version is the semantic version the tree is at after this revision, empty for the root.
	Version string `yaml:"version,omitempty"`
	// Parent is the identity of the previous revision, empty for the root.
	Parent string `yaml:"parent,omitempty"`
	// DependsOn lists revisions of other trees that must be applied first.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Message is a free form description.
	Message string    `yaml:"message,omitempty"`
	Created time.Time `yaml:"created,omitempty"`
}

// NewRoot returns the root revision of tree.
func NewRoot(tree string) *Revision {
	return &Revision{
		ID:      RootID(tree),
		Tree:    tree,
		Message: "Root revision for tree " + tree,
	}
}

// New returns a revision bringing tree to version on top of parent.
func New(tree, version, parent string, dependsOn ...string) *Revision {
	return &Revision{
		ID:        ID(tree, version),
		Tree:      tree,
		Version:   version,
		Parent:    parent,
		DependsOn: dependsOn,
	}
}

// IsRoot reports whether r is the root of its tree.
func (r *Revision) IsRoot() bool {
	return r.Parent == ""
}

// Validate checks that the revision is well formed on its own.
func (r *Revision) Validate() error {
	if r.Tree == "" {
		return structural(r.ID, "tree name is empty")
	}
	if r.IsRoot() {
		if r.Version != "" {
			return structural(r.ID, "root revision cannot carry a version")
		}
		if want := RootID(r.Tree); r.ID != want {
			return structural(r.ID, "root identity does not match tree %q, expected %q", r.Tree, want)
		}
		return nil
	}
	if !ValidVersion(r.Version) {
		return structural(r.ID, "version %q is not MAJOR.MINOR.PATCH", r.Version)
	}
	if want := ID(r.Tree, r.Version); r.ID != want {
		return structural(r.ID, "identity does not match tree %q version %q, expected %q", r.Tree, r.Version, want)
	}
	return nil
}
