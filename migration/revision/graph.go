package revision

import (
	"fmt"
	"slices"
	"sort"
)

// Direction of a migration step.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Step is one revision to apply in a given direction.
type Step struct {
	Revision  *Revision
	Direction Direction
}

// Graph is the set of all revisions of all trees. Every tree is a single chain
// starting at its root; dependency edges may point into other trees.
type Graph struct {
	revisions map[string]*Revision
	children  map[string]string
	roots     map[string]string // tree -> root id
}

// NewGraph validates revisions and links them into a graph.
func NewGraph(revisions ...*Revision) (*Graph, error) {
	g := &Graph{
		revisions: make(map[string]*Revision, len(revisions)),
		children:  make(map[string]string),
		roots:     make(map[string]string),
	}

	for _, rev := range revisions {
		if err := rev.Validate(); err != nil {
			return nil, err
		}
		if _, exists := g.revisions[rev.ID]; exists {
			return nil, structural(rev.ID, "duplicate revision")
		}
		g.revisions[rev.ID] = rev
		if rev.IsRoot() {
			g.roots[rev.Tree] = rev.ID
		}
	}

	for _, rev := range revisions {
		if rev.IsRoot() {
			continue
		}
		parent, ok := g.revisions[rev.Parent]
		if !ok {
			return nil, structural(rev.ID, "parent %q does not exist", rev.Parent)
		}
		if parent.Tree != rev.Tree {
			return nil, structural(rev.ID, "parent %q belongs to tree %q", rev.Parent, parent.Tree)
		}
		if CompareVersions(rev.Version, parent.Version) <= 0 {
			return nil, structural(rev.ID, "version %s does not increase over parent version %q", rev.Version, parent.Version)
		}
		if sibling, taken := g.children[rev.Parent]; taken {
			return nil, structural(rev.ID, "tree %q branches at %q (also continued by %q)", rev.Tree, rev.Parent, sibling)
		}
		g.children[rev.Parent] = rev.ID
	}

	for _, rev := range revisions {
		if _, ok := g.roots[rev.Tree]; !ok {
			return nil, structural(rev.ID, "tree %q has no root revision", rev.Tree)
		}
		for _, dep := range rev.DependsOn {
			target, ok := g.revisions[dep]
			if !ok {
				return nil, structural(rev.ID, "dependency %q does not exist", dep)
			}
			if target.Tree == rev.Tree {
				return nil, structural(rev.ID, "dependency %q is in the same tree", dep)
			}
		}
	}

	return g, nil
}

// Revision returns the revision with the given identity.
func (g *Graph) Revision(id string) (*Revision, error) {
	rev, ok := g.revisions[id]
	if !ok {
		return nil, unknown(id)
	}
	return rev, nil
}

// Resolve returns the identity of version in tree, checking that both exist.
// An empty version resolves to the root.
func (g *Graph) Resolve(tree, version string) (string, error) {
	if _, ok := g.roots[tree]; !ok {
		return "", structural("", "unknown tree %q", tree)
	}
	id := RootID(tree)
	if version != "" {
		id = ID(tree, version)
	}
	if _, ok := g.revisions[id]; !ok {
		return "", unknown(id)
	}
	return id, nil
}

// Trees returns all tree names in sorted order.
func (g *Graph) Trees() []string {
	trees := make([]string, 0, len(g.roots))
	for tree := range g.roots {
		trees = append(trees, tree)
	}
	sort.Strings(trees)
	return trees
}

// HasTree reports whether tree is known.
func (g *Graph) HasTree(tree string) bool {
	_, ok := g.roots[tree]
	return ok
}

// Bases returns the root identities of all trees, ordered by tree name.
func (g *Graph) Bases() []string {
	trees := g.Trees()
	bases := make([]string, 0, len(trees))
	for _, tree := range trees {
		bases = append(bases, g.roots[tree])
	}
	return bases
}

// Heads returns the latest revision of every tree, ordered by tree name.
func (g *Graph) Heads() []string {
	trees := g.Trees()
	heads := make([]string, 0, len(trees))
	for _, tree := range trees {
		heads = append(heads, g.head(tree))
	}
	return heads
}

// Root returns the root revision of tree.
func (g *Graph) Root(tree string) (*Revision, error) {
	id, ok := g.roots[tree]
	if !ok {
		return nil, structural("", "unknown tree %q", tree)
	}
	return g.revisions[id], nil
}

// Head returns the latest revision of tree.
func (g *Graph) Head(tree string) (*Revision, error) {
	if _, ok := g.roots[tree]; !ok {
		return nil, structural("", "unknown tree %q", tree)
	}
	return g.revisions[g.head(tree)], nil
}

func (g *Graph) head(tree string) string {
	id := g.roots[tree]
	for {
		next, ok := g.children[id]
		if !ok {
			return id
		}
		id = next
	}
}

// IsHead reports whether id is the latest revision of its tree.
func (g *Graph) IsHead(id string) bool {
	rev, ok := g.revisions[id]
	if !ok {
		return false
	}
	_, hasChild := g.children[rev.ID]
	return !hasChild
}

// History returns the chain of tree from its root to its head.
func (g *Graph) History(tree string) ([]*Revision, error) {
	id, ok := g.roots[tree]
	if !ok {
		return nil, structural("", "unknown tree %q", tree)
	}
	var chain []*Revision
	for {
		chain = append(chain, g.revisions[id])
		next, ok := g.children[id]
		if !ok {
			return chain, nil
		}
		id = next
	}
}

// IsAncestor reports whether ancestor is id itself or precedes it in the same tree.
func (g *Graph) IsAncestor(ancestor, id string) bool {
	for id != "" {
		if id == ancestor {
			return true
		}
		rev, ok := g.revisions[id]
		if !ok {
			return false
		}
		id = rev.Parent
	}
	return false
}

// Path returns the ordered steps that move a tree from revision from to revision to.
// An empty from means nothing of the tree is applied yet, an empty to means the
// tree is removed completely. Both endpoints must belong to the same tree.
func (g *Graph) Path(from, to string) ([]Step, error) {
	if from == "" && to == "" {
		return nil, nil
	}

	var tree string
	for _, id := range []string{from, to} {
		if id == "" {
			continue
		}
		rev, ok := g.revisions[id]
		if !ok {
			return nil, unknown(id)
		}
		if tree != "" && rev.Tree != tree {
			return nil, structural(id, "belongs to tree %q, not %q", rev.Tree, tree)
		}
		tree = rev.Tree
	}

	if from == to {
		return nil, nil
	}

	if from == "" || (to != "" && g.IsAncestor(from, to)) {
		var steps []Step
		for id := to; id != from; id = g.revisions[id].Parent {
			steps = append(steps, Step{Revision: g.revisions[id], Direction: Up})
		}
		slices.Reverse(steps)
		return steps, nil
	}

	if to == "" || g.IsAncestor(to, from) {
		var steps []Step
		for id := from; id != to; id = g.revisions[id].Parent {
			steps = append(steps, Step{Revision: g.revisions[id], Direction: Down})
		}
		return steps, nil
	}

	return nil, fmt.Errorf("no path from %s to %s", from, to)
}
