package revision

import (
	"strings"
)

const (
	// HeadsTarget selects the head of every tree.
	HeadsTarget = "heads"
	// BaseTarget selects removal of every tree.
	BaseTarget = "base"
)

// ResolveTarget turns a target expression into the revision each affected
// tree should end at. An empty revision means the tree is removed entirely.
//
// Accepted forms are "heads", "base", "<tree>@head", "<tree>@base",
// "<tree>@<version>" and a plain revision identity.
func (g *Graph) ResolveTarget(target string) (map[string]string, error) {
	target = strings.TrimSpace(target)
	switch target {
	case "":
		return nil, structural("", "empty target revision")
	case HeadsTarget:
		result := make(map[string]string, len(g.roots))
		for _, tree := range g.Trees() {
			result[tree] = g.head(tree)
		}
		return result, nil
	case BaseTarget:
		result := make(map[string]string, len(g.roots))
		for _, tree := range g.Trees() {
			result[tree] = ""
		}
		return result, nil
	}

	if tree, ref, ok := strings.Cut(target, "@"); ok {
		if !g.HasTree(tree) {
			return nil, structural(target, "unknown tree %q", tree)
		}
		switch ref {
		case "head":
			return map[string]string{tree: g.head(tree)}, nil
		case BaseTarget:
			return map[string]string{tree: ""}, nil
		case rootMarker:
			return map[string]string{tree: g.roots[tree]}, nil
		}
		if !ValidVersion(ref) {
			return nil, structural(target, "version %q is not MAJOR.MINOR.PATCH", ref)
		}
		id, err := g.Resolve(tree, ref)
		if err != nil {
			return nil, err
		}
		return map[string]string{tree: id}, nil
	}

	rev, err := g.Revision(target)
	if err != nil {
		return nil, err
	}
	return map[string]string{rev.Tree: rev.ID}, nil
}
