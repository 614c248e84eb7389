// Package consistency compares the ledger of applied revisions with the tree
// versions stored in the metadata table.
package consistency

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stokaro/treemig/migration/revision"
)

// Kind classifies a mismatch.
type Kind string

const (
	// LedgerOnly is a revision recorded as applied without a matching stored version.
	LedgerOnly Kind = "ledger-only"
	// StoreOnly is a stored version without a matching ledger entry.
	StoreOnly Kind = "store-only"
)

// Mismatch is one inconsistency between the ledger and the metadata table.
type Mismatch struct {
	Kind Kind
	// Tree is known for store-only mismatches and for ledger heads the graph can resolve.
	Tree           string
	LedgerRevision string
	StoredVersion  string
	StoredRevision string
}

func (m Mismatch) String() string {
	switch m.Kind {
	case LedgerOnly:
		if m.Tree == "" {
			return fmt.Sprintf("revision %s is in the ledger only", m.LedgerRevision)
		}
		return fmt.Sprintf("revision %s (tree %s) is in the ledger only", m.LedgerRevision, m.Tree)
	default:
		return fmt.Sprintf("version %s of tree %s (revision %s) is in the metadata table only",
			m.StoredVersion, m.Tree, m.StoredRevision)
	}
}

// Report is the outcome of a validation.
type Report struct {
	Mismatches []Mismatch
}

// Consistent reports whether no mismatch was found.
func (r *Report) Consistent() bool { return len(r.Mismatches) == 0 }

// Err returns a *ConsistencyError for an inconsistent report, nil otherwise.
func (r *Report) Err() error {
	if r.Consistent() {
		return nil
	}
	return &ConsistencyError{Mismatches: r.Mismatches}
}

// ConsistencyError lists every mismatch found. It is never repaired
// automatically; stamp or fix the tables manually.
type ConsistencyError struct {
	Mismatches []Mismatch
}

func (e *ConsistencyError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.String()
	}
	return "ledger and metadata versions are inconsistent: " + strings.Join(parts, "; ")
}

// Validator compares ledger heads with stored tree versions.
type Validator struct {
	graph *revision.Graph
}

// NewValidator creates a validator. graph is optional and only used to name
// the tree of ledger-only revisions.
func NewValidator(graph *revision.Graph) *Validator {
	return &Validator{graph: graph}
}

// Validate compares heads, the revision ids recorded in the ledger, with
// versions, the stored version of every tree. Ledger heads listed in bases
// (root revisions of trees not yet in the metadata table) are consistent.
func (v *Validator) Validate(heads []string, versions map[string]string, bases []string) *Report {
	ledger := make(map[string]bool, len(heads))
	for _, id := range heads {
		ledger[id] = true
	}
	exempt := make(map[string]bool, len(bases))
	for _, id := range bases {
		exempt[id] = true
	}

	stored := make(map[string]string, len(versions))
	trees := make([]string, 0, len(versions))
	for tree, version := range versions {
		stored[revision.ID(tree, version)] = tree
		trees = append(trees, tree)
	}
	sort.Strings(trees)

	report := &Report{}

	ids := append([]string(nil), heads...)
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := stored[id]; ok || exempt[id] {
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			Kind:           LedgerOnly,
			Tree:           v.treeOf(id),
			LedgerRevision: id,
		})
	}

	for _, tree := range trees {
		id := revision.ID(tree, versions[tree])
		if ledger[id] {
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			Kind:           StoreOnly,
			Tree:           tree,
			StoredVersion:  versions[tree],
			StoredRevision: id,
		})
	}

	return report
}

func (v *Validator) treeOf(id string) string {
	if v.graph == nil {
		return ""
	}
	rev, err := v.graph.Revision(id)
	if err != nil {
		return ""
	}
	return rev.Tree
}
