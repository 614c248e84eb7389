package migrator

import (
	"fmt"
	"maps"
	"slices"

	"github.com/stokaro/treemig/migration/execution"
	"github.com/stokaro/treemig/migration/revision"
)

// Step is one migration step of a plan.
type Step struct {
	Migration *Migration
	Direction revision.Direction
	// Target is the version committed by the step.
	Target execution.Target
	// Head is the ledger head of the tree after the step, empty when the
	// tree leaves the ledger.
	Head string
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s (%s)", s.Direction, s.Migration.ID(), s.Migration.Revision.Tree)
}

// State is what the database reports as applied.
type State struct {
	// Heads is the applied revision of every tree according to the ledger.
	Heads map[string]string
	// Versions is the stored version of every tree.
	Versions map[string]string
	// Persistent is false when Heads are derived from Versions.
	Persistent bool
}

func (s *State) clone() *State {
	c := &State{
		Heads:      make(map[string]string, len(s.Heads)),
		Versions:   make(map[string]string, len(s.Versions)),
		Persistent: s.Persistent,
	}
	maps.Copy(c.Heads, s.Heads)
	maps.Copy(c.Versions, s.Versions)
	return c
}

type planner struct {
	graph      *revision.Graph
	migrations map[string]*Migration
	dependents map[string][]string
	state      *State
}

func newPlanner(graph *revision.Graph, migrations []*Migration, state *State) *planner {
	p := &planner{
		graph:      graph,
		migrations: make(map[string]*Migration, len(migrations)),
		dependents: make(map[string][]string),
		state:      state.clone(),
	}
	for _, m := range migrations {
		p.migrations[m.ID()] = m
		for _, dep := range m.Revision.DependsOn {
			p.dependents[dep] = append(p.dependents[dep], m.ID())
		}
	}
	return p
}

func (p *planner) applied(id string) bool {
	rev, err := p.graph.Revision(id)
	if err != nil {
		return false
	}
	return p.graph.IsAncestor(id, p.state.Heads[rev.Tree])
}

// plan orders the steps moving every tree of targets to its target revision.
// Trees are walked in name order and interleaved wherever a step has to wait
// for a dependency planned in another tree. No step is returned unless every
// step can run.
func (p *planner) plan(targets map[string]string, dir revision.Direction) ([]Step, error) {
	queues := make(map[string][]revision.Step, len(targets))
	for _, tree := range slices.Sorted(maps.Keys(targets)) {
		path, err := p.graph.Path(p.state.Heads[tree], targets[tree])
		if err != nil {
			return nil, err
		}
		for _, step := range path {
			if step.Direction != dir {
				return nil, fmt.Errorf("cannot %s tree %s to %q: it needs %s steps",
					verb(dir), tree, targets[tree], step.Direction)
			}
		}
		if len(path) > 0 {
			queues[tree] = path
		}
	}

	var steps []Step
	for len(queues) > 0 {
		progress := false
		for _, tree := range slices.Sorted(maps.Keys(queues)) {
			for len(queues[tree]) > 0 {
				next := queues[tree][0]
				if p.blocker(next) != nil {
					break
				}
				steps = append(steps, p.apply(next))
				queues[tree] = queues[tree][1:]
				progress = true
			}
			if len(queues[tree]) == 0 {
				delete(queues, tree)
			}
		}
		if !progress {
			tree := slices.Sorted(maps.Keys(queues))[0]
			return nil, p.blocker(queues[tree][0])
		}
	}
	return steps, nil
}

// blocker returns the precondition a step violates in the current state, or nil.
func (p *planner) blocker(step revision.Step) *execution.PreconditionError {
	rev := step.Revision
	if step.Direction == revision.Up {
		for _, dep := range rev.DependsOn {
			if p.applied(dep) {
				continue
			}
			required, _ := p.graph.Revision(dep)
			return p.precondition(required, rev.ID)
		}
		return nil
	}

	for _, id := range p.dependents[rev.ID] {
		if p.applied(id) {
			return p.precondition(rev, id)
		}
	}
	return nil
}

func (p *planner) precondition(required *revision.Revision, dependent string) *execution.PreconditionError {
	err := &execution.PreconditionError{
		Tree:      required.Tree,
		Required:  required.Version,
		Current:   p.state.Versions[required.Tree],
		Dependent: dependent,
	}
	if required.IsRoot() {
		err.Root = required.ID
	}
	return err
}

// apply moves the simulated state over step and returns the planned step.
func (p *planner) apply(step revision.Step) Step {
	rev := step.Revision
	out := Step{
		Migration: p.migrations[rev.ID],
		Direction: step.Direction,
		Target:    execution.Target{Tree: rev.Tree},
	}

	if step.Direction == revision.Up {
		out.Head = rev.ID
		if !rev.IsRoot() {
			out.Target.Version = rev.Version
			out.Target.Mode = execution.ModeUpdate
			if _, stored := p.state.Versions[rev.Tree]; !stored {
				out.Target.Mode = execution.ModeInsert
			}
			p.state.Versions[rev.Tree] = rev.Version
		}
		p.state.Heads[rev.Tree] = rev.ID
		return out
	}

	out.Head = rev.Parent
	if rev.IsRoot() {
		delete(p.state.Heads, rev.Tree)
		return out
	}
	parent, _ := p.graph.Revision(rev.Parent)
	if parent.IsRoot() {
		out.Target.Mode = execution.ModeDelete
		delete(p.state.Versions, rev.Tree)
	} else {
		out.Target.Version = parent.Version
		out.Target.Mode = execution.ModeUpdate
		p.state.Versions[rev.Tree] = parent.Version
	}
	p.state.Heads[rev.Tree] = rev.Parent
	return out
}

func verb(dir revision.Direction) string {
	if dir == revision.Down {
		return "downgrade"
	}
	return "upgrade"
}
