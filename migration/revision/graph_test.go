package revision_test

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/treemig/migration/revision"
)

// testGraph builds two trees: schema (root, 1.0.0, 1.9.0, 2.0.0) and
// componentA (root, 1.0.0, 1.1.0 depending on schema 2.0.0).
func testGraph(c *qt.C) *revision.Graph {
	g, err := revision.NewGraph(
		revision.NewRoot("schema"),
		revision.New("schema", "1.0.0", "schema_root"),
		revision.New("schema", "1.9.0", "schema_1.0.0"),
		revision.New("schema", "2.0.0", "schema_1.9.0"),
		revision.NewRoot("componentA"),
		revision.New("componentA", "1.0.0", "componentA_root"),
		revision.New("componentA", "1.1.0", "componentA_1.0.0", "schema_2.0.0"),
	)
	c.Assert(err, qt.IsNil)
	return g
}

func stepIDs(steps []revision.Step) []string {
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		ids = append(ids, s.Direction.String()+":"+s.Revision.ID)
	}
	return ids
}

func TestGraph_HeadsAndBases(t *testing.T) {
	c := qt.New(t)
	g := testGraph(c)

	c.Assert(g.Trees(), qt.DeepEquals, []string{"componentA", "schema"})
	c.Assert(g.Bases(), qt.DeepEquals, []string{"componentA_root", "schema_root"})
	c.Assert(g.Heads(), qt.DeepEquals, []string{"componentA_1.1.0", "schema_2.0.0"})
	c.Assert(g.IsHead("schema_2.0.0"), qt.IsTrue)
	c.Assert(g.IsHead("schema_1.9.0"), qt.IsFalse)
}

func TestGraph_SingleRootTree(t *testing.T) {
	c := qt.New(t)

	g, err := revision.NewGraph(revision.NewRoot("widgets"))
	c.Assert(err, qt.IsNil)
	c.Assert(g.Bases(), qt.DeepEquals, []string{"widgets_root"})
	c.Assert(g.Heads(), qt.DeepEquals, []string{"widgets_root"})
}

func TestGraph_Resolve(t *testing.T) {
	c := qt.New(t)
	g := testGraph(c)

	id, err := g.Resolve("schema", "1.9.0")
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, "schema_1.9.0")

	id, err = g.Resolve("schema", "")
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, "schema_root")

	_, err = g.Resolve("nope", "1.0.0")
	var structErr *revision.StructuralError
	c.Assert(errors.As(err, &structErr), qt.IsTrue)

	_, err = g.Resolve("schema", "3.0.0")
	c.Assert(errors.Is(err, revision.ErrUnknownRevision), qt.IsTrue)
}

func TestGraph_Path(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		to       string
		expected []string
	}{
		{
			name:     "upgrade from nothing",
			from:     "",
			to:       "schema_1.9.0",
			expected: []string{"up:schema_root", "up:schema_1.0.0", "up:schema_1.9.0"},
		},
		{
			name:     "upgrade from middle",
			from:     "schema_1.0.0",
			to:       "schema_2.0.0",
			expected: []string{"up:schema_1.9.0", "up:schema_2.0.0"},
		},
		{
			name:     "downgrade",
			from:     "schema_2.0.0",
			to:       "schema_1.0.0",
			expected: []string{"down:schema_2.0.0", "down:schema_1.9.0"},
		},
		{
			name:     "downgrade to nothing",
			from:     "schema_1.0.0",
			to:       "",
			expected: []string{"down:schema_1.0.0", "down:schema_root"},
		},
		{
			name:     "same revision",
			from:     "schema_1.0.0",
			to:       "schema_1.0.0",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			g := testGraph(c)

			steps, err := g.Path(tt.from, tt.to)
			c.Assert(err, qt.IsNil)
			c.Assert(stepIDs(steps), qt.DeepEquals, tt.expected)
		})
	}
}

func TestGraph_PathErrors(t *testing.T) {
	c := qt.New(t)
	g := testGraph(c)

	_, err := g.Path("schema_1.0.0", "schema_7.0.0")
	c.Assert(errors.Is(err, revision.ErrUnknownRevision), qt.IsTrue)

	_, err = g.Path("bogus", "schema_1.0.0")
	c.Assert(errors.Is(err, revision.ErrUnknownRevision), qt.IsTrue)

	_, err = g.Path("schema_1.0.0", "componentA_1.0.0")
	var structErr *revision.StructuralError
	c.Assert(errors.As(err, &structErr), qt.IsTrue)
}

func TestGraph_History(t *testing.T) {
	c := qt.New(t)
	g := testGraph(c)

	history, err := g.History("componentA")
	c.Assert(err, qt.IsNil)
	c.Assert(history, qt.HasLen, 3)
	c.Assert(history[0].ID, qt.Equals, "componentA_root")
	c.Assert(history[2].DependsOn, qt.DeepEquals, []string{"schema_2.0.0"})

	c.Assert(g.IsAncestor("schema_root", "schema_2.0.0"), qt.IsTrue)
	c.Assert(g.IsAncestor("schema_2.0.0", "schema_1.0.0"), qt.IsFalse)
}

func TestNewGraph_StructuralErrors(t *testing.T) {
	tests := []struct {
		name      string
		revisions []*revision.Revision
		message   string
	}{
		{
			name: "missing parent",
			revisions: []*revision.Revision{
				revision.NewRoot("schema"),
				revision.New("schema", "2.0.0", "schema_1.0.0"),
			},
			message: `.*parent "schema_1.0.0" does not exist`,
		},
		{
			name: "branching tree",
			revisions: []*revision.Revision{
				revision.NewRoot("schema"),
				revision.New("schema", "1.0.0", "schema_root"),
				revision.New("schema", "1.1.0", "schema_root"),
			},
			message: `.*branches at "schema_root".*`,
		},
		{
			name: "decreasing version",
			revisions: []*revision.Revision{
				revision.NewRoot("schema"),
				revision.New("schema", "2.0.0", "schema_root"),
				revision.New("schema", "1.0.0", "schema_2.0.0"),
			},
			message: `.*does not increase.*`,
		},
		{
			name: "bad identity",
			revisions: []*revision.Revision{
				revision.NewRoot("schema"),
				{ID: "schema_9", Tree: "schema", Version: "1.0.0", Parent: "schema_root"},
			},
			message: `.*identity does not match.*`,
		},
		{
			name: "malformed version",
			revisions: []*revision.Revision{
				revision.NewRoot("schema"),
				{ID: "schema_1.0", Tree: "schema", Version: "1.0", Parent: "schema_root"},
			},
			message: `.*not MAJOR.MINOR.PATCH`,
		},
		{
			name: "unknown dependency",
			revisions: []*revision.Revision{
				revision.NewRoot("schema"),
				revision.New("schema", "1.0.0", "schema_root", "other_1.0.0"),
			},
			message: `.*dependency "other_1.0.0" does not exist`,
		},
		{
			name: "tree without root",
			revisions: []*revision.Revision{
				revision.NewRoot("schema"),
				revision.New("other", "1.0.0", "schema_root"),
			},
			message: `.*belongs to tree "schema"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			_, err := revision.NewGraph(tt.revisions...)
			c.Assert(err, qt.ErrorMatches, tt.message)

			var structErr *revision.StructuralError
			c.Assert(errors.As(err, &structErr), qt.IsTrue)
		})
	}
}

func TestGraph_ResolveTarget(t *testing.T) {
	tests := []struct {
		target   string
		expected map[string]string
	}{
		{"heads", map[string]string{"schema": "schema_2.0.0", "componentA": "componentA_1.1.0"}},
		{"base", map[string]string{"schema": "", "componentA": ""}},
		{"schema@head", map[string]string{"schema": "schema_2.0.0"}},
		{"schema@base", map[string]string{"schema": ""}},
		{"schema@root", map[string]string{"schema": "schema_root"}},
		{"schema@1.9.0", map[string]string{"schema": "schema_1.9.0"}},
		{"componentA_1.0.0", map[string]string{"componentA": "componentA_1.0.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			c := qt.New(t)
			g := testGraph(c)

			targets, err := g.ResolveTarget(tt.target)
			c.Assert(err, qt.IsNil)
			c.Assert(targets, qt.DeepEquals, tt.expected)
		})
	}
}

func TestGraph_ResolveTargetErrors(t *testing.T) {
	c := qt.New(t)
	g := testGraph(c)

	_, err := g.ResolveTarget("widgets@head")
	c.Assert(err, qt.ErrorMatches, `.*unknown tree "widgets"`)

	_, err = g.ResolveTarget("schema@1.2")
	c.Assert(err, qt.ErrorMatches, `.*not MAJOR.MINOR.PATCH`)

	_, err = g.ResolveTarget("schema_5.0.0")
	c.Assert(errors.Is(err, revision.ErrUnknownRevision), qt.IsTrue)

	_, err = g.ResolveTarget("")
	c.Assert(err, qt.IsNotNil)
}
