package backfill_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/treemig/migration/backfill"
)

func totalWrites(passes []backfill.Pass) int {
	n := 0
	for _, p := range passes {
		n += p.Writes()
	}
	return n
}

func TestPlan_OverlappingColumns(t *testing.T) {
	c := qt.New(t)

	p1, p2, p3 := backfill.Key{"p1"}, backfill.Key{"p2"}, backfill.Key{"p3"}
	passes := backfill.Plan(map[string][]backfill.Key{
		"A": {p1, p2},
		"B": {p2, p3},
	})

	c.Assert(passes, qt.DeepEquals, []backfill.Pass{
		{Columns: []string{"A", "B"}, Keys: []backfill.Key{p2}},
		{Columns: []string{"A"}, Keys: []backfill.Key{p1}},
		{Columns: []string{"B"}, Keys: []backfill.Key{p3}},
	})
	c.Assert(totalWrites(passes), qt.Equals, 3)
}

func TestPlan(t *testing.T) {
	c := qt.New(t)

	k := func(ids ...int64) []backfill.Key {
		keys := make([]backfill.Key, len(ids))
		for i, id := range ids {
			keys[i] = backfill.Key{int64(1), id}
		}
		return keys
	}

	tests := []struct {
		name    string
		missing map[string][]backfill.Key
		want    []backfill.Pass
	}{
		{
			name:    "nothing missing",
			missing: map[string][]backfill.Key{"a": nil, "b": {}},
			want:    nil,
		},
		{
			name:    "single column",
			missing: map[string][]backfill.Key{"a": k(3, 1, 2)},
			want:    []backfill.Pass{{Columns: []string{"a"}, Keys: k(1, 2, 3)}},
		},
		{
			name:    "identical sets are written together",
			missing: map[string][]backfill.Key{"a": k(2, 1), "b": k(1, 2), "c": k(1, 2)},
			want:    []backfill.Pass{{Columns: []string{"a", "b", "c"}, Keys: k(1, 2)}},
		},
		{
			name: "subset column finishes first",
			missing: map[string][]backfill.Key{
				"a": k(1, 2, 3, 4),
				"b": k(2, 3),
			},
			want: []backfill.Pass{
				{Columns: []string{"a", "b"}, Keys: k(2, 3)},
				{Columns: []string{"a"}, Keys: k(1, 4)},
			},
		},
		{
			name: "disjoint columns smallest first",
			missing: map[string][]backfill.Key{
				"a": k(1, 2, 3),
				"b": k(4),
				"c": k(5, 6),
			},
			want: []backfill.Pass{
				{Columns: []string{"b"}, Keys: k(4)},
				{Columns: []string{"c"}, Keys: k(5, 6)},
				{Columns: []string{"a"}, Keys: k(1, 2, 3)},
			},
		},
		{
			name: "common keys after dropping a column",
			missing: map[string][]backfill.Key{
				"a": k(1, 2),
				"b": k(2, 3),
				"c": k(9),
			},
			want: []backfill.Pass{
				{Columns: []string{"c"}, Keys: k(9)},
				{Columns: []string{"a", "b"}, Keys: k(2)},
				{Columns: []string{"a"}, Keys: k(1)},
				{Columns: []string{"b"}, Keys: k(3)},
			},
		},
	}

	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			c.Assert(backfill.Plan(tt.missing), qt.DeepEquals, tt.want)
		})
	}
}

func TestPlan_NeverMoreWritesThanPerColumn(t *testing.T) {
	c := qt.New(t)

	missing := map[string][]backfill.Key{}
	perColumn := 0
	for col, mod := range map[string]int64{"x": 2, "y": 3, "z": 5} {
		for id := int64(0); id < 60; id++ {
			if id%mod == 0 {
				missing[col] = append(missing[col], backfill.Key{id})
				perColumn++
			}
		}
	}

	c.Assert(totalWrites(backfill.Plan(missing)) <= perColumn, qt.IsTrue)
}
