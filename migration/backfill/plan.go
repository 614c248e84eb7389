package backfill

import (
	"slices"
	"sort"
)

// Pass is one group of row writes: every key gets all Columns written at once.
type Pass struct {
	Columns []string
	Keys    []Key
}

// Writes returns the number of row-level writes of the pass.
func (p Pass) Writes() int { return len(p.Keys) }

// Plan orders the writes needed to fill missing values, given for every column
// the keys of rows where it is missing.
//
// Keys missing in every remaining column are written in one combined pass and
// removed from all columns. When no key is shared by all remaining columns,
// the column with the fewest outstanding keys is written alone. Columns with
// nothing left are dropped until none remain. Ties between columns of equal
// size go to the lexically smaller name, and keys within a pass are sorted.
func Plan(missing map[string][]Key) []Pass {
	sets := make(map[string]map[string]Key, len(missing))
	for column, keys := range missing {
		if len(keys) == 0 {
			continue
		}
		set := make(map[string]Key, len(keys))
		for _, k := range keys {
			set[k.String()] = k
		}
		sets[column] = set
	}

	var passes []Pass
	for len(sets) > 0 {
		columns := sortedColumns(sets)

		common := intersect(sets, columns)
		if len(common) > 0 {
			passes = append(passes, Pass{Columns: columns, Keys: sortedKeys(common)})
			for _, column := range columns {
				for id := range common {
					delete(sets[column], id)
				}
				if len(sets[column]) == 0 {
					delete(sets, column)
				}
			}
			continue
		}

		column := smallest(sets, columns)
		passes = append(passes, Pass{Columns: []string{column}, Keys: sortedKeys(sets[column])})
		delete(sets, column)
	}
	return passes
}

func sortedColumns(sets map[string]map[string]Key) []string {
	columns := make([]string, 0, len(sets))
	for column := range sets {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func intersect(sets map[string]map[string]Key, columns []string) map[string]Key {
	start := smallest(sets, columns)
	common := make(map[string]Key, len(sets[start]))
	for id, k := range sets[start] {
		shared := true
		for _, column := range columns {
			if _, ok := sets[column][id]; !ok {
				shared = false
				break
			}
		}
		if shared {
			common[id] = k
		}
	}
	return common
}

// smallest expects columns sorted by name.
func smallest(sets map[string]map[string]Key, columns []string) string {
	best := columns[0]
	for _, column := range columns[1:] {
		if len(sets[column]) < len(sets[best]) {
			best = column
		}
	}
	return best
}

func sortedKeys(set map[string]Key) []Key {
	keys := make([]Key, 0, len(set))
	for _, k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, Key.Compare)
	return keys
}
