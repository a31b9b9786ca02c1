package dagsort_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/weftsite/weft/dagsort"
)

type mapGraph map[string][]string

func (g mapGraph) AllNodes() []string {
	var ns []string
	for n := range g {
		ns = append(ns, n)
	}
	return ns
}

func (g mapGraph) DependsOn(n string) []string { return g[n] }

func TestLevelsDiamond(t *testing.T) {
	// a depends on nothing; b,c depend on a; d depends on b and c.
	g := mapGraph{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}
	levels, err := dagsort.Levels[string](g)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(levels, 3))
	qt.Assert(t, qt.Equals(levels[0][0], "a"))
	qt.Assert(t, qt.CmpEquals(levels[2], []string{"d"}))
}

func TestCycleDetected(t *testing.T) {
	g := mapGraph{
		"a": {"b"},
		"b": {"a"},
	}
	_, err := dagsort.Levels[string](g)
	qt.Assert(t, qt.Not(qt.IsNil(err)))
	var cycleErr *dagsort.CycleError[string]
	qt.Assert(t, qt.ErrorAs(err, &cycleErr))
	qt.Assert(t, qt.HasLen(cycleErr.Nodes, 2))
}
