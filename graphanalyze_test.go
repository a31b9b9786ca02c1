package weft

import (
	"testing"

	"github.com/go-quicktest/qt"
)

// TestAnalyzeDetectsCycle wires two nodes into a cycle directly at the
// node-store level (white-box, bypassing the Blueprint combinator API,
// which cannot itself express a forward reference and therefore cannot
// construct a cycle) and
// checks that analyze() reports GraphCycleError naming both nodes.
func TestAnalyzeDetectsCycle(t *testing.T) {
	store := &nodeStore{}
	a := &node{shape: shapeCoarse, name: "a"}
	store.add(a)
	b := &node{shape: shapeCoarse, name: "b", inputs: []inputEdge{{id: a.id, kind: edgeOne}}}
	store.add(b)
	a.inputs = []inputEdge{{id: b.id, kind: edgeOne}}

	_, err := analyze(store)
	qt.Assert(t, qt.Not(qt.IsNil(err)))

	var cycleErr *GraphCycleError
	qt.Assert(t, qt.ErrorAs(err, &cycleErr))
	qt.Assert(t, qt.HasLen(cycleErr.Nodes, 2))
}

// TestAnalyzeLevelsDiamond checks that a diamond (L feeding two
// independent consumers that both feed a third) places the two
// independent consumers in the same level, strictly after L and strictly
// before the final merge (spec §4.F point 3, §8 property 2 groundwork).
func TestAnalyzeLevelsDiamond(t *testing.T) {
	store := &nodeStore{}
	l := &node{shape: shapeCoarse, name: "L"}
	store.add(l)
	m := &node{shape: shapeCoarse, name: "M", inputs: []inputEdge{{id: l.id, kind: edgeOne}}}
	store.add(m)
	n := &node{shape: shapeCoarse, name: "N", inputs: []inputEdge{{id: l.id, kind: edgeOne}}}
	store.add(n)
	r := &node{shape: shapeCoarse, name: "R", inputs: []inputEdge{{id: m.id, kind: edgeOne}, {id: n.id, kind: edgeOne}}}
	store.add(r)

	a, err := analyze(store)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(a.levels, 3))
	qt.Assert(t, qt.HasLen(a.levels[0], 1))
	qt.Assert(t, qt.HasLen(a.levels[1], 2))
	qt.Assert(t, qt.HasLen(a.levels[2], 1))
}
