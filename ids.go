package weft

import "fmt"

// NodeId identifies a node within a single graph. Ids are assigned
// monotonically, starting at zero, in registration order (spec §3 Node,
// §4.C Node store).
type NodeId int

// Key identifies one entry of a Many-typed node's keyed output. Keys are
// typically path-like strings (spec GLOSSARY "Fine / Many").
type Key = string

type edgeKind int

const (
	edgeOne edgeKind = iota
	edgeMany
)

// inputEdge records one upstream dependency of a node: which node, and
// whether the consumer expects its whole value (edgeOne) or its keyed
// collection (edgeMany). The distinction drives both argument resolution
// in the executor (§4.G.2) and the edge-aware dirtying rules of the
// incremental tracker (§4.H.3).
type inputEdge struct {
	id   NodeId
	kind edgeKind
}

type nodeShape int

const (
	// shapeCoarse: body invoked once per generation, produces one value.
	shapeCoarse nodeShape = iota
	// shapeFineWhole: body invoked once per generation, produces an
	// entire map[Key]value (spread()); not individually re-evaluated
	// per key on incremental rebuilds -- it's fully dirty or fully
	// clean, like any other coarse-shaped evaluation.
	shapeFineWhole
	// shapeFinePerKey: body invoked once per key, independently
	// cacheable and independently dirtyable (glob loaders, each.map).
	shapeFinePerKey
)

func (s nodeShape) isFine() bool {
	return s == shapeFineWhole || s == shapeFinePerKey
}

func (id NodeId) String() string {
	return fmt.Sprintf("#%d", int(id))
}
