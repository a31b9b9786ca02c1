package weft

import (
	"context"
	"fmt"

	"github.com/weftsite/weft/importmap"
)

// sourceSpec records, for a loader node, what the incremental tracker
// needs in order to map a changed filesystem path back to this node
// (spec §4.F point 4, §4.H).
type sourceSpec struct {
	root    string
	pattern string
}

// runArgs is what the executor hands to a node body: resolved upstream
// values in input order, the global context G, a Store capability, and
// the inherited import map -- the union of every upstream's effective
// map (spec §4.G steps 2-4).
type runArgs struct {
	ctx       context.Context
	g         any
	values    []any // one entry per node.inputs, in order
	store     *Store
	inherited importmap.Map
}

type coarseFn func(runArgs) (value any, local importmap.Map, err error)

// fineWholeFn backs spread(): produced in one shot, not per-key tracked.
type fineWholeFn func(runArgs) (values map[Key]any, fps map[Key]string, local importmap.Map, err error)

// fineKeysFn enumerates the currently known keys of a per-key fine node
// (a glob loader or an each.map) along with a "source fingerprint" for
// each: the raw-bytes digest for a loader key, or the reused upstream
// per-key fingerprint for an each.map key (spec §9, "per-key fingerprint
// storage" design note -- the fingerprint recorded must be the upstream's
// fingerprint *at the time of evaluation*, which is exactly what this
// enumeration captures fresh every time the executor visits the node).
type fineKeysFn func(runArgs) (order []Key, sourceFP map[Key]string, raw map[Key][]byte, upstream map[Key]any, err error)

// finePerKeyFn evaluates a single key of a per-key fine node.
type finePerKeyFn func(runArgs, key Key, raw []byte, upstream any) (value any, local importmap.Map, err error)

// node is the type-erased record the node store holds for one task.
// Safety is recovered at the Blueprint call site, where the concrete
// input/output types are still in scope (spec §9).
type node struct {
	id     NodeId
	name   string
	shape  nodeShape
	inputs []inputEdge
	source *sourceSpec

	coarse     coarseFn
	fineWhole  fineWholeFn
	fineKeys   fineKeysFn
	finePerKey finePerKeyFn
}

func (n *node) label() string {
	if n.name != "" {
		return n.name
	}
	kind := "coarse"
	if n.shape.isFine() {
		kind = "fine"
	}
	return fmt.Sprintf("<%s%s>", kind, n.id)
}

// nodeStore is a flat, append-only, zero-based container indexed by
// NodeId. It's append-only during Blueprint construction and read-only
// thereafter (spec §4.C).
type nodeStore struct {
	nodes []*node
}

func (s *nodeStore) add(n *node) NodeId {
	n.id = NodeId(len(s.nodes))
	s.nodes = append(s.nodes, n)
	return n.id
}

func (s *nodeStore) get(id NodeId) *node {
	return s.nodes[id]
}

func (s *nodeStore) len() int { return len(s.nodes) }

func (s *nodeStore) all() []*node { return s.nodes }
