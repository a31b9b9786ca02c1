package weft

// One is a lightweight, copyable token referring to a node's future
// single (coarse) value of type T. Handles do not own the node; they are
// values, not references (spec §3 Handle, §4.D).
type One[T any] struct {
	id NodeId
}

// Id returns the underlying node identifier. Mostly useful for
// diagnostics; graph-building code should prefer passing the handle
// itself.
func (h One[T]) Id() NodeId { return h.id }

// Many is a lightweight, copyable token referring to a node's future
// keyed (fine) collection of type T (spec §3 Handle). Iteration follows
// the key order the node records: sorted relative paths for a Glob
// loader, the upstream's order for an each.map, and sorted keys for a
// Spread1 node, whose body's pair order is not kept.
type Many[T any] struct {
	id NodeId
}

func (h Many[T]) Id() NodeId { return h.id }

// Tracker is what an each.map body receives for the one upstream key it
// was invoked for (spec §4.E each.map row, §3.3 of SPEC_FULL.md). It is
// never the whole upstream collection -- that's the entire point of
// per-key invalidation (spec §4.H.3, §8 property 7).
type Tracker[T any] struct {
	Key   Key
	Value T
}

// anyHandle is the type-erased shape every concrete handle reduces to
// when recorded as a node input. The node store and executor only ever
// see this; type safety is recovered at the Blueprint call site where the
// concrete T is still in scope (spec §9 "type erasure behind typed
// handles").
type anyHandle struct {
	id   NodeId
	kind edgeKind
}

func (h One[T]) erase() anyHandle  { return anyHandle{id: h.id, kind: edgeOne} }
func (h Many[T]) erase() anyHandle { return anyHandle{id: h.id, kind: edgeMany} }
