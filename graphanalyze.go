package weft

import "github.com/weftsite/weft/dagsort"

// analyzed is the output of component F (graph analyzer): the node
// store's nodes bucketed into parallel execution levels and a reverse-edge
// index (consumers of each node), both computed once at Blueprint.Finish
// time and then read-only for the lifetime of the Website (spec §4.F).
// Loader nodes are looked up on demand with loaderNodes.
type analyzed struct {
	store    *nodeStore
	levels   [][]NodeId
	consumer map[NodeId][]NodeId // reverse adjacency: n -> nodes that depend on n
}

// dagAdapter satisfies dagsort.Graph[NodeId] over the node store, walking
// dependency ("depends on") edges -- the direction dagsort needs to
// compute levels and detect cycles (§4.F points 1-3).
type dagAdapter struct{ store *nodeStore }

func (a dagAdapter) AllNodes() []NodeId {
	ids := make([]NodeId, a.store.len())
	for i := range ids {
		ids[i] = NodeId(i)
	}
	return ids
}

func (a dagAdapter) DependsOn(n NodeId) []NodeId {
	node := a.store.get(n)
	deps := make([]NodeId, len(node.inputs))
	for i, e := range node.inputs {
		deps[i] = e.id
	}
	return deps
}

func analyze(store *nodeStore) (*analyzed, error) {
	levels, err := dagsort.Levels[NodeId](dagAdapter{store: store})
	if err != nil {
		var cycleErr *dagsort.CycleError[NodeId]
		if asCycleError(err, &cycleErr) {
			labels := make([]string, len(cycleErr.Nodes))
			for i, id := range cycleErr.Nodes {
				labels[i] = store.get(id).label()
			}
			return nil, &GraphCycleError{Nodes: labels}
		}
		return nil, err
	}

	consumer := make(map[NodeId][]NodeId, store.len())
	for _, n := range store.all() {
		for _, e := range n.inputs {
			consumer[e.id] = append(consumer[e.id], n.id)
		}
	}

	return &analyzed{store: store, levels: levels, consumer: consumer}, nil
}

func asCycleError(err error, target **dagsort.CycleError[NodeId]) bool {
	if ce, ok := err.(*dagsort.CycleError[NodeId]); ok {
		*target = ce
		return true
	}
	return false
}

// loaderNodes returns every loader node (one with a registered
// root+pattern), for the incremental tracker to match changed paths
// against (spec §4.F point 4). It scans the node store on every call.
func (a *analyzed) loaderNodes() []*node {
	var loaders []*node
	for _, n := range a.store.all() {
		if n.source != nil {
			loaders = append(loaders, n)
		}
	}
	return loaders
}
