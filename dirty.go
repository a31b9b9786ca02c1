package weft

// dirtyState is what component H (the incremental tracker) hands to
// component G (the executor) for one generation: which nodes need
// visiting at all. For a full build, every node is visited and
// full=true for all of them, which tells the executor not to bother
// diffing against any previous cache.
//
// For finePerKey nodes, visiting does NOT mean "re-run every key" --
// the executor still fingerprint-diffs each key against the previous
// generation's cache (spec §4.H.2-3, §9 per-key fingerprint note) and
// only invokes the per-key body for keys whose fingerprint actually
// changed. full forces every key of a finePerKey node to be treated as
// changed regardless of fingerprint -- used when a non-keyed ("extra")
// dependency of an each.map changed (spec §4.H.3: "if any extra is
// dirty, the entire consumer becomes fully dirty").
type dirtyState struct {
	fullBuild bool
	full      map[NodeId]bool
	check     map[NodeId]bool
}

func newDirtyState() *dirtyState {
	return &dirtyState{full: map[NodeId]bool{}, check: map[NodeId]bool{}}
}

// visits reports whether n needs any attention this generation.
func (d *dirtyState) visits(n NodeId) bool {
	return d.fullBuild || d.full[n] || d.check[n]
}

// forcesFull reports whether every key of a finePerKey node n must be
// re-evaluated regardless of fingerprint.
func (d *dirtyState) forcesFull(n NodeId) bool {
	return d.fullBuild || d.full[n]
}

func fullDirtyState() *dirtyState {
	return &dirtyState{fullBuild: true, full: map[NodeId]bool{}, check: map[NodeId]bool{}}
}
