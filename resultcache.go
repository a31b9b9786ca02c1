package weft

import "github.com/weftsite/weft/importmap"

// fineKeyEntry is one entry of a fine (keyed) result: the evaluated
// value, the fingerprint recorded *at the time that value was produced*
// (spec §9 "per-key fingerprint storage"), any import-map entries that
// key's invocation registered, and any Outputs it emitted -- all four
// are carried forward verbatim when a key is reused unevaluated across a
// generation (spec §8 property 7).
type fineKeyEntry struct {
	value   any
	fp      string
	local   importmap.Map
	outputs []Output
}

// coarseEntry is a Coarse node's cached result (spec §3 Result cache).
type coarseEntry struct {
	value   any
	local   importmap.Map
	outputs []Output
}

// fineEntry is a Fine node's cached result: an insertion-ordered
// collection of per-key entries plus the union of their local import
// maps (spec §3 Result cache, §4.B). outputs holds node-level (not
// per-key) emissions, used only by spread()-shaped (shapeFineWhole)
// nodes, which evaluate in one shot rather than per key.
type fineEntry struct {
	order   []Key
	keys    map[Key]fineKeyEntry
	outputs []Output
}

func (f *fineEntry) mergedLocal() importmap.Map {
	maps := make([]importmap.Map, 0, len(f.order))
	for _, k := range f.order {
		maps = append(maps, f.keys[k].local)
	}
	return importmap.MergeAll(maps)
}

func (f *fineEntry) values() map[Key]any {
	out := make(map[Key]any, len(f.order))
	for _, k := range f.order {
		out[k] = f.keys[k].value
	}
	return out
}

// nodeResult is the effective, type-erased result of one node,
// containing whichever of coarse/fine applies (each of which keeps its
// own local import map) plus the node's effective map, inherited ⊕ local,
// which downstream consumers merge as their inherited side; keeping both
// means the executor never has to re-derive "local" from "effective".
type nodeResult struct {
	coarse *coarseEntry
	fine   *fineEntry
	effMap importmap.Map // inherited ⊕ local, this node's effective map
}

// generationCache holds every node's result as of the most recently
// completed generation. It is replaced wholesale (pointer swap) when a
// new generation finishes, so readers of a past generation (e.g. a
// dev-server collaborator still serving the previous tree) never observe
// a half-updated cache.
type generationCache struct {
	generation int
	results    map[NodeId]*nodeResult
}

func newGenerationCache() *generationCache {
	return &generationCache{results: make(map[NodeId]*nodeResult)}
}
