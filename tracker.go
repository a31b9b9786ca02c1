package weft

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// ChangeKind classifies a filesystem change reported to the tracker
// (SPEC_FULL.md §3.6).
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Deleted
)

// Change is one filesystem event fed to the tracker, either directly via
// Website.Invalidate or from a FileWatcher driving Website.Watch
// (SPEC_FULL.md §3.6).
type Change struct {
	Path string
	Kind ChangeKind
}

// tracker is component H: given the set of changed source paths since
// the last generation, it decides which nodes need visiting at all this
// generation, and whether a finePerKey node needs every key force-dirtied
// or merely fingerprint-checked (spec §4.H).
//
// Its job stops there. It never diffs individual key fingerprints itself
// -- the executor does that uniformly for every finePerKey node by
// re-enumerating fresh keys and comparing against the previous
// generation's cache (spec §9 per-key fingerprint note). This keeps the
// tracker a pure graph-reachability pass: BFS over the reverse (consumer)
// edge index, applying the edge-kind rule from spec §4.H.3 at each hop.
type tracker struct {
	analyzed *analyzed
	logger   zerolog.Logger
}

func newTracker(a *analyzed, logger zerolog.Logger) *tracker {
	return &tracker{
		analyzed: a,
		logger:   logger.With().Str("component", "tracker").Logger(),
	}
}

// directHits returns the loader nodes whose registered glob matches at
// least one changed path. Every such loader is only marked for checking,
// whatever the change kind: the executor re-enumerates a loader's keys on
// every visit, so a created file shows up as a new key, a deleted file's
// key drops out, and the remaining keys re-run only if their fingerprint
// changed. The forced set directHits returns is always empty.
func (t *tracker) directHits(changes []Change) (checked map[NodeId]bool, forced map[NodeId]bool) {
	checked = map[NodeId]bool{}
	forced = map[NodeId]bool{}
	for _, ld := range t.analyzed.loaderNodes() {
		for _, ch := range changes {
			rel := relativeTo(ld.source.root, ch.Path)
			ok, _ := doublestar.Match(ld.source.pattern, rel)
			if !ok {
				continue
			}
			checked[ld.id] = true
			t.logger.Debug().Str("path", ch.Path).Str("key", rel).Str("node", ld.label()).Msg("change matched loader pattern")
		}
	}
	return checked, forced
}

// propagate runs the BFS described at spec §4.H.3: a dirty (or checked)
// node's consumers are themselves marked dirty according to the kind of
// edge that connects them --
//
//   - a One edge into a consumer: the upstream value itself may have
//     changed, so the consumer is wholly unpredictable without
//     re-running it -- mark it fully dirty.
//   - a Many edge into a non-per-item consumer (merge, spread, a coarse
//     node taking a Many[T] argument): same reasoning, the whole
//     collection is one argument -- mark it fully dirty.
//   - a Many edge into an each.map consumer: that consumer re-enumerates
//     its own keys from the (possibly changed) upstream collection every
//     time it's visited, and the per-key fingerprint diff in the executor
//     already detects exactly which of its keys actually need
//     re-invocation -- so the consumer only needs to be *visited*
//     (checked), not force-dirtied.
func (t *tracker) propagate(checked, forced map[NodeId]bool) *dirtyState {
	ds := newDirtyState()
	for id := range forced {
		ds.full[id] = true
	}
	for id := range checked {
		if !ds.full[id] {
			ds.check[id] = true
		}
	}

	queue := make([]NodeId, 0, len(checked))
	for id := range checked {
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, consumerID := range t.analyzed.consumer[id] {
			consumer := t.analyzed.store.get(consumerID)
			edgeKindInto := consumerEdgeKind(consumer, id)

			alreadyFull := ds.full[consumerID]
			forceFullNow := edgeKindInto == edgeOne || !consumer.shape.isFine() || consumer.shape == shapeFineWhole

			if forceFullNow {
				if alreadyFull {
					continue
				}
				ds.full[consumerID] = true
				delete(ds.check, consumerID)
				queue = append(queue, consumerID)
				continue
			}

			// Many edge into an each.map (shapeFinePerKey) consumer: just
			// needs visiting, not forcing.
			if alreadyFull || ds.check[consumerID] {
				continue
			}
			ds.check[consumerID] = true
			queue = append(queue, consumerID)
		}
	}

	t.logger.Debug().
		Int("forced", len(ds.full)).
		Int("checked", len(ds.check)).
		Msg("dirty set computed")
	return ds
}

// consumerEdgeKind finds the edge kind consumer uses to depend on
// upstream. A node can in principle depend on the same upstream twice
// (unusual, but not forbidden); if any such edge is edgeOne, treat the
// dependency as edgeOne for dirtying purposes, since a One edge's
// "wholly unpredictable" reasoning dominates.
func consumerEdgeKind(consumer *node, upstream NodeId) edgeKind {
	kind := edgeMany
	for _, e := range consumer.inputs {
		if e.id != upstream {
			continue
		}
		if e.kind == edgeOne {
			return edgeOne
		}
		kind = e.kind
	}
	return kind
}

// relativeTo strips root from path for matching against a loader's
// pattern, which is always expressed relative to its root (spec §3
// Loader).
func relativeTo(root, path string) string {
	if len(path) > len(root) && path[:len(root)] == root {
		rest := path[len(root):]
		for len(rest) > 0 && rest[0] == '/' {
			rest = rest[1:]
		}
		return rest
	}
	return path
}
