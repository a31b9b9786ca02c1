package weft

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/weftsite/weft/cas"
	"github.com/weftsite/weft/importmap"
)

// executor is component G: it walks the analyzed graph level by level,
// invoking exactly the node (and, for per-key fine nodes, key) bodies the
// tracker says need attention this generation, sharing a single result
// per diamond-shared node (spec §4.G, §8 property 1), and bounding total
// in-flight work with a worker pool sized at Options.workers (spec §5
// "Work units... are scheduled onto a bounded worker pool").
type executor struct {
	analyzed *analyzed
	casStore *cas.Store
	logger   zerolog.Logger
	sem      chan struct{}
}

func newExecutor(a *analyzed, c *cas.Store, workers int, logger zerolog.Logger) *executor {
	return &executor{
		analyzed: a,
		casStore: c,
		logger:   logger.With().Str("component", "executor").Logger(),
		sem:      make(chan struct{}, workers),
	}
}

// evalStats accumulates the counters that end up in a Report.
type evalStats struct {
	mu         sync.Mutex
	nodesRun   int
	keysRun    int
	keysReused int
}

func (s *evalStats) addNodeRun() {
	s.mu.Lock()
	s.nodesRun++
	s.mu.Unlock()
}

func (s *evalStats) addKeyRun() {
	s.mu.Lock()
	s.keysRun++
	s.mu.Unlock()
}

func (s *evalStats) addKeyReused() {
	s.mu.Lock()
	s.keysReused++
	s.mu.Unlock()
}

// run evaluates one generation: prev is the previous generation's cache
// (nil for the first build), dirty tells us what needs visiting, and
// generation is the new cache's generation number. It returns the new
// cache, every Output live as of this generation (carried-over outputs
// from untouched nodes included), and a summary Report.
func (e *executor) run(ctx context.Context, g any, prev *generationCache, dirty *dirtyState, generation int) (*generationCache, []Output, Report, error) {
	next := newGenerationCache()
	next.generation = generation
	stats := &evalStats{}

	for levelIdx, level := range e.analyzed.levels {
		var toRun []NodeId
		for _, id := range level {
			if !dirty.visits(id) {
				if prev != nil {
					if r, ok := prev.results[id]; ok {
						next.results[id] = r
						if r.fine != nil && e.analyzed.store.get(id).shape == shapeFinePerKey {
							for range r.fine.order {
								stats.addKeyReused()
							}
						}
						continue
					}
				}
			}
			toRun = append(toRun, id)
		}

		grp, gctx := errgroup.WithContext(ctx)
		var mu sync.Mutex
		var levelErr error
		for _, id := range toRun {
			id := id
			grp.Go(func() error {
				res, err := e.evalNode(gctx, g, id, prev, next, dirty, stats)
				if err != nil {
					mu.Lock()
					levelErr = multierr.Append(levelErr, err)
					mu.Unlock()
					return err
				}
				mu.Lock()
				next.results[id] = res
				mu.Unlock()
				return nil
			})
		}
		// errgroup cancels gctx on the first error, and Wait returns only
		// that first error once every goroutine of the level has finished,
		// though siblings already in flight may land their own errors
		// too; levelErr, built with
		// multierr.Append under mu, accumulates every failure this level
		// actually produced rather than only the one errgroup happened to
		// return first (spec §4.G "an error from any node body aborts the
		// generation" does not say only the first is surfaced).
		if err := grp.Wait(); err != nil {
			return nil, nil, Report{}, levelErr
		}
		e.logger.Debug().Int("level", levelIdx).Int("total", len(level)).Int("ran", len(toRun)).Msg("level evaluated")
	}

	outputs := gatherOutputs(e.analyzed, next)
	totalBytes := 0
	for _, o := range outputs {
		totalBytes += len(o.bytes())
	}
	report := Report{
		Generation:   generation,
		NodesRun:     stats.nodesRun,
		KeysRun:      stats.keysRun,
		KeysReused:   stats.keysReused,
		OutputsCount: len(outputs),
		OutputBytes:  totalBytes,
	}
	return next, outputs, report, nil
}

// gatherOutputs collects every live Output as of cache, in node
// registration order so output ordering is deterministic across runs.
func gatherOutputs(a *analyzed, cache *generationCache) []Output {
	var outputs []Output
	for _, n := range a.store.all() {
		r := cache.results[n.id]
		if r == nil {
			continue
		}
		if r.coarse != nil {
			outputs = append(outputs, r.coarse.outputs...)
		}
		if r.fine != nil {
			outputs = append(outputs, r.fine.outputs...)
			for _, k := range r.fine.order {
				outputs = append(outputs, r.fine.keys[k].outputs...)
			}
		}
	}
	return outputs
}

// resolveArgs resolves n's non-source inputs into the []any the erased
// body functions expect, reading upstream results out of cache -- which,
// by level ordering, already holds every dependency's result for this
// generation, whether freshly computed or carried over clean (spec
// §4.G.2).
func resolveArgs(n *node, cache *generationCache) []any {
	args := make([]any, len(n.inputs))
	for i, e := range n.inputs {
		r := cache.results[e.id]
		if e.kind == edgeOne {
			args[i] = r.coarse.value
		} else {
			fps := make(map[Key]string, len(r.fine.order))
			for _, k := range r.fine.order {
				fps[k] = r.fine.keys[k].fp
			}
			args[i] = orderedAny{order: append([]Key(nil), r.fine.order...), values: r.fine.values(), fps: fps}
		}
	}
	return args
}

// resolveInherited computes n's inherited import map: the merge of every
// upstream's effective map, in input order (spec §4.B, §4.G.3).
func resolveInherited(n *node, cache *generationCache) importmap.Map {
	maps := make([]importmap.Map, 0, len(n.inputs))
	for _, e := range n.inputs {
		maps = append(maps, cache.results[e.id].effMap)
	}
	return importmap.MergeAll(maps)
}

func (e *executor) evalNode(ctx context.Context, g any, id NodeId, prev, next *generationCache, dirty *dirtyState, stats *evalStats) (*nodeResult, error) {
	n := e.analyzed.store.get(id)
	inherited := resolveInherited(n, next)
	args := resolveArgs(n, next)

	switch n.shape {
	case shapeCoarse:
		e.sem <- struct{}{}
		defer func() { <-e.sem }()

		store := newStore(e.casStore)
		ra := runArgs{ctx: ctx, g: g, values: args, store: store, inherited: inherited}
		val, local, err := n.coarse(ra)
		if err != nil {
			return nil, &TaskError{Node: n.label(), Err: err}
		}
		stats.addNodeRun()
		eff := importmap.Merge(inherited, local)
		return &nodeResult{
			coarse: &coarseEntry{value: val, local: local, outputs: store.collectedOutputs()},
			effMap: eff,
		}, nil

	case shapeFineWhole:
		e.sem <- struct{}{}
		defer func() { <-e.sem }()

		store := newStore(e.casStore)
		ra := runArgs{ctx: ctx, g: g, values: args, store: store, inherited: inherited}
		vals, fps, local, err := n.fineWhole(ra)
		if err != nil {
			return nil, &TaskError{Node: n.label(), Err: err}
		}
		stats.addNodeRun()

		order := make([]Key, 0, len(vals))
		for k := range vals {
			order = append(order, k)
		}
		sort.Strings(order)

		entries := make(map[Key]fineKeyEntry, len(order))
		for _, k := range order {
			entries[k] = fineKeyEntry{value: vals[k], fp: fps[k], local: local}
		}
		fe := &fineEntry{order: order, keys: entries, outputs: store.collectedOutputs()}
		eff := importmap.Merge(inherited, local)
		return &nodeResult{fine: fe, effMap: eff}, nil

	case shapeFinePerKey:
		return e.evalFinePerKey(ctx, g, n, args, inherited, prev, dirty, stats)
	}
	panic("weft: unreachable node shape")
}

// evalFinePerKey enumerates a per-key fine node's current keys and
// fingerprints fresh every time it's visited, then diffs each key's
// fingerprint against the previous generation's cache, invoking the
// per-key body only for keys that are new or whose fingerprint changed
// (or every key, if dirty.forcesFull says an upstream extra changed).
// This single mechanism handles both glob loaders and each.map nodes
// uniformly, and gives deletion semantics for free: a key the fresh
// enumeration no longer reports simply isn't copied into the new
// fineEntry (spec §4.H.2-3, §8 property 7, §9 per-key fingerprint note).
func (e *executor) evalFinePerKey(ctx context.Context, g any, n *node, args []any, inherited importmap.Map, prev *generationCache, dirty *dirtyState, stats *evalStats) (*nodeResult, error) {
	enumStore := newStore(e.casStore)
	ra := runArgs{ctx: ctx, g: g, values: args, store: enumStore, inherited: inherited}
	order, sourceFP, raw, upstream, err := n.fineKeys(ra)
	if err != nil {
		return nil, &LoaderError{Path: n.label(), Err: err}
	}

	var prevFine *fineEntry
	if prev != nil {
		if pr, ok := prev.results[n.id]; ok {
			prevFine = pr.fine
		}
	}
	force := dirty.forcesFull(n.id)

	entries := make(map[Key]fineKeyEntry, len(order))
	var toRun []Key
	for _, k := range order {
		if !force && prevFine != nil {
			if pe, ok := prevFine.keys[k]; ok && pe.fp == sourceFP[k] {
				entries[k] = pe
				stats.addKeyReused()
				continue
			}
		}
		toRun = append(toRun, k)
	}

	var mu sync.Mutex
	grp, gctx := errgroup.WithContext(ctx)
	for _, k := range toRun {
		k := k
		grp.Go(func() error {
			e.sem <- struct{}{}
			defer func() { <-e.sem }()

			keyStore := newStore(e.casStore)
			kra := runArgs{ctx: gctx, g: g, values: args, store: keyStore, inherited: inherited}
			val, local, err := n.finePerKey(kra, k, raw[k], upstream[k])
			if err != nil {
				return &TaskError{Node: n.label(), Key: k, Err: err}
			}
			entry := fineKeyEntry{value: val, fp: sourceFP[k], local: local, outputs: keyStore.collectedOutputs()}
			mu.Lock()
			entries[k] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if len(toRun) > 0 {
		stats.addNodeRun()
		for range toRun {
			stats.addKeyRun()
		}
	}

	fe := &fineEntry{order: order, keys: entries}
	eff := importmap.Merge(inherited, fe.mergedLocal())
	return &nodeResult{fine: fe, effMap: eff}, nil
}
