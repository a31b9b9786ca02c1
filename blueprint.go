package weft

import (
	"context"

	"github.com/weftsite/weft/cas"
	"github.com/weftsite/weft/importmap"
)

// Blueprint is component E: the fluent builder users call to register
// nodes and wire handles together. It's generic over G, the user's
// immutable global context type, threaded read-only to every task body
// (spec §3 "Global context", §4.E).
//
// Node-constructing calls are free functions rather than Blueprint
// methods (Task, Merge2, Glob, EachMap1, ...) because Go methods cannot
// introduce type parameters beyond their receiver's -- a node's result
// type R and any upstream types A, B, ... must be supplied at the call
// site, which only a free generic function can do.
type Blueprint[G any] struct {
	store *nodeStore
	opts  Options
}

// New returns an empty Blueprint ready to accept node registrations.
func New[G any](opts ...Option) *Blueprint[G] {
	return &Blueprint[G]{store: &nodeStore{}, opts: buildOptions(opts)}
}

// TaskOption modifies a node at construction time. Named is the only
// exported one (spec §3.4 "every public builder method accepts an
// optional .Named(string) modifier"); following the rest of weft's
// configuration surface (Options/Option), this is realized as a
// functional option passed as the last argument to every constructing
// call, rather than a post-hoc chain method.
type TaskOption func(*node)

// Named attaches a diagnostic label to a node, used in GraphCycleError
// and TaskError messages in place of the synthesized label, which looks
// like "<coarse#3>" or "<fine#5>".
func Named(name string) TaskOption {
	return func(n *node) { n.name = name }
}

func applyOpts(n *node, opts []TaskOption) {
	for _, o := range opts {
		o(n)
	}
}

type handleLike interface{ erase() anyHandle }

func toEdge(h handleLike) inputEdge {
	e := h.erase()
	return inputEdge{id: e.id, kind: e.kind}
}

// Task registers a zero-input coarse node (spec §4.E "task().run(f)").
func Task[G, R any](bp *Blueprint[G], f func(ctx context.Context, g G, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) One[R] {
	n := &node{
		shape: shapeCoarse,
		coarse: func(ra runArgs) (any, importmap.Map, error) {
			v, err := f(ra.ctx, ra.g.(G), ra.store, ra.inherited)
			if err != nil {
				return nil, importmap.Map{}, err
			}
			return v, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return One[R]{id: bp.store.add(n)}
}

// Task1 registers a coarse node depending on a single One[A] (spec §4.E
// "task().depends_on(h).run(f)").
func Task1[G, A, R any](bp *Blueprint[G], h One[A], f func(ctx context.Context, g G, a A, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) One[R] {
	n := &node{
		shape:  shapeCoarse,
		inputs: []inputEdge{toEdge(h)},
		coarse: func(ra runArgs) (any, importmap.Map, error) {
			v, err := f(ra.ctx, ra.g.(G), resolveOne[A](ra.values[0]), ra.store, ra.inherited)
			if err != nil {
				return nil, importmap.Map{}, err
			}
			return v, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return One[R]{id: bp.store.add(n)}
}

// Merge2 registers a gather node over two One-typed inputs (spec §4.E
// "task().using(h).merge(f)"), grounded on the fixed-arity tuple-resolution
// style of the teacher's rogpeppe-generic/tuple package.
func Merge2[G, A, B, R any](bp *Blueprint[G], ha One[A], hb One[B], f func(ctx context.Context, g G, a A, b B, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) One[R] {
	n := &node{
		shape:  shapeCoarse,
		inputs: []inputEdge{toEdge(ha), toEdge(hb)},
		coarse: func(ra runArgs) (any, importmap.Map, error) {
			v, err := f(ra.ctx, ra.g.(G), resolveOne[A](ra.values[0]), resolveOne[B](ra.values[1]), ra.store, ra.inherited)
			if err != nil {
				return nil, importmap.Map{}, err
			}
			return v, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return One[R]{id: bp.store.add(n)}
}

// Merge3 registers a gather node over three One-typed inputs.
func Merge3[G, A, B, C, R any](bp *Blueprint[G], ha One[A], hb One[B], hc One[C], f func(ctx context.Context, g G, a A, b B, c C, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) One[R] {
	n := &node{
		shape:  shapeCoarse,
		inputs: []inputEdge{toEdge(ha), toEdge(hb), toEdge(hc)},
		coarse: func(ra runArgs) (any, importmap.Map, error) {
			v, err := f(ra.ctx, ra.g.(G), resolveOne[A](ra.values[0]), resolveOne[B](ra.values[1]), resolveOne[C](ra.values[2]), ra.store, ra.inherited)
			if err != nil {
				return nil, importmap.Map{}, err
			}
			return v, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return One[R]{id: bp.store.add(n)}
}

// MergeMany1 registers a gather node over a whole Many[A] collection
// (spec §4.E "task().using(h).merge(f)" where h is Many-typed, e.g.
// Scenario 1's concat/sum over a loader's three files). This is a
// non-per-item consumer: per spec §4.H.3, any dirty key in the upstream
// collection fully re-runs it.
func MergeMany1[G, A, R any](bp *Blueprint[G], h Many[A], f func(ctx context.Context, g G, items Collection[A], s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) One[R] {
	n := &node{
		shape:  shapeCoarse,
		inputs: []inputEdge{toEdge(h)},
		coarse: func(ra runArgs) (any, importmap.Map, error) {
			v, err := f(ra.ctx, ra.g.(G), resolveMany[A](ra.values[0]), ra.store, ra.inherited)
			if err != nil {
				return nil, importmap.Map{}, err
			}
			return v, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return One[R]{id: bp.store.add(n)}
}

// KV is one (Key, Value) pair returned by a Spread1 body.
type KV[V any] struct {
	Key   Key
	Value V
}

// Spread1 registers a coarse-to-fine node: a single-shot body that
// consumes a One[A] and produces an entire Many[V] at once (spec §4.E
// "task().using(h).spread(f)"). Unlike EachMap1, this shape is not
// individually key-tracked across generations -- it is wholly dirty or
// wholly clean, like any other coarse body (spec §3 Result cache,
// shapeFineWhole). The resulting Many iterates its keys in sorted order;
// the order of the returned pairs is not kept, and for a repeated key the
// later pair wins.
func Spread1[G, A, V any](bp *Blueprint[G], h One[A], f func(ctx context.Context, g G, a A, s *Store, inherited importmap.Map) ([]KV[V], error), opts ...TaskOption) Many[V] {
	n := &node{
		shape:  shapeFineWhole,
		inputs: []inputEdge{toEdge(h)},
		fineWhole: func(ra runArgs) (map[Key]any, map[Key]string, importmap.Map, error) {
			pairs, err := f(ra.ctx, ra.g.(G), resolveOne[A](ra.values[0]), ra.store, ra.inherited)
			if err != nil {
				return nil, nil, importmap.Map{}, err
			}
			vals := make(map[Key]any, len(pairs))
			fps := make(map[Key]string, len(pairs))
			for _, kv := range pairs {
				vals[kv.Key] = kv.Value
				fps[kv.Key] = ra.store.Fingerprint([]byte(kv.Key))
			}
			return vals, fps, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return Many[V]{id: bp.store.add(n)}
}

// Glob registers a loader node (spec §4.E "task().glob(pattern).map(f)"):
// it scans root for files matching pattern (doublestar syntax) and calls
// f once per matching path with that file's raw bytes. The registered
// root+pattern feeds component H (the incremental tracker) so edits under
// root re-trigger exactly the affected keys.
func Glob[G, R any](bp *Blueprint[G], root, pattern string, f func(ctx context.Context, g G, path string, raw []byte, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) Many[R] {
	n := &node{
		shape:  shapeFinePerKey,
		source: &sourceSpec{root: root, pattern: pattern},
		fineKeys: func(ra runArgs) ([]Key, map[Key]string, map[Key][]byte, map[Key]any, error) {
			return globEnumerate(root, pattern)
		},
		finePerKey: func(ra runArgs, key Key, raw []byte, upstream any) (any, importmap.Map, error) {
			v, err := f(ra.ctx, ra.g.(G), key, raw, ra.store, ra.inherited)
			if err != nil {
				return nil, importmap.Map{}, err
			}
			return v, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return Many[R]{id: bp.store.add(n)}
}

// EachMap1 registers an each.map node (spec §4.E "task().each(h_many).map(f)"):
// the mapper is invoked once per key of h, and the engine re-invokes it
// only for keys whose upstream fingerprint changed since the last
// generation (spec §4.H.3, §8 property 7, §9 "per-key fingerprint
// storage").
func EachMap1[G, T, R any](bp *Blueprint[G], h Many[T], f func(ctx context.Context, g G, item Tracker[T], s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) Many[R] {
	n := &node{
		shape:  shapeFinePerKey,
		inputs: []inputEdge{toEdge(h)},
		fineKeys: func(ra runArgs) ([]Key, map[Key]string, map[Key][]byte, map[Key]any, error) {
			oa := ra.values[0].(orderedAny)
			order := append([]Key(nil), oa.order...)
			sourceFP := make(map[Key]string, len(order))
			upstream := make(map[Key]any, len(order))
			for _, k := range order {
				sourceFP[k] = oa.fps[k]
				upstream[k] = oa.values[k]
			}
			return order, sourceFP, nil, upstream, nil
		},
		finePerKey: func(ra runArgs, key Key, raw []byte, upstream any) (any, importmap.Map, error) {
			v, err := f(ra.ctx, ra.g.(G), Tracker[T]{Key: key, Value: upstream.(T)}, ra.store, ra.inherited)
			if err != nil {
				return nil, importmap.Map{}, err
			}
			return v, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return Many[R]{id: bp.store.add(n)}
}

// EachMap1Extra1 is EachMap1 with one additional One-typed "extras"
// dependency (spec §4.E "each(h_many).using(extras).map(f)"). Per spec
// §4.H.3, if the extra is dirty the entire consumer becomes fully dirty,
// regardless of which (if any) keys of h changed.
func EachMap1Extra1[G, T, E, R any](bp *Blueprint[G], h Many[T], extra One[E], f func(ctx context.Context, g G, item Tracker[T], e E, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) Many[R] {
	n := &node{
		shape:  shapeFinePerKey,
		inputs: []inputEdge{toEdge(h), toEdge(extra)},
		fineKeys: func(ra runArgs) ([]Key, map[Key]string, map[Key][]byte, map[Key]any, error) {
			oa := ra.values[0].(orderedAny)
			order := append([]Key(nil), oa.order...)
			sourceFP := make(map[Key]string, len(order))
			upstream := make(map[Key]any, len(order))
			for _, k := range order {
				sourceFP[k] = oa.fps[k]
				upstream[k] = oa.values[k]
			}
			return order, sourceFP, nil, upstream, nil
		},
		finePerKey: func(ra runArgs, key Key, raw []byte, upstream any) (any, importmap.Map, error) {
			v, err := f(ra.ctx, ra.g.(G), Tracker[T]{Key: key, Value: upstream.(T)}, resolveOne[E](ra.values[1]), ra.store, ra.inherited)
			if err != nil {
				return nil, importmap.Map{}, err
			}
			return v, ra.store.localMap(), nil
		},
	}
	applyOpts(n, opts)
	return Many[R]{id: bp.store.add(n)}
}

// Finish runs the graph analyzer (component F) and, if the graph is
// acyclic, returns a ready-to-build Website (spec §4.F, §6 "finish() ->
// Website").
func (bp *Blueprint[G]) Finish() (*Website[G], error) {
	a, err := analyze(bp.store)
	if err != nil {
		return nil, err
	}
	c, err := cas.New(bp.opts.cacheDir)
	if err != nil {
		return nil, &IoError{Op: "open cas store", Err: err}
	}
	return &Website[G]{
		analyzed: a,
		cas:      c,
		collect:  newCollector(bp.opts.distDir, bp.opts.logger),
		exec:     newExecutor(a, c, bp.opts.workers, bp.opts.logger),
		track:    newTracker(a, bp.opts.logger),
		signal:   NewSignal(),
		logger:   bp.opts.logger.With().Str("component", "website").Logger(),
	}, nil
}
