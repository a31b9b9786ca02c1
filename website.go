package weft

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/weftsite/weft/cas"
)

// FileWatcher is the external collaborator interface component H
// consumes (spec §6 "File-watching collaborator"): something that
// delivers deduplicated path-change events. weft never constructs one
// itself -- Website.Watch takes one as an argument, and the watchfs
// package supplies one optional fsnotify-backed implementation.
type FileWatcher interface {
	Changes() <-chan Change
	Close() error
}

// Website is the terminal object returned by Blueprint.Finish: a ready-
// to-build graph plus everything the executor and tracker need to carry
// state across generations (spec §6 "finish() -> Website").
type Website[G any] struct {
	analyzed *analyzed
	cas      *cas.Store
	collect  *collector
	exec     *executor
	track    *tracker
	signal   *Signal
	logger   zerolog.Logger

	mu         sync.Mutex
	cache      *generationCache // nil before the first Build
	generation int
	pending    []Change
}

// Invalidate records filesystem changes to be folded into the next
// Build, without triggering a build itself. Website.Watch calls this
// internally as FileWatcher events arrive; callers driving their own
// change detection (e.g. a test, or a non-fsnotify watcher) can call it
// directly.
func (w *Website[G]) Invalidate(changes ...Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, changes...)
}

// Build runs one generation: the first call always evaluates the whole
// graph; subsequent calls restrict evaluation to the dirty closure of
// whatever changes were recorded via Invalidate since the last Build (an
// empty changeset reuses every node's previous result verbatim, so two
// back-to-back Builds with no intervening change are idempotent -- spec
// §8 property 10). On success, outputs are atomically published to the
// output directory and a Report is pushed to Completions().
func (w *Website[G]) Build(ctx context.Context, g G) (Report, error) {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	prev := w.cache
	w.generation++
	generation := w.generation
	w.mu.Unlock()

	var ds *dirtyState
	if prev == nil {
		ds = fullDirtyState()
	} else {
		checked, forced := w.track.directHits(pending)
		ds = w.track.propagate(checked, forced)
	}

	next, outputs, report, err := w.exec.run(ctx, g, prev, ds, generation)
	if err != nil {
		w.logger.Error().Err(err).Int("generation", generation).Msg("build failed")
		w.requeue(pending, generation)
		return Report{}, err
	}
	if err := w.collect.Publish(outputs); err != nil {
		w.logger.Error().Err(err).Int("generation", generation).Msg("publish failed")
		w.requeue(pending, generation)
		return Report{}, err
	}

	w.mu.Lock()
	w.cache = next
	w.mu.Unlock()

	w.signal.publish(report)
	return report, nil
}

// requeue restores changes a failed generation consumed to the front of
// w.pending, whether or not a newer generation has started in the
// meantime (w.generation, which Build bumps before running, tells the two
// cases apart). Without this, a failed Build silently drops the filesystem
// changes that triggered it, and the next Build computes its dirty set
// against an empty pending list -- serving stale content for those
// paths even though Watch is documented to keep running after an error
// (spec §7).
func (w *Website[G]) requeue(changes []Change, generation int) {
	if len(changes) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != generation {
		// a newer Build already started (and consumed a fresh, disjoint
		// pending list) while this one was running, so its dirty set does
		// not cover these changes; fold them in, on a fresh slice, ahead of
		// whatever has been queued since.
		w.pending = append(append([]Change(nil), changes...), w.pending...)
		return
	}
	w.pending = append(changes, w.pending...)
}

// Watch runs Build once up front, then again every time fw delivers a
// change, until ctx is cancelled or fw is exhausted (spec §6 "watch(G)",
// §7 "watch() logs [errors] and remains running, awaiting the next
// change"). Watch does not return on a build error; it only returns when
// ctx is done or fw's channel closes, at which point it closes fw.
func (w *Website[G]) Watch(ctx context.Context, g G, fw FileWatcher) error {
	defer fw.Close()

	if _, err := w.Build(ctx, g); err != nil {
		w.logger.Error().Err(err).Msg("initial build failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch, ok := <-fw.Changes():
			if !ok {
				return nil
			}
			changes := []Change{ch}
			draining := true
			for draining {
				select {
				case ch2, ok := <-fw.Changes():
					if !ok {
						draining = false
						break
					}
					changes = append(changes, ch2)
				default:
					draining = false
				}
			}
			w.Invalidate(changes...)
			if _, err := w.Build(ctx, g); err != nil {
				w.logger.Error().Err(err).Msg("rebuild failed")
			}
		}
	}
}

// Completions returns the Signal that publishes a Report at the end of
// every successful Build, for a dev-server collaborator to watch (spec
// §6 "Dev-server collaborator... consumes only the completion signal",
// §3.7).
func (w *Website[G]) Completions() *Signal {
	return w.signal
}
