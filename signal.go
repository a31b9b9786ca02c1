package weft

import "sync"

// Report summarizes one build generation: how much work the executor
// actually did, as opposed to reused from cache (SPEC_FULL.md §3.5).
type Report struct {
	Generation   int
	NodesRun     int
	KeysRun      int
	KeysReused   int
	OutputsCount int
	OutputBytes  int
}

// Signal publishes successive build Reports and lets any number of
// dev-server-style collaborators watch for the next one, without the
// core ever touching HTTP or WebSockets itself (spec §6 "Dev-server
// collaborator... consumes only the completion signal of each build
// generation").
//
// This is rogpeppe-generic/watcher.Value[Report] in spirit: a
// version-counted value plus a condition variable, adapted so it can't be
// imported as a third-party generic utility (weft lives in its own
// module) but keeps the same Watch/Next shape so a caller already
// familiar with that pattern needs no new mental model. Publishing is the
// unexported publish method, so only the Website can set a new report.
type Signal struct {
	mu      sync.RWMutex
	cond    sync.Cond
	version int
	report  Report
	closed  bool
}

// NewSignal returns a ready-to-use Signal with no report published yet;
// the first Watcher.Next call blocks until the first generation
// completes.
func NewSignal() *Signal {
	s := &Signal{}
	s.cond.L = s.mu.RLocker()
	return s
}

// publish makes r the latest report and wakes any blocked watchers.
func (s *Signal) publish(r Report) {
	s.mu.Lock()
	s.version++
	s.report = r
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Close unblocks any outstanding watchers permanently.
func (s *Signal) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Latest returns the most recently published report, if any.
func (s *Signal) Latest() (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report, s.version > 0
}

// Watch returns a fresh SignalWatcher over s.
func (s *Signal) Watch() *SignalWatcher {
	return &SignalWatcher{signal: s}
}

// SignalWatcher tracks how much of a Signal's history one caller has
// already consumed.
type SignalWatcher struct {
	signal  *Signal
	version int
	report  Report
}

// Next blocks until a new Report has been published since this watcher
// last observed one, then returns true. It returns false once the
// Signal has been closed and there's nothing further to observe.
func (w *SignalWatcher) Next() bool {
	s := w.signal
	s.mu.RLock()
	defer s.mu.RUnlock()
	for {
		if w.version != s.version {
			w.version = s.version
			w.report = s.report
			return true
		}
		if s.closed {
			return false
		}
		s.cond.Wait()
	}
}

// Report returns the report last observed by Next.
func (w *SignalWatcher) Report() Report {
	return w.report
}
