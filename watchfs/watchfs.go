// Package watchfs supplies one optional, fsnotify-backed implementation
// of weft.FileWatcher (spec §6 "File-watching collaborator"). It is
// outside the hard core (components A-I): deleting this package changes
// nothing about graph, executor, or tracker correctness, since
// Website.Watch only depends on the weft.FileWatcher interface, not on
// fsnotify itself.
package watchfs

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/weftsite/weft"
)

// Watcher recursively watches a set of root directories and delivers
// debounced weft.Change events. Rapid repeat events for the same path
// within the debounce window collapse into a single delivery, since
// editors commonly emit several fsnotify events (write, chmod, rename)
// for one logical save.
type Watcher struct {
	fsw      *fsnotify.Watcher
	out      chan weft.Change
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]weft.Change
	timer   *time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the default 100ms debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger attaches a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New starts watching roots (recursively) for create/write/remove/rename
// events and returns a ready-to-use Watcher satisfying weft.FileWatcher.
func New(roots []string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		out:      make(chan weft.Change, 64),
		debounce: 100 * time.Millisecond,
		logger:   zerolog.Nop(),
		pending:  make(map[string]weft.Change),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str("component", "watchfs").Logger()

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.record(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("fsnotify error")
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) record(ev fsnotify.Event) {
	kind := weft.Modified
	switch {
	case ev.Has(fsnotify.Create):
		kind = weft.Created
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = weft.Deleted
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[ev.Name] = weft.Change{Path: ev.Name, Kind: kind}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	changes := w.pending
	w.pending = make(map[string]weft.Change)
	w.timer = nil
	w.mu.Unlock()

	for _, ch := range changes {
		select {
		case w.out <- ch:
		case <-w.done:
			return
		}
	}
}

// Changes implements weft.FileWatcher.
func (w *Watcher) Changes() <-chan weft.Change {
	return w.out
}

// Close implements weft.FileWatcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		close(w.out)
	})
	return err
}
