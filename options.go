package weft

import (
	"runtime"

	"github.com/rs/zerolog"
)

// Options configures a Website. The zero Options, passed through
// defaultOptions, is a reasonable default: a worker per logical CPU, a
// ".cache" directory, a "dist" output directory, and a no-op logger --
// matching the teacher's pattern of a small typed configuration struct
// plus functional-option constructors (batch.NewCaller, watcher.WithUpdater).
type Options struct {
	cacheDir string
	distDir  string
	workers  int
	logger   zerolog.Logger
}

// Option configures a Website at construction time.
type Option func(*Options)

// WithCacheDir overrides the default ".cache" artifact-store root.
func WithCacheDir(dir string) Option {
	return func(o *Options) { o.cacheDir = dir }
}

// WithOutputDir overrides the default "dist" published-output directory.
func WithOutputDir(dir string) Option {
	return func(o *Options) { o.distDir = dir }
}

// WithWorkers overrides the worker pool width. A non-positive value is
// ignored, leaving the default (logical CPU count) or any earlier setting.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger attaches a structured logger. Following
// cuemby-warren/pkg/log's component-scoped child-logger convention, the
// executor and tracker derive their own child loggers from this one via
// logger.With().Str("component", ...).Logger() rather than mutating any
// shared global state.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.logger = l }
}

func defaultOptions() Options {
	return Options{
		cacheDir: ".cache",
		distDir:  "dist",
		workers:  max(1, runtime.NumCPU()),
		logger:   zerolog.Nop(),
	}
}

func buildOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
