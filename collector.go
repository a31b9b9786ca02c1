package weft

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/weftsite/weft/cas"
)

// Output is a single rendered site file, returned by a task body and
// gathered by the collector (spec §3 Output, §4.I).
type Output struct {
	// Path is a site-relative URL path, e.g. "/index.html" or
	// "/blog/post-1/index.html".
	Path string
	// Body holds the bytes to write. Exactly one of Body or Text should
	// be set; Text exists so callers producing HTML/CSS/JS don't need
	// to convert to []byte themselves.
	Body []byte
	Text string
}

func (o Output) bytes() []byte {
	if o.Text != "" {
		return []byte(o.Text)
	}
	return o.Body
}

// collector gathers every Output produced during a generation,
// deduplicates by path (later writes override, with a warning -- spec
// §4.I, §9 open question: "later wins with warning"), and atomically
// publishes them into the public output directory.
//
// Across generations it remembers what it last wrote (path -> content
// digest) so that an unchanged output is hard-linked from the existing
// tree rather than rewritten: this is what makes spec §8 properties 6
// ("deletion... without touching a's or c's file modification times")
// and 10 ("idempotent build... byte-identical output trees") hold
// without requiring every file in the tree to be rewritten on every
// generation.
type collector struct {
	distDir  string
	logger   zerolog.Logger
	manifest map[string]string // path -> content digest, as of the last Publish
}

func newCollector(distDir string, logger zerolog.Logger) *collector {
	return &collector{
		distDir:  distDir,
		logger:   logger.With().Str("component", "collector").Logger(),
		manifest: make(map[string]string),
	}
}

// dedupe keeps the last Output per Path, warning on every override, and
// returns the survivors sorted by Path for determinism.
func (c *collector) dedupe(outputs []Output) []Output {
	latest := make(map[string]Output, len(outputs))
	order := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if _, ok := latest[o.Path]; !ok {
			order = append(order, o.Path)
		} else {
			c.logger.Warn().Str("path", o.Path).Msg("duplicate output path, later write overrides earlier one")
		}
		latest[o.Path] = o
	}
	sort.Strings(order)
	result := make([]Output, 0, len(order))
	for _, p := range order {
		result = append(result, latest[p])
	}
	return result
}

// Publish writes outputs into a fresh staging directory and atomically
// swaps it with distDir (spec §4.I). Outputs whose content digest
// matches what's already published at that path are hard-linked from
// the existing tree instead of rewritten.
func (c *collector) Publish(outputs []Output) error {
	deduped := c.dedupe(outputs)

	parent := filepath.Dir(c.distDir)
	staging, err := os.MkdirTemp(parent, ".weft-staging-*")
	if err != nil {
		return &IoError{Op: "create staging dir", Err: err}
	}
	defer os.RemoveAll(staging)

	newManifest := make(map[string]string, len(deduped))
	for _, o := range deduped {
		rel := strings.TrimPrefix(o.Path, "/")
		target := filepath.Join(staging, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return &IoError{Op: "mkdir for output " + o.Path, Err: err}
		}

		digest := cas.Digest(o.bytes())
		newManifest[o.Path] = digest

		if c.manifest[o.Path] == digest {
			existing := filepath.Join(c.distDir, filepath.FromSlash(rel))
			if err := os.Link(existing, target); err == nil {
				continue
			}
			// Fall through to a plain write if the existing file is
			// gone or linking isn't supported (e.g. cross-device).
		}
		if err := writeFileAtomic(target, o.bytes()); err != nil {
			return &IoError{Op: "write output " + o.Path, Err: err}
		}
	}

	swapPath := c.distDir + ".prev"
	os.RemoveAll(swapPath)
	if _, err := os.Stat(c.distDir); err == nil {
		if err := os.Rename(c.distDir, swapPath); err != nil {
			return &IoError{Op: "move aside previous output tree", Err: err}
		}
	}
	if err := os.Rename(staging, c.distDir); err != nil {
		os.Rename(swapPath, c.distDir) // best-effort restore
		return &IoError{Op: "publish output tree", Err: err}
	}
	os.RemoveAll(swapPath)
	c.manifest = newManifest
	return nil
}

func writeFileAtomic(target string, b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
