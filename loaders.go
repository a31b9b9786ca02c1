package weft

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/weftsite/weft/cas"
	"github.com/weftsite/weft/importmap"
)

// globEnumerate implements the fineKeysFn shape shared by every loader
// node: walk root for files matching pattern, read each one, and
// fingerprint it by its raw-byte BLAKE3 digest (spec §4.A "fingerprint",
// §9 per-key fingerprint note). Keys are root-relative, slash-separated
// paths, sorted for a deterministic evaluation order.
func globEnumerate(root, pattern string) ([]Key, map[Key]string, map[Key][]byte, map[Key]any, error) {
	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, nil, nil, &LoaderError{Path: filepath.Join(root, pattern), Err: err}
	}
	sort.Strings(matches)

	raw := make(map[Key][]byte, len(matches))
	fps := make(map[Key]string, len(matches))
	for _, rel := range matches {
		b, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return nil, nil, nil, nil, &LoaderError{Path: rel, Reason: "read failed", Err: err}
		}
		raw[rel] = b
		fps[rel] = cas.Digest(b)
	}
	return matches, fps, raw, nil, nil
}

// LoadDocuments is a convenience wrapper over Glob with the default
// `**/*.md` pattern (spec §3.8). f does the actual markdown parsing --
// weft supplies only the glob-and-dispatch plumbing, per spec.md's
// "concrete loaders... out of scope" Non-goal.
func LoadDocuments[G, R any](bp *Blueprint[G], root, pattern string, f func(ctx context.Context, g G, path string, raw []byte, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) Many[R] {
	return Glob(bp, root, orDefault(pattern, "**/*.md"), f, opts...)
}

// LoadImage is a convenience wrapper over Glob with a default image-
// extension pattern; f does the actual resizing/encoding.
func LoadImage[G, R any](bp *Blueprint[G], root, pattern string, f func(ctx context.Context, g G, path string, raw []byte, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) Many[R] {
	return Glob(bp, root, orDefault(pattern, "**/*.{png,jpg,jpeg,gif,webp,svg}"), f, opts...)
}

// LoadCSS is a convenience wrapper over Glob with the default `**/*.css`
// pattern; f does the actual minification/bundling.
func LoadCSS[G, R any](bp *Blueprint[G], root, pattern string, f func(ctx context.Context, g G, path string, raw []byte, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) Many[R] {
	return Glob(bp, root, orDefault(pattern, "**/*.css"), f, opts...)
}

// LoadJS is a convenience wrapper over Glob with the default `**/*.js`
// pattern; f does the actual bundling/minification.
func LoadJS[G, R any](bp *Blueprint[G], root, pattern string, f func(ctx context.Context, g G, path string, raw []byte, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) Many[R] {
	return Glob(bp, root, orDefault(pattern, "**/*.js"), f, opts...)
}

// LoadSvelte is a convenience wrapper over Glob with the default
// `**/*.svelte` pattern; f is expected to shell out to an external SSR
// process (spec §6 "External processes" -- opaque to the core).
func LoadSvelte[G, R any](bp *Blueprint[G], root, pattern string, f func(ctx context.Context, g G, path string, raw []byte, s *Store, inherited importmap.Map) (R, error), opts ...TaskOption) Many[R] {
	return Glob(bp, root, orDefault(pattern, "**/*.svelte"), f, opts...)
}

// LoadSitemap is a convenience wrapper over MergeMany1: it gathers every
// rendered Output from deps and hands them to f, which is expected to
// return a single sitemap Output (spec §3.8 table).
func LoadSitemap[G any](bp *Blueprint[G], deps Many[Output], f func(ctx context.Context, g G, outputs Collection[Output], s *Store, inherited importmap.Map) (Output, error), opts ...TaskOption) One[Output] {
	return MergeMany1(bp, deps, f, opts...)
}

// LoadPagefind is a convenience wrapper over MergeMany1: it gathers every
// rendered Output from deps and hands them to f, which is expected to
// return the search-index Outputs it derives from them (spec §3.8 table).
func LoadPagefind[G any](bp *Blueprint[G], deps Many[Output], f func(ctx context.Context, g G, outputs Collection[Output], s *Store, inherited importmap.Map) ([]Output, error), opts ...TaskOption) One[[]Output] {
	return MergeMany1(bp, deps, f, opts...)
}

func orDefault(pattern, def string) string {
	if pattern == "" {
		return def
	}
	return pattern
}
