// Package cas implements a content-addressed artifact store: bytes go in,
// a stable URL comes out, and identical bytes always resolve to the same
// file on disk regardless of how many callers store them concurrently.
//
// Storage uses BLAKE3 (lukechampine.com/blake3), following the same
// BLAKE3-CAS pairing used elsewhere in the corpus for content-addressed
// filesystem trees.
package cas

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"
)

// Store is a directory-backed content-addressed store rooted at
// <root>/hash, where root is the directory passed to New. The zero Store
// is not usable; construct one with New.
type Store struct {
	dir string // <root>/hash
}

// New returns a Store rooted at filepath.Join(root, "hash"), creating the
// directory if it does not already exist.
func New(root string) (*Store, error) {
	dir := filepath.Join(root, "hash")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cas: create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Digest returns the lowercase hex BLAKE3-256 digest of b. It's also used
// by the incremental tracker as the per-file/per-key fingerprint (spec
// §9 "per-key fingerprint storage").
func Digest(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Store writes b under hash/<digest(b)>.<ext> and returns the public URL
// for it (/hash/<digest>.<ext>). If the target file already exists it is
// assumed (by the content-addressing invariant) to hold identical bytes
// and is not rewritten.
//
// Store is safe for concurrent use: the write goes to a sibling temp file
// first, then an atomic rename publishes it, so no reader ever observes a
// partial file, and concurrent calls storing identical bytes converge on
// the same byte-identical target (spec §4.A, §8 properties 5-6).
func (s *Store) Store(b []byte, ext string) (string, error) {
	digest := Digest(b)
	name := digest + normalizeExt(ext)
	target := filepath.Join(s.dir, name)

	if _, err := os.Stat(target); err == nil {
		return publicURL(name), nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("cas: stat %s: %w", target, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("cas: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// Always attempt to remove the temp file; after a successful rename
	// it no longer exists and Remove is a silent no-op error we ignore.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return "", fmt.Errorf("cas: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("cas: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("cas: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("cas: rename into place: %w", err)
	}
	return publicURL(name), nil
}

// Open opens a previously stored artifact by its digest and extension for
// reading. Callers normally don't need this (they hold the URL Store
// returned), but it's useful for verifying CAS contents in tests.
func (s *Store) Open(digest, ext string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, digest+normalizeExt(ext)))
}

// Dir returns the directory the artifacts are stored in (<root>/hash).
func (s *Store) Dir() string {
	return s.dir
}

func normalizeExt(ext string) string {
	if ext == "" || ext[0] == '.' {
		return ext
	}
	return "." + ext
}

func publicURL(name string) string {
	return "/hash/" + name
}
