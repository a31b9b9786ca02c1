package weft

import (
	"sync"

	"github.com/weftsite/weft/cas"
	"github.com/weftsite/weft/importmap"
)

// Store is the capability a task body uses to persist bytes via the
// content-addressed store and to register entries into its node's local
// import map (spec §4.A, §4.B, §4.G.4). The executor hands each body
// invocation its own Store so that artifacts and import-map entries
// registered during that invocation can be attributed to the right node
// (or, for a per-key fine node, the right key) without any locking from
// the caller's point of view.
type Store struct {
	cas *cas.Store

	mu      sync.Mutex
	local   importmap.Map
	outputs []Output
}

func newStore(c *cas.Store) *Store {
	return &Store{cas: c}
}

// Store writes b under hash/<digest>.<ext> in the content-addressed
// store and returns its public URL (spec §4.A).
func (s *Store) Store(b []byte, ext string) (string, error) {
	url, err := s.cas.Store(b, ext)
	if err != nil {
		return "", &IoError{Op: "cas store", Err: err}
	}
	return url, nil
}

// Fingerprint returns the BLAKE3 digest of b, for callers that want to
// compute their own structural fingerprints for derived nodes (spec §3
// Result cache, optional structural hash).
func (s *Store) Fingerprint(b []byte) string {
	return cas.Digest(b)
}

// Register adds specifier -> url to this invocation's local import map,
// which takes precedence over inherited entries on collision (spec
// §4.B).
func (s *Store) Register(specifier, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = s.local.Register(specifier, url)
}

// Emit records an Output to be gathered by the output collector (spec
// §4.I).
func (s *Store) Emit(o Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, o)
}

func (s *Store) localMap() importmap.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *Store) collectedOutputs() []Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs
}
