package cas_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/weftsite/weft/cas"
)

func TestStoreDeterministic(t *testing.T) {
	dir := t.TempDir()
	s, err := cas.New(dir)
	qt.Assert(t, qt.IsNil(err))

	u1, err := s.Store([]byte("xyz"), "txt")
	qt.Assert(t, qt.IsNil(err))
	u2, err := s.Store([]byte("xyz"), "txt")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(u1, u2))

	entries, err := os.ReadDir(filepath.Join(dir, "hash"))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(entries, 1))
}

func TestStoreConcurrent(t *testing.T) {
	dir := t.TempDir()
	s, err := cas.New(dir)
	qt.Assert(t, qt.IsNil(err))

	const n = 32
	urls := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(i int) {
			defer wg.Done()
			u, err := s.Store([]byte("same content"), "bin")
			if err != nil {
				t.Error(err)
				return
			}
			urls[i] = u
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		qt.Assert(t, qt.Equals(urls[i], urls[0]))
	}
	entries, err := os.ReadDir(filepath.Join(dir, "hash"))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(entries, 1))
}

func TestDigestStability(t *testing.T) {
	qt.Assert(t, qt.Equals(cas.Digest([]byte("abc")), cas.Digest([]byte("abc"))))
	qt.Assert(t, qt.Not(qt.Equals(cas.Digest([]byte("abc")), cas.Digest([]byte("abd")))))
}
