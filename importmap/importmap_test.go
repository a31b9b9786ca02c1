package importmap_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/weftsite/weft/importmap"
)

func TestMergeDistinctKeys(t *testing.T) {
	p1 := importmap.Map{}.Register("a", "/hash/1.js")
	p2 := importmap.Map{}.Register("b", "/hash/2.js")
	got := importmap.MergeAll([]importmap.Map{p1, p2})

	u, ok := got.Lookup("a")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(u, "/hash/1.js"))

	u, ok = got.Lookup("b")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(u, "/hash/2.js"))
	qt.Assert(t, qt.Equals(got.Len(), 2))
}

func TestLocalTakesPrecedence(t *testing.T) {
	inherited := importmap.Map{}.Register("a", "/hash/old.js")
	local := importmap.Map{}.Register("a", "/hash/new.js")
	got := importmap.Merge(inherited, local)
	u, ok := got.Lookup("a")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(u, "/hash/new.js"))
}

func TestZeroMapIsEmpty(t *testing.T) {
	var m importmap.Map
	qt.Assert(t, qt.Equals(m.Len(), 0))
	_, ok := m.Lookup("anything")
	qt.Assert(t, qt.IsFalse(ok))
}

func TestAllIteratesEveryBinding(t *testing.T) {
	m := importmap.Map{}.Register("a", "/hash/1.js").Register("b", "/hash/2.js")

	seen := map[string]string{}
	for k, v := range m.All() {
		seen[k] = v
	}
	qt.Assert(t, qt.HasLen(seen, 2))
	qt.Assert(t, qt.Equals(seen["a"], "/hash/1.js"))
	qt.Assert(t, qt.Equals(seen["b"], "/hash/2.js"))
}

func TestAllStopsOnFalse(t *testing.T) {
	m := importmap.Map{}.Register("a", "/hash/1.js").Register("b", "/hash/2.js")

	count := 0
	for range m.All() {
		count++
		break
	}
	qt.Assert(t, qt.Equals(count, 1))
}
