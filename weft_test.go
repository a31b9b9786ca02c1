package weft_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-quicktest/qt"

	"github.com/weftsite/weft"
	"github.com/weftsite/weft/importmap"
)

type siteCtx struct{}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	qt.Assert(t, qt.IsNil(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)))
}

func newBlueprint(t *testing.T) *weft.Blueprint[siteCtx] {
	t.Helper()
	return weft.New[siteCtx](
		weft.WithCacheDir(filepath.Join(t.TempDir(), "cache")),
		weft.WithOutputDir(filepath.Join(t.TempDir(), "dist")),
	)
}

// buildDiamond wires spec §8 Scenario 1's diamond: a loader L of three
// files, two independent merges M (length sum) and N (concat) over L's
// whole collection, and a final merge R combining them -- and instruments
// L's mapper with a counter so tests can assert exactly-once evaluation.
func buildDiamond(t *testing.T, root, distDir string) (*weft.Website[siteCtx], *int32) {
	t.Helper()
	var loaderRuns int32
	bp := weft.New[siteCtx](
		weft.WithCacheDir(filepath.Join(t.TempDir(), "cache")),
		weft.WithOutputDir(distDir),
	)

	l := weft.Glob(bp, root, "*.txt", func(_ context.Context, _ siteCtx, _ string, raw []byte, _ *weft.Store, _ importmap.Map) (string, error) {
		atomic.AddInt32(&loaderRuns, 1)
		return string(raw), nil
	}, weft.Named("L"))

	m := weft.MergeMany1(bp, l, func(_ context.Context, _ siteCtx, items weft.Collection[string], _ *weft.Store, _ importmap.Map) (int, error) {
		total := 0
		for _, v := range items.Values() {
			total += len(v)
		}
		return total, nil
	}, weft.Named("M"))

	n := weft.MergeMany1(bp, l, func(_ context.Context, _ siteCtx, items weft.Collection[string], _ *weft.Store, _ importmap.Map) (string, error) {
		out := ""
		for _, k := range items.Keys() {
			v, _ := items.Get(k)
			out += v
		}
		return out, nil
	}, weft.Named("N"))

	weft.Merge2(bp, m, n, func(_ context.Context, _ siteCtx, m int, n string, s *weft.Store, _ importmap.Map) (string, error) {
		result := fmt.Sprintf("%d:%s", m, n)
		s.Emit(weft.Output{Path: "/result.txt", Text: result})
		return result, nil
	}, weft.Named("R"))

	site, err := bp.Finish()
	qt.Assert(t, qt.IsNil(err))
	return site, &loaderRuns
}

func readDist(t *testing.T, distDir, path string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(distDir, filepath.FromSlash(path)))
	qt.Assert(t, qt.IsNil(err))
	return string(b)
}

func TestDiamondExactlyOnce(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "c.txt", "c")
	dist := filepath.Join(t.TempDir(), "dist")

	site, loaderRuns := buildDiamond(t, root, dist)
	report, err := site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.Equals(atomic.LoadInt32(loaderRuns), 3))
	qt.Assert(t, qt.Equals(report.KeysRun, 3))
	qt.Assert(t, qt.Equals(readDist(t, dist, "/result.txt"), "3:abc"))
}

func TestSurgicalRebuildOnEdit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "c.txt", "c")
	dist := filepath.Join(t.TempDir(), "dist")

	site, loaderRuns := buildDiamond(t, root, dist)
	_, err := site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(atomic.LoadInt32(loaderRuns), 3))

	writeFile(t, root, "b.txt", "bb")
	site.Invalidate(weft.Change{Path: filepath.Join(root, "b.txt"), Kind: weft.Modified})
	report, err := site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))

	// Only b's key re-ran in L; M, N and R (non-per-item consumers) re-run
	// in full since an upstream Many key changed (spec §4.H.3, §8 property
	// 8). loaderRuns is cumulative across both generations.
	qt.Assert(t, qt.Equals(atomic.LoadInt32(loaderRuns), 4))
	qt.Assert(t, qt.Equals(report.KeysRun, 1))
	qt.Assert(t, qt.Equals(report.KeysReused, 2))
	qt.Assert(t, qt.Equals(readDist(t, dist, "/result.txt"), "4:abbc"))
}

func TestIdempotentRebuildWithNoChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "c.txt", "c")
	dist := filepath.Join(t.TempDir(), "dist")

	site, _ := buildDiamond(t, root, dist)
	_, err := site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))
	before := readDist(t, dist, "/result.txt")

	report, err := site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.Equals(report.NodesRun, 0))
	qt.Assert(t, qt.Equals(report.KeysRun, 0))
	qt.Assert(t, qt.Equals(report.KeysReused, 3))
	qt.Assert(t, qt.Equals(readDist(t, dist, "/result.txt"), before))
}

func TestImportMapPropagation(t *testing.T) {
	bp := weft.New[siteCtx]()
	p1 := weft.Task(bp, func(_ context.Context, _ siteCtx, s *weft.Store, _ importmap.Map) (string, error) {
		s.Register("a", "/hash/1.js")
		return "p1", nil
	}, weft.Named("P1"))
	p2 := weft.Task(bp, func(_ context.Context, _ siteCtx, s *weft.Store, _ importmap.Map) (string, error) {
		s.Register("b", "/hash/2.js")
		return "p2", nil
	}, weft.Named("P2"))

	var seen importmap.Map
	weft.Merge2(bp, p1, p2, func(_ context.Context, _ siteCtx, _ string, _ string, _ *weft.Store, inherited importmap.Map) (string, error) {
		seen = inherited
		return "c", nil
	}, weft.Named("C"))

	site, err := bp.Finish()
	qt.Assert(t, qt.IsNil(err))
	_, err = site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))

	a, ok := seen.Lookup("a")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(a, "/hash/1.js"))
	b, ok := seen.Lookup("b")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(b, "/hash/2.js"))
}

func TestCASDedupThroughPublicAPI(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	bp := weft.New[siteCtx](weft.WithCacheDir(cacheDir))

	t1 := weft.Task(bp, func(_ context.Context, _ siteCtx, s *weft.Store, _ importmap.Map) (string, error) {
		return s.Store([]byte("xyz"), "txt")
	}, weft.Named("T1"))
	t2 := weft.Task(bp, func(_ context.Context, _ siteCtx, s *weft.Store, _ importmap.Map) (string, error) {
		return s.Store([]byte("xyz"), "txt")
	}, weft.Named("T2"))

	var u1, u2 string
	weft.Merge2(bp, t1, t2, func(_ context.Context, _ siteCtx, a, b string, _ *weft.Store, _ importmap.Map) (string, error) {
		u1, u2 = a, b
		return "", nil
	}, weft.Named("Check"))

	site, err := bp.Finish()
	qt.Assert(t, qt.IsNil(err))
	_, err = site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.Equals(u1, u2))
	entries, err := os.ReadDir(filepath.Join(cacheDir, "hash"))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(entries, 1))
}

// TestFailedBuildRequeuesPendingChanges covers spec §7's "watch() logs
// [errors] and remains running, awaiting the next change": a generation
// that fails after consuming the pending changeset must not drop it --
// the very next Build (even with no intervening Invalidate) has to pick
// those changes back up rather than silently serving stale content for
// them forever.
func TestFailedBuildRequeuesPendingChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")
	dist := filepath.Join(t.TempDir(), "dist")

	bp := weft.New[siteCtx](
		weft.WithCacheDir(filepath.Join(t.TempDir(), "cache")),
		weft.WithOutputDir(dist),
	)
	l := weft.Glob(bp, root, "*.txt", func(_ context.Context, _ siteCtx, _ string, raw []byte, _ *weft.Store, _ importmap.Map) (string, error) {
		return string(raw), nil
	}, weft.Named("L"))

	var failNext int32
	weft.MergeMany1(bp, l, func(_ context.Context, _ siteCtx, items weft.Collection[string], s *weft.Store, _ importmap.Map) (string, error) {
		if atomic.CompareAndSwapInt32(&failNext, 1, 0) {
			return "", fmt.Errorf("injected failure")
		}
		out := ""
		for _, k := range items.Keys() {
			v, _ := items.Get(k)
			out += v
		}
		s.Emit(weft.Output{Path: "/result.txt", Text: out})
		return out, nil
	}, weft.Named("R"))

	site, err := bp.Finish()
	qt.Assert(t, qt.IsNil(err))
	_, err = site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(readDist(t, dist, "/result.txt"), "ab"))

	writeFile(t, root, "b.txt", "bb")
	site.Invalidate(weft.Change{Path: filepath.Join(root, "b.txt"), Kind: weft.Modified})
	atomic.StoreInt32(&failNext, 1)
	_, err = site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.Not(qt.IsNil(err)))
	// output on disk is untouched by the failed generation
	qt.Assert(t, qt.Equals(readDist(t, dist, "/result.txt"), "ab"))

	// No further Invalidate: the edit to b.txt must still be reflected,
	// because Build re-queued it after the injected failure.
	report, err := site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(report.KeysRun, 1))
	qt.Assert(t, qt.Equals(readDist(t, dist, "/result.txt"), "abb"))
}

func TestDeletionOmitsOutputWithoutTouchingSiblings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "c.txt", "c")
	dist := filepath.Join(t.TempDir(), "dist")

	bp := weft.New[siteCtx](
		weft.WithCacheDir(filepath.Join(t.TempDir(), "cache")),
		weft.WithOutputDir(dist),
	)
	l := weft.Glob(bp, root, "*.txt", func(_ context.Context, _ siteCtx, path string, raw []byte, _ *weft.Store, _ importmap.Map) (string, error) {
		return string(raw), nil
	}, weft.Named("L"))
	weft.EachMap1(bp, l, func(_ context.Context, _ siteCtx, item weft.Tracker[string], s *weft.Store, _ importmap.Map) (string, error) {
		s.Emit(weft.Output{Path: "/" + item.Key + ".out", Text: item.Value})
		return item.Value, nil
	}, weft.Named("Page"))

	site, err := bp.Finish()
	qt.Assert(t, qt.IsNil(err))
	_, err = site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))

	aInfo, err := os.Stat(filepath.Join(dist, "a.txt.out"))
	qt.Assert(t, qt.IsNil(err))
	cInfo, err := os.Stat(filepath.Join(dist, "c.txt.out"))
	qt.Assert(t, qt.IsNil(err))
	aModTime := aInfo.ModTime()
	cModTime := cInfo.ModTime()

	time.Sleep(10 * time.Millisecond)
	bPath := filepath.Join(root, "b.txt")
	qt.Assert(t, qt.IsNil(os.Remove(bPath)))
	site.Invalidate(weft.Change{Path: bPath, Kind: weft.Deleted})
	_, err = site.Build(context.Background(), siteCtx{})
	qt.Assert(t, qt.IsNil(err))

	_, err = os.Stat(filepath.Join(dist, "b.txt.out"))
	qt.Assert(t, qt.IsTrue(os.IsNotExist(err)))

	aInfo2, err := os.Stat(filepath.Join(dist, "a.txt.out"))
	qt.Assert(t, qt.IsNil(err))
	cInfo2, err := os.Stat(filepath.Join(dist, "c.txt.out"))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(aInfo2.ModTime().Equal(aModTime)))
	qt.Assert(t, qt.IsTrue(cInfo2.ModTime().Equal(cModTime)))
}
