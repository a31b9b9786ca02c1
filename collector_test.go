package weft

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

// TestDedupeKeepsLastWritePerPath exercises the collector's override-with-
// warning policy (spec §4.I, §9 "later wins with warning") and compares the
// resulting []Output with go-cmp rather than qt.Equals, since Output embeds
// a []byte/string body that qt.Equals' comparable-only constraint can't
// handle (SPEC_FULL.md §1 "Test tooling").
func TestDedupeKeepsLastWritePerPath(t *testing.T) {
	c := newCollector(t.TempDir(), zerolog.Nop())

	got := c.dedupe([]Output{
		{Path: "/b.html", Text: "first-b"},
		{Path: "/a.html", Text: "only-a"},
		{Path: "/b.html", Text: "second-b"},
	})

	want := []Output{
		{Path: "/a.html", Text: "only-a"},
		{Path: "/b.html", Text: "second-b"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dedupe mismatch (-want +got):\n%s", diff)
	}
}

// TestDedupeSingleOutputUnchanged checks the no-collision path returns
// every output, still structurally compared via go-cmp.
func TestDedupeSingleOutputUnchanged(t *testing.T) {
	c := newCollector(t.TempDir(), zerolog.Nop())

	outputs := []Output{
		{Path: "/x.css", Body: []byte("body{}")},
	}
	got := c.dedupe(outputs)

	qt.Assert(t, qt.HasLen(got, 1))
	if diff := cmp.Diff(outputs, got); diff != "" {
		t.Fatalf("dedupe mismatch (-want +got):\n%s", diff)
	}
}
