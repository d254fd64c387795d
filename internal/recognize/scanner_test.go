package recognize

import (
	"context"
	"testing"

	"github.com/example/bookcover/internal/catalog"
	"github.com/example/bookcover/internal/descriptor"
	"github.com/example/bookcover/internal/match"
)

// distinctSet builds n single-byte descriptors that are far apart under
// Hamming distance, so a set matched against an identical copy accepts every
// descriptor.
func distinctSet(n int) descriptor.Set {
	values := []byte{0x00, 0xFF, 0x0F, 0xF0, 0x33, 0xCC, 0x55, 0xAA}
	out := make(descriptor.Set, n)
	for i := range out {
		out[i] = descriptor.Descriptor{values[i%len(values)], byte(i)}
	}
	return out
}

func entry(id string, set descriptor.Set) *catalog.Entry {
	return &catalog.Entry{BookID: id, Name: "book " + id, Descriptors: set}
}

func TestScanEmptyCatalog(t *testing.T) {
	s := &Scanner{}
	summary, err := s.Scan(context.Background(), distinctSet(4), nil)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !summary.NoCandidates() {
		t.Fatalf("expected no-candidates summary, got %+v", summary)
	}
	if summary.BestScore != 0 {
		t.Fatalf("expected zero score, got %v", summary.BestScore)
	}
}

func TestScanSelectsExactCopy(t *testing.T) {
	query := distinctSet(8)
	// Three identical descriptors: every query descriptor sees a distance
	// tie between its two nearest neighbors, so nothing is accepted.
	unmatchable := descriptor.Set{
		{0x00, 0xEE}, {0x00, 0xEE}, {0x00, 0xEE},
	}
	entries := []*catalog.Entry{
		entry("other", unmatchable),
		entry("exact", query.Clone()),
	}

	s := &Scanner{}
	summary, err := s.Scan(context.Background(), query, entries)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if summary.Best == nil || summary.Best.BookID != "exact" {
		t.Fatalf("expected exact copy to win, got %+v", summary.Best)
	}
	if summary.BestScore != 1 {
		t.Fatalf("expected maximum score for identical set, got %v", summary.BestScore)
	}
	if len(summary.Evaluated) != len(entries) {
		t.Fatalf("expected breakdown for every entry, got %d", len(summary.Evaluated))
	}
}

func TestScanTieBreakFirstSeen(t *testing.T) {
	query := distinctSet(6)
	entries := []*catalog.Entry{
		entry("first", query.Clone()),
		entry("second", query.Clone()),
	}

	for _, workers := range []int{0, 1, 4} {
		s := &Scanner{Workers: workers}
		summary, err := s.Scan(context.Background(), query, entries)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if summary.Best == nil || summary.Best.BookID != "first" {
			t.Fatalf("workers=%d: expected first-inserted entry to win ties, got %+v",
				workers, summary.Best)
		}
	}
}

func TestScanEmptyQuery(t *testing.T) {
	entries := []*catalog.Entry{
		entry("a", distinctSet(4)),
		entry("b", distinctSet(6)),
	}

	s := &Scanner{}
	summary, err := s.Scan(context.Background(), nil, entries)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if summary.BestScore != 0 {
		t.Fatalf("expected all-zero scores for empty query, got %v", summary.BestScore)
	}
	for _, cs := range summary.Evaluated {
		if cs.Score != 0 {
			t.Fatalf("expected zero score for %s, got %v", cs.BookID, cs.Score)
		}
		if cs.Reason == "" {
			t.Fatalf("expected recorded reason for %s", cs.BookID)
		}
	}
}

func TestScanRecordsReasonForDegenerateCandidates(t *testing.T) {
	entries := []*catalog.Entry{
		entry("empty", nil),
		entry("single", distinctSet(1)),
		entry("full", distinctSet(5)),
	}

	s := &Scanner{}
	summary, err := s.Scan(context.Background(), distinctSet(5), entries)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	for _, cs := range summary.Evaluated[:2] {
		if cs.Reason == "" {
			t.Fatalf("expected reason for degenerate candidate %s", cs.BookID)
		}
		if cs.Score != 0 {
			t.Fatalf("expected zero score for %s, got %v", cs.BookID, cs.Score)
		}
	}
	if summary.Best == nil || summary.Best.BookID != "full" {
		t.Fatalf("expected usable entry to win, got %+v", summary.Best)
	}
}

func TestScanParallelMatchesSequential(t *testing.T) {
	query := distinctSet(10)
	entries := []*catalog.Entry{
		entry("a", distinctSet(3)),
		entry("b", distinctSet(7)),
		entry("c", query.Clone()),
		entry("d", distinctSet(10)),
		entry("e", nil),
	}

	sequential, err := (&Scanner{}).Scan(context.Background(), query, entries)
	if err != nil {
		t.Fatalf("sequential scan: %v", err)
	}
	parallel, err := (&Scanner{Workers: 8}).Scan(context.Background(), query, entries)
	if err != nil {
		t.Fatalf("parallel scan: %v", err)
	}

	if sequential.Best.BookID != parallel.Best.BookID {
		t.Fatalf("parallel best %s differs from sequential %s",
			parallel.Best.BookID, sequential.Best.BookID)
	}
	if sequential.BestScore != parallel.BestScore {
		t.Fatalf("parallel score %v differs from sequential %v",
			parallel.BestScore, sequential.BestScore)
	}
	for i := range sequential.Evaluated {
		if sequential.Evaluated[i] != parallel.Evaluated[i] {
			t.Fatalf("breakdown entry %d differs: %+v vs %+v",
				i, sequential.Evaluated[i], parallel.Evaluated[i])
		}
	}
}

func TestScanPropagatesMatcherError(t *testing.T) {
	s := &Scanner{Matcher: &match.Matcher{Ratio: 2}}
	_, err := s.Scan(context.Background(), distinctSet(3), []*catalog.Entry{entry("a", distinctSet(3))})
	if err != match.ErrInvalidRatio {
		t.Fatalf("expected ErrInvalidRatio, got %v", err)
	}
}

func TestScanCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Scanner{}
	if _, err := s.Scan(ctx, distinctSet(3), []*catalog.Entry{entry("a", distinctSet(3))}); err == nil {
		t.Fatal("expected error from canceled context")
	}
}
