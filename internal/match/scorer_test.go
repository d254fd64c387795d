package match

import "testing"

func TestScoreZeroOnEmptySets(t *testing.T) {
	if got := Score(nil, 0, 10); got != 0 {
		t.Fatalf("expected 0 for empty query, got %v", got)
	}
	if got := Score(nil, 10, 0); got != 0 {
		t.Fatalf("expected 0 for empty candidate, got %v", got)
	}
	if got := Score(nil, 0, 0); got != 0 {
		t.Fatalf("expected 0 for two empty sets, got %v", got)
	}
}

func TestScoreNormalizedByMinimum(t *testing.T) {
	corrs := make([]Correspondence, 40)
	if got := Score(corrs, 50, 50); got != 0.8 {
		t.Fatalf("expected 0.8, got %v", got)
	}
	// The smaller side bounds the score regardless of which side it is.
	if got := Score(corrs, 80, 50); got != 0.8 {
		t.Fatalf("expected 0.8 with larger query, got %v", got)
	}
	if got := Score(corrs, 50, 80); got != 0.8 {
		t.Fatalf("expected 0.8 with larger candidate, got %v", got)
	}
}

func TestScoreClampedToOne(t *testing.T) {
	// More correspondences than the smaller set can happen when several
	// query descriptors map to the same candidate descriptor.
	corrs := make([]Correspondence, 7)
	if got := Score(corrs, 20, 5); got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
}

func TestScoreBounds(t *testing.T) {
	for n := 0; n <= 10; n++ {
		got := Score(make([]Correspondence, n), 10, 7)
		if got < 0 || got > 1 {
			t.Fatalf("score %v out of [0,1] for %d correspondences", got, n)
		}
	}
}
