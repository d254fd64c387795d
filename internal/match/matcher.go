// Package match implements greedy nearest-neighbor correspondence between
// two descriptor sets and the similarity score derived from it.
package match

import (
	"errors"

	"github.com/example/bookcover/internal/descriptor"
)

// DefaultRatio is Lowe's ratio-test threshold used when a Matcher is
// configured with a zero Ratio.
const DefaultRatio = 0.75

// ErrInvalidRatio is returned when the configured ratio lies outside (0,1).
// The ratio is never clamped.
var ErrInvalidRatio = errors.New("match: ratio must be in (0,1)")

// Correspondence is an accepted pairing between one query descriptor and its
// nearest candidate descriptor.
type Correspondence struct {
	// QueryIndex is the position of the descriptor in the query set.
	QueryIndex int

	// CandidateIndex is the position of the accepted nearest neighbor in
	// the candidate set.
	CandidateIndex int

	// Distance is the distance of the accepted nearest neighbor.
	Distance int
}

// Matcher finds correspondences between two descriptor sets using the ratio
// test: a query descriptor's nearest candidate is accepted only if it is
// sufficiently closer than the second-nearest.
type Matcher struct {
	// Ratio is the ratio-test threshold. A correspondence is accepted when
	// d1 < Ratio*d2. If this is 0, DefaultRatio is used. Any other value
	// outside (0,1) is rejected by Match.
	Ratio float64

	// Distance is the descriptor metric. If nil, descriptor.Hamming is
	// used.
	Distance descriptor.DistanceFunc
}

// Match returns the accepted correspondences between query and candidate, in
// query order. Each query descriptor is decided independently: its nearest
// candidate is taken irrevocably when the ratio test passes, so two query
// descriptors may map to the same candidate descriptor. Distance ties go to
// the lower candidate index.
//
// An empty query yields an empty result. A candidate with fewer than two
// descriptors yields no correspondences, since the ratio test needs a
// second-nearest neighbor.
func (m *Matcher) Match(query, candidate descriptor.Set) ([]Correspondence, error) {
	ratio := m.Ratio
	if ratio == 0 {
		ratio = DefaultRatio
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, ErrInvalidRatio
	}
	dist := m.Distance
	if dist == nil {
		dist = descriptor.Hamming
	}

	matches := make([]Correspondence, 0, len(query))
	if len(candidate) < 2 {
		return matches, nil
	}

	for qi, q := range query {
		best, second := -1, -1
		bestIndex := 0
		for ci, c := range candidate {
			d := dist(q, c)
			switch {
			case best < 0 || d < best:
				second = best
				best = d
				bestIndex = ci
			case second < 0 || d < second:
				second = d
			}
		}
		// Strict inequality: an exact tie between the two nearest
		// neighbors is ambiguous and rejected.
		if float64(best) < ratio*float64(second) {
			matches = append(matches, Correspondence{
				QueryIndex:     qi,
				CandidateIndex: bestIndex,
				Distance:       best,
			})
		}
	}
	return matches, nil
}
