package recognize

import "github.com/example/bookcover/internal/catalog"

// DefaultThreshold is the acceptance threshold used when callers pass 0 to
// Decide. Calibrated for covers yielding a few hundred descriptors.
const DefaultThreshold = 0.15

// Result is the final recognition outcome. Entry is nil on no-match; the
// best score is still reported for diagnostics.
type Result struct {
	// Matched reports whether the best candidate cleared the threshold.
	Matched bool

	// NoCandidates reports that the catalog was empty, which is distinct
	// from a best score below threshold.
	NoCandidates bool

	// Entry is the matched catalog entry, nil unless Matched.
	Entry *catalog.Entry

	// Score is the best similarity seen during the scan.
	Score float64

	// Breakdown holds the per-candidate scores from the scan.
	Breakdown []CandidateScore
}

// Decide applies the acceptance threshold to a scan summary. A threshold of
// 0 selects DefaultThreshold; values outside [0,1] are rejected before any
// result is produced.
func Decide(summary Summary, threshold float64) (Result, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return Result{}, ErrInvalidThreshold
	}

	result := Result{
		Score:     summary.BestScore,
		Breakdown: summary.Evaluated,
	}
	if summary.NoCandidates() {
		result.NoCandidates = true
		result.Score = 0
		return result, nil
	}
	if summary.Best == nil || summary.BestScore < threshold {
		return result, nil
	}
	result.Matched = true
	result.Entry = summary.Best
	return result, nil
}
