// Package recognize scans the catalog for the best-matching entry and turns
// the best score into a match / no-match decision.
package recognize

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/example/bookcover/internal/catalog"
	"github.com/example/bookcover/internal/descriptor"
	"github.com/example/bookcover/internal/match"
)

// ErrInvalidThreshold is returned when the acceptance threshold lies outside
// [0,1].
var ErrInvalidThreshold = errors.New("recognize: threshold must be in [0,1]")

// CandidateScore records the evaluation of one catalog entry during a scan.
type CandidateScore struct {
	BookID string  `json:"book_id"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`

	// Correspondences is the number of accepted descriptor pairings.
	Correspondences int `json:"correspondences"`

	// Reason is set when the entry could not produce any correspondence,
	// e.g. because its descriptor set holds fewer than two descriptors.
	Reason string `json:"reason,omitempty"`
}

// Summary is the outcome of scanning the full catalog. Best is nil when the
// catalog was empty ("no candidates"), which is distinct from a best score
// below threshold.
type Summary struct {
	Best      *catalog.Entry
	BestScore float64
	Evaluated []CandidateScore
}

// NoCandidates reports whether there was nothing to scan.
func (s Summary) NoCandidates() bool { return s.Best == nil && len(s.Evaluated) == 0 }

// Scanner evaluates a query descriptor set against every catalog entry and
// tracks the single best-scoring one. The scan is exhaustive; similarity
// admits no partial bound that would allow early termination.
type Scanner struct {
	// Matcher performs the per-entry correspondence search.
	Matcher *match.Matcher

	// Workers bounds the number of entries evaluated concurrently. Values
	// below 2 select the sequential scan. Parallelism never changes the
	// result: scores land in a per-entry slice and the running-max
	// reduction walks it in catalog order.
	Workers int
}

// Scan computes a score for every entry and returns the best one. Ties are
// broken by catalog order: only a strictly greater score displaces the
// running best, so the first entry reaching the maximum wins. An empty entry
// list is not an error.
func (s *Scanner) Scan(ctx context.Context, query descriptor.Set, entries []*catalog.Entry) (Summary, error) {
	matcher := s.Matcher
	if matcher == nil {
		matcher = &match.Matcher{}
	}

	evaluated := make([]CandidateScore, len(entries))
	evaluate := func(i int) error {
		entry := entries[i]
		correspondences, err := matcher.Match(query, entry.Descriptors)
		if err != nil {
			return err
		}
		cs := CandidateScore{
			BookID:          entry.BookID,
			Name:            entry.Name,
			Score:           match.Score(correspondences, len(query), len(entry.Descriptors)),
			Correspondences: len(correspondences),
		}
		if len(correspondences) == 0 {
			switch {
			case len(query) == 0:
				cs.Reason = "query has no descriptors"
			case len(entry.Descriptors) < 2:
				cs.Reason = "candidate has fewer than two descriptors"
			}
		}
		evaluated[i] = cs
		return nil
	}

	if s.Workers > 1 && len(entries) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.Workers)
		for i := range entries {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return evaluate(i)
			})
		}
		if err := g.Wait(); err != nil {
			return Summary{}, err
		}
	} else {
		for i := range entries {
			if err := ctx.Err(); err != nil {
				return Summary{}, err
			}
			if err := evaluate(i); err != nil {
				return Summary{}, err
			}
		}
	}

	summary := Summary{BestScore: -1, Evaluated: evaluated}
	for i, cs := range evaluated {
		if cs.Score > summary.BestScore {
			summary.BestScore = cs.Score
			summary.Best = entries[i]
		}
	}
	if summary.Best == nil {
		summary.BestScore = 0
	}
	return summary, nil
}
