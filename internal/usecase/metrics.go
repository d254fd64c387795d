package usecase

import "context"

// MetricsSummary represents aggregated recognition insights.
type MetricsSummary struct {
	TotalRequests   int64   `json:"total_requests"`
	MatchedRequests int64   `json:"matched_requests"`
	MatchRate       float64 `json:"match_rate"`
	AverageScore    float64 `json:"average_score"`
	RegisteredBooks int     `json:"registered_books"`
}

// GetMetricsSummary aggregates recognition metrics from persisted logs.
func (uc *RecognitionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:   aggregation.TotalCount,
		MatchedRequests: aggregation.MatchCount,
		AverageScore:    aggregation.AverageScore,
		RegisteredBooks: uc.catalog.Len(),
	}

	if aggregation.TotalCount > 0 {
		summary.MatchRate = float64(aggregation.MatchCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
