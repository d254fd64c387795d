package match

// Score reduces a correspondence sequence to a similarity value in [0,1].
// The count is normalized by the smaller of the two set sizes, making the
// score a correspondence density bounded by the more restrictive side rather
// than a function of set-size asymmetry. If either set is empty the score is
// 0.
func Score(correspondences []Correspondence, querySize, candidateSize int) float64 {
	minSize := querySize
	if candidateSize < minSize {
		minSize = candidateSize
	}
	if minSize <= 0 {
		return 0
	}
	score := float64(len(correspondences)) / float64(minSize)
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
