package llm

import (
	"math"
	"strings"

	"github.com/xhad/rag/internal/models"
)

// Confidence derives a bounded confidence score from retrieval quality
// and answer shape. It is a heuristic, not a calibrated probability:
// declined or empty answers score 0.3, answers without any retrieved
// context score 0.2, everything else blends the mean similarity score
// with an answer-length factor and clamps to [0.1, 0.95].
func Confidence(answer string, matches []models.RetrievedMatch) float64 {
	if answer == "" || strings.Contains(strings.ToLower(answer), "don't have enough information") {
		return 0.3
	}

	if len(matches) == 0 {
		return 0.2
	}

	var sum float64
	for _, m := range matches {
		score := m.Score
		if score == 0 {
			// an unset similarity counts as neutral
			score = 0.5
		}
		sum += score
	}
	avgScore := sum / float64(len(matches))

	lengthFactor := math.Min(float64(len(answer))/100, 1.0)

	confidence := avgScore*0.7 + lengthFactor*0.3

	return math.Min(math.Max(confidence, 0.1), 0.95)
}
