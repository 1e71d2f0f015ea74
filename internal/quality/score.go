// Package quality computes data-quality scores for normalized records.
package quality

import "github.com/sells-group/listings-cli/internal/model"

// Field weights. Contact details weigh more than vanity metrics because a
// record you can't reach a business through is worth little.
const (
	weightName        = 0.25
	weightAddress     = 0.15
	weightPhone       = 0.20
	weightWebsite     = 0.15
	weightEmail       = 0.10
	weightCoordinates = 0.05
	weightRating      = 0.05
	weightReviewCount = 0.05
)

// Score returns a completeness score in [0,1]. Deterministic and pure:
// the same record always scores the same. A record with every signal
// present scores 1.0; a bare name scores 0.25.
func Score(rec *model.Record) float64 {
	var score, total float64

	add := func(present bool, weight float64) {
		if present {
			score += weight
		}
		total += weight
	}

	add(rec.Name != "", weightName)
	add(rec.Address != "", weightAddress)
	add(rec.Phone != "", weightPhone)
	add(rec.Website != "", weightWebsite)
	add(rec.Email != "", weightEmail)
	add(rec.HasCoordinates(), weightCoordinates)
	add(rec.Rating != nil, weightRating)
	add(rec.ReviewCount != nil, weightReviewCount)

	if total == 0 {
		return 0
	}
	return score / total
}
