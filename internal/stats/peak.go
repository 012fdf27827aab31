package stats

import "github.com/verte-zerg/cfplot/internal/model"

// UnratedBaseline is the rating assumed before a user's first rated contest.
const UnratedBaseline = 1500

// PeakPrefix reduces a time-ordered rating history to its personal-best
// progression. A change is kept when it did not lose rating relative to its
// old rating (0 counts as UnratedBaseline) and reaches the running maximum.
func PeakPrefix(changes []model.RatingChange) []model.RatingChange {
	maxRating := 0
	out := make([]model.RatingChange, 0, len(changes))
	for _, change := range changes {
		oldRating := change.OldRating
		if oldRating == 0 {
			oldRating = UnratedBaseline
		}
		if change.NewRating-oldRating >= 0 && change.NewRating >= maxRating {
			maxRating = change.NewRating
			out = append(out, change)
		}
	}
	return out
}
