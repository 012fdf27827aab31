package stats

import (
	"strings"
	"time"

	"github.com/verte-zerg/cfplot/internal/model"
)

// Default rating bounds used when no rating filter is given.
const (
	DefaultRatingLow  = 0
	DefaultRatingHigh = 9999
)

// Criteria configures which rating changes and submissions are kept.
type Criteria struct {
	// Types lists the accepted participant types in display order.
	Types      []model.ParticipantType
	RatingLow  int
	RatingHigh int
	// Tags is an include-list; empty accepts every problem.
	Tags    []string
	BanTags []string
	// DateLow and DateHigh bound the record timestamp, both inclusive.
	DateLow        time.Time
	DateHigh       time.Time
	IndexMarkers   []string
	ContestMarkers []string
	IncludeTeam    bool
	SolvedOnly     bool
	Unique         bool
}

// DefaultCriteria accepts every plotted participant type, any rating and any
// date up to now. Only the first accepted solve of each problem is kept.
func DefaultCriteria(now time.Time) Criteria {
	types := make([]model.ParticipantType, len(model.ParticipantTypes))
	copy(types, model.ParticipantTypes)
	return Criteria{
		Types:      types,
		RatingLow:  DefaultRatingLow,
		RatingHigh: DefaultRatingHigh,
		DateLow:    time.Unix(0, 0),
		DateHigh:   now,
		SolvedOnly: true,
		Unique:     true,
	}
}

// Validate checks that the configured bounds are ordered.
func (c Criteria) Validate() error {
	if c.DateLow.After(c.DateHigh) {
		return configErrorf("filter", "date lower bound %s is after upper bound %s",
			c.DateLow.Format("02-01-2006"), c.DateHigh.Format("02-01-2006"))
	}
	if c.RatingLow > c.RatingHigh {
		return configErrorf("filter", "rating lower bound %d exceeds upper bound %d", c.RatingLow, c.RatingHigh)
	}
	return nil
}

func (c Criteria) inDateRange(t time.Time) bool {
	return !t.Before(c.DateLow) && !t.After(c.DateHigh)
}

func (c Criteria) acceptsType(t model.ParticipantType) bool {
	for _, accepted := range c.Types {
		if accepted == t {
			return true
		}
	}
	return false
}

// FilterRatingChanges keeps the changes whose update time lies in the date window.
func FilterRatingChanges(changes []model.RatingChange, c Criteria) ([]model.RatingChange, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := make([]model.RatingChange, 0, len(changes))
	for _, change := range changes {
		if c.inDateRange(change.UpdateTime) {
			out = append(out, change)
		}
	}
	return out, nil
}

// FilterSubmissions keeps the submissions matching every configured criterion.
// The input is not modified and relative order is preserved.
func FilterSubmissions(subs []model.Submission, c Criteria) ([]model.Submission, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	out := make([]model.Submission, 0, len(subs))
	for _, sub := range subs {
		if !c.matches(sub) {
			continue
		}
		if c.Unique {
			key := sub.Problem.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, sub)
	}
	return out, nil
}

func (c Criteria) matches(sub model.Submission) bool {
	if c.SolvedOnly && sub.Verdict != model.VerdictOK {
		return false
	}
	if !c.IncludeTeam && sub.TeamSize > 1 {
		return false
	}
	if !c.inDateRange(sub.CreationTime) {
		return false
	}
	if !c.acceptsType(sub.ParticipantType) {
		return false
	}
	rating := sub.Problem.Rating
	if rating == nil || *rating < c.RatingLow || *rating > c.RatingHigh {
		return false
	}
	if len(c.Tags) > 0 && !intersects(sub.Problem.Tags, c.Tags) {
		return false
	}
	if len(c.BanTags) > 0 && intersects(sub.Problem.Tags, c.BanTags) {
		return false
	}
	if len(c.IndexMarkers) > 0 && !matchesIndex(sub.Problem.Index, c.IndexMarkers) {
		return false
	}
	if len(c.ContestMarkers) > 0 && !matchesContest(sub.Problem.ContestName, c.ContestMarkers) {
		return false
	}
	return true
}

func intersects(tags, wanted []string) bool {
	for _, tag := range tags {
		for _, w := range wanted {
			if strings.EqualFold(tag, w) {
				return true
			}
		}
	}
	return false
}

func matchesIndex(index string, markers []string) bool {
	index = strings.ToUpper(index)
	for _, m := range markers {
		if strings.HasPrefix(index, strings.ToUpper(m)) {
			return true
		}
	}
	return false
}

func matchesContest(name string, markers []string) bool {
	name = strings.ToLower(name)
	for _, m := range markers {
		if strings.Contains(name, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
