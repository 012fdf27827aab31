package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/query"
	"github.com/verte-zerg/cfplot/internal/render"
	"github.com/verte-zerg/cfplot/internal/stats"
)

const (
	defaultRatingLow  = 1100
	defaultRatingHigh = 1800
)

func (b *Bot) rating(ctx context.Context, req Request) (Reply, error) {
	flags, args := query.ExtractFlags(req.Args, "+zoom", "+peak")
	zoom, peak := flags[0], flags[1]
	crit, args, err := query.Parse(args, b.now())
	if err != nil {
		return Reply{}, err
	}
	handles, err := b.resolveHandles(ctx, req.Member, args, 1, b.maxHandles)
	if err != nil {
		return Reply{}, err
	}
	histories, err := fetchAll(ctx, handles, b.source.UserRating)
	if err != nil {
		return Reply{}, err
	}

	anyRated := false
	for i, changes := range histories {
		filtered, err := stats.FilterRatingChanges(changes, crit)
		if err != nil {
			return Reply{}, err
		}
		if peak {
			filtered = stats.PeakPrefix(filtered)
		}
		histories[i] = filtered
		anyRated = anyRated || len(filtered) > 0
	}
	if !anyRated {
		if len(handles) == 1 {
			return Reply{}, userErrorf("User %s is not rated", quoteHandles(handles))
		}
		return Reply{}, userErrorf("None of the given users %s are rated", quoteHandles(handles))
	}

	fig := render.Figure{
		Title:    "Rating graph on Codeforces",
		YLabel:   "Rating",
		TimeAxis: true,
		Bands:    ratingBands(),
		Legend:   true,
	}
	for i, changes := range histories {
		current := "Unrated"
		if len(changes) > 0 {
			current = strconv.Itoa(changes[len(changes)-1].NewRating)
		}
		label := fmt.Sprintf("%s (%s)", handles[i], current)
		fig.Lines = append(fig.Lines, ratingLine(label, changes, colorAt(i), render.MarkLineDots))
	}
	if !zoom {
		fig.YRange = defaultRatingRange(histories)
	}
	return b.imageReply(fig.Title, "", fig)
}

// defaultRatingRange widens [1100, 1800] to the data, then pads it.
func defaultRatingRange(histories [][]model.RatingChange) *render.Range {
	lo, hi := defaultRatingLow, defaultRatingHigh
	for _, changes := range histories {
		for _, c := range changes {
			lo = min(lo, c.NewRating)
			hi = max(hi, c.NewRating)
		}
	}
	return &render.Range{Min: float64(lo - 100), Max: float64(hi + 200)}
}
