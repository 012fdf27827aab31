package bot

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/query"
	"github.com/verte-zerg/cfplot/internal/render"
	"github.com/verte-zerg/cfplot/internal/stats"
)

const (
	defaultBinSize   = 10
	defaultPointSize = 3
	maxPointSize     = 100

	practiceColor = "1F77B4"
	regularColor  = "FF7F0E"
	virtualColor  = "2CA02C"
	averageColor  = "D62728"
	ratingColor   = "000000"
)

func (b *Bot) scatter(ctx context.Context, req Request) (Reply, error) {
	flags, args := query.ExtractFlags(req.Args, "+nolegend")
	legend := !flags[0]
	crit, args, err := query.Parse(args, b.now())
	if err != nil {
		return Reply{}, err
	}
	binSize, pointSize := defaultBinSize, defaultPointSize
	var handleArgs []string
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "b="):
			if binSize, err = strconv.Atoi(arg[2:]); err != nil {
				return Reply{}, userErrorf("Invalid parameters: %s", arg)
			}
		case strings.HasPrefix(arg, "s="):
			if pointSize, err = strconv.Atoi(arg[2:]); err != nil {
				return Reply{}, userErrorf("Invalid parameters: %s", arg)
			}
		default:
			if len(handleArgs) > 0 {
				return Reply{}, userErrorf("Only one handle allowed.")
			}
			handleArgs = append(handleArgs, arg)
		}
	}
	if binSize < 1 || pointSize < 1 || pointSize > maxPointSize {
		return Reply{}, userErrorf("Invalid parameters")
	}
	handles, err := b.resolveHandles(ctx, req.Member, handleArgs, 1, 1)
	if err != nil {
		return Reply{}, err
	}
	handle := handles[0]

	changes, err := b.source.UserRating(ctx, handle)
	if err != nil {
		return Reply{}, err
	}
	if changes, err = stats.FilterRatingChanges(changes, crit); err != nil {
		return Reply{}, err
	}
	subs, err := b.source.UserStatus(ctx, handle)
	if err != nil {
		return Reply{}, err
	}
	if subs, err = stats.FilterSubmissions(subs, crit); err != nil {
		return Reply{}, err
	}
	if len(subs) == 0 {
		return Reply{}, userErrorf("No submissions for user `%s`", handle)
	}

	byType := stats.Classify(subs)
	practice := byType[model.Practice]
	groups := []struct {
		label string
		color string
		subs  []model.Submission
	}{
		{"Practice", practiceColor, practice},
		{"Regular", regularColor, stats.Regular(byType)},
		{"Virtual", virtualColor, byType[model.Virtual]},
	}

	fig := render.Figure{
		Title:    "Rating vs solved problem rating for " + handle,
		YLabel:   "Rating",
		TimeAxis: true,
		Legend:   legend,
	}
	for _, g := range groups {
		if len(g.subs) == 0 {
			continue
		}
		fig.Lines = append(fig.Lines, solvedPoints(g.label, g.color, g.subs, pointSize))
	}
	if len(practice) > binSize {
		points := make([]stats.TimePoint, 0, len(practice))
		for _, s := range practice {
			points = append(points, stats.TimePoint{Time: s.CreationTime, Value: float64(*s.Problem.Rating)})
		}
		mean, err := stats.Smooth(points, binSize)
		if err != nil {
			return Reply{}, err
		}
		avg := render.Line{Color: averageColor}
		for _, p := range mean {
			avg.X = append(avg.X, unix(p.Time))
			avg.Y = append(avg.Y, p.Value)
		}
		fig.Lines = append(fig.Lines, avg)
	}
	if len(changes) > 0 {
		fig.Lines = append(fig.Lines, ratingLine("", changes, ratingColor, render.MarkLine))
	}
	fig.Bands = ratingBands()

	// Zoom to the filtered problem ratings, but never past the data.
	if _, yr, ok := fig.DataRange(); ok {
		yr.Min = math.Max(yr.Min, float64(crit.RatingLow-100))
		yr.Max = math.Min(yr.Max, float64(crit.RatingHigh+100))
		fig.YRange = &yr
	}
	return b.imageReply(fig.Title, "", fig)
}

func solvedPoints(label, color string, subs []model.Submission, size int) render.Line {
	line := render.Line{Label: label, Color: color, Mark: render.MarkDots, DotSize: float64(size)}
	for _, s := range subs {
		line.X = append(line.X, unix(s.CreationTime))
		line.Y = append(line.Y, float64(*s.Problem.Rating))
	}
	return line
}
