package bot

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/verte-zerg/cfplot/internal/query"
	"github.com/verte-zerg/cfplot/internal/ranks"
	"github.com/verte-zerg/cfplot/internal/render"
	"github.com/verte-zerg/cfplot/internal/stats"
)

const (
	distribHigh     = 3900
	distribMaxBin   = 100
	curveColor      = "333333"
	centileYMin     = -1.5
	centileYMax     = 101.5
	centileMinXPad  = 20
	centileMinYPad  = 0.5
	centileFullYPad = 8
)

func (b *Bot) distrib(ctx context.Context, req Request) (Reply, error) {
	logScale, binSize := true, distribMaxBin
	for _, arg := range req.Args {
		switch arg {
		case "log":
			logScale = true
		case "normal":
			logScale = false
		default:
			n, err := strconv.Atoi(arg)
			if err != nil {
				return Reply{}, userErrorf("Mode should be either `log` or `normal`")
			}
			binSize = n
		}
	}
	if binSize < 1 || distribMaxBin%binSize != 0 {
		return Reply{}, userErrorf("Bin size must divide %d", distribMaxBin)
	}
	if b.population == nil {
		return Reply{}, userErrorf("Rating population is not configured.")
	}
	pop, err := b.population.Population(ctx)
	if err != nil {
		return Reply{}, err
	}
	ratings := slices.DeleteFunc(pop.Ratings(), func(r int) bool { return r < 0 })
	buckets, err := stats.Bucketize(ratings, 0, distribHigh, binSize)
	if err != nil {
		return Reply{}, err
	}
	if len(buckets) == 0 {
		return Reply{}, &stats.EmptyResultError{What: "rated users"}
	}

	bars := &render.Bars{}
	stack := render.BarStack{}
	for _, bk := range buckets {
		bars.Labels = append(bars.Labels, fmt.Sprintf("%d (%d)", bk.Low, bk.CumulativePercent))
		bars.BarColors = append(bars.BarColors, ranks.For(bk.Low).Color)
		v := float64(bk.Count)
		if logScale {
			v = math.Log10(1 + v)
		}
		stack.Values = append(stack.Values, v)
	}
	bars.Stacks = []render.BarStack{stack}

	yLabel := "Number of users"
	if logScale {
		yLabel = "Number of users (log10)"
	}
	fig := render.Figure{
		Title:  "Rating distribution of rated users",
		XLabel: "Rating",
		YLabel: yLabel,
		Bars:   bars,
	}
	return b.imageReply(fig.Title, fmt.Sprintf("%d rated users", len(ratings)), fig)
}

type centileMark struct {
	handle     string
	rating     int
	percentile float64
}

func (b *Bot) centile(ctx context.Context, req Request) (Reply, error) {
	flags, args := query.ExtractFlags(req.Args, "+zoom", "+nomarker", "+exact")
	zoom, noMarker, exact := flags[0], flags[1], flags[2]
	if b.population == nil {
		return Reply{}, userErrorf("Rating population is not configured.")
	}
	pop, err := b.population.Population(ctx)
	if err != nil {
		return Reply{}, err
	}

	var marks []centileMark
	if !noMarker {
		handles, err := b.resolveHandles(ctx, req.Member, args, 0, maxCentileHandles)
		if err != nil {
			return Reply{}, err
		}
		slices.Sort(handles)
		users, err := b.source.UserInfo(ctx, slices.Compact(handles))
		if err != nil {
			return Reply{}, err
		}
		for _, u := range users {
			if u.Rating == nil {
				return Reply{}, userErrorf("User `%s` is not rated", u.Handle)
			}
			marks = append(marks, centileMark{
				handle:     u.Handle,
				rating:     *u.Rating,
				percentile: pop.PercentileOf(*u.Rating),
			})
		}
	}

	curve := render.Line{Color: curveColor}
	for _, p := range pop.Curve() {
		curve.X = append(curve.X, float64(p.Rating))
		curve.Y = append(curve.Y, p.Percentile)
	}
	xr, yr := centileRanges(pop, marks, zoom)
	fig := render.Figure{
		Title:  "Rating/percentile relationship",
		XLabel: "Rating",
		YLabel: "Percentile",
		XRange: &xr,
		YRange: &yr,
		Lines:  []render.Line{curve},
		Bands:  rankColumns(),
	}
	for _, m := range marks {
		label := m.handle
		if exact {
			label = fmt.Sprintf("%s (%s)", m.handle, strconv.FormatFloat(math.Round(m.percentile*100)/100, 'f', -1, 64))
		}
		fig.Markers = append(fig.Markers, render.Marker{X: float64(m.rating), Y: m.percentile, Label: label})
	}
	return b.imageReply(fig.Title, "", fig)
}

// centileRanges frames the whole curve, or the marked users when zooming.
func centileRanges(pop *stats.Population, marks []centileMark, zoom bool) (render.Range, render.Range) {
	xr := render.Range{Min: float64(pop.Min()), Max: float64(pop.Max())}
	yr := render.Range{Min: centileYMin, Max: centileYMax}
	if len(marks) == 0 {
		return xr, yr
	}
	ymin, ymax := math.Inf(1), math.Inf(-1)
	xmin, xmax := math.Inf(1), math.Inf(-1)
	for _, m := range marks {
		ymin, ymax = math.Min(ymin, m.percentile), math.Max(ymax, m.percentile)
		xmin, xmax = math.Min(xmin, float64(m.rating)), math.Max(xmax, float64(m.rating))
	}
	if !zoom {
		yr.Min = math.Min(centileYMin, ymin-centileFullYPad)
		yr.Max = math.Max(centileYMax, ymax+centileFullYPad)
		return xr, yr
	}
	ypad := math.Max(centileMinYPad, (ymax-ymin)*0.1)
	xpad := math.Max(centileMinXPad, (xmax-xmin)*0.1)
	return render.Range{Min: xmin - xpad, Max: xmax + xpad}, render.Range{Min: ymin - ypad, Max: ymax + ypad}
}
