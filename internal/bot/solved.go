package bot

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/query"
	"github.com/verte-zerg/cfplot/internal/render"
	"github.com/verte-zerg/cfplot/internal/stats"
)

const (
	day          = 24 * time.Hour
	maxTimeBins  = 40
	wideSpanBase = 3000
	dateLayout   = "2006-01-02"
)

// solvedSubmissions fetches and filters submissions for every handle.
func (b *Bot) solvedSubmissions(ctx context.Context, member string, crit stats.Criteria, args []string) ([]string, [][]model.Submission, error) {
	handles, err := b.resolveHandles(ctx, member, args, 1, b.maxHandles)
	if err != nil {
		return nil, nil, err
	}
	all, err := fetchAll(ctx, handles, b.source.UserStatus)
	if err != nil {
		return nil, nil, err
	}
	found := false
	for i, subs := range all {
		filtered, err := stats.FilterSubmissions(subs, crit)
		if err != nil {
			return nil, nil, err
		}
		all[i] = filtered
		found = found || len(filtered) > 0
	}
	if !found {
		return nil, nil, &stats.EmptyResultError{What: "problems"}
	}
	return handles, all, nil
}

func (b *Bot) solved(ctx context.Context, req Request) (Reply, error) {
	crit, args, err := query.Parse(req.Args, b.now())
	if err != nil {
		return Reply{}, err
	}
	handles, solved, err := b.solvedSubmissions(ctx, req.Member, crit, args)
	if err != nil {
		return Reply{}, err
	}

	fig := render.Figure{
		Title:  "Histogram of problems solved on Codeforces",
		XLabel: "Problem rating",
		YLabel: "Number solved",
		Legend: true,
	}
	if len(handles) == 1 {
		byType := stats.Classify(solved[0])
		series := make([][]int, len(crit.Types))
		for i, t := range crit.Types {
			series[i] = problemRatings(byType[t])
		}
		const step = 100
		low, high := centeredRange(crit.RatingLow, crit.RatingHigh, step)
		buckets, err := alignedBuckets(series, low, high, step)
		if err != nil {
			return Reply{}, err
		}
		bars := &render.Bars{Labels: bucketCenters(buckets[0], step)}
		for i, t := range crit.Types {
			bars.Stacks = append(bars.Stacks, render.BarStack{
				Label:  fmt.Sprintf("%s: %d", typeLabels[t], len(series[i])),
				Color:  typeColors[t],
				Values: bucketCounts(buckets[i]),
			})
		}
		fig.Bars = bars
		return b.imageReply(fig.Title, fmt.Sprintf("%s: %d", handles[0], len(solved[0])), fig)
	}

	series := make([][]int, len(handles))
	for i, subs := range solved {
		series[i] = problemRatings(subs)
	}
	step := 100
	if crit.RatingHigh-crit.RatingLow > wideSpanBase/len(handles) {
		step = 200
	}
	low, high := centeredRange(crit.RatingLow, crit.RatingHigh, step)
	buckets, err := alignedBuckets(series, low, high, step)
	if err != nil {
		return Reply{}, err
	}
	for i, h := range handles {
		line := render.Line{
			Label: fmt.Sprintf("%s: %d", h, len(series[i])),
			Color: colorAt(i),
			Mark:  render.MarkLineDots,
		}
		for _, bk := range buckets[i] {
			line.X = append(line.X, float64(bk.Low+step/2))
			line.Y = append(line.Y, float64(bk.Count))
		}
		fig.Lines = append(fig.Lines, line)
	}
	return b.imageReply(fig.Title, "", fig)
}

func (b *Bot) hist(ctx context.Context, req Request) (Reply, error) {
	now := b.now()
	crit, args, err := query.Parse(req.Args, now)
	if err != nil {
		return Reply{}, err
	}
	phaseDays := 1
	var rest []string
	for _, arg := range args {
		v, ok := strings.CutPrefix(arg, "phase_days=")
		if !ok {
			rest = append(rest, arg)
			continue
		}
		if phaseDays, err = strconv.Atoi(v); err != nil {
			return Reply{}, userErrorf("Invalid parameters: phase_days must be an integer")
		}
	}
	if phaseDays < 1 {
		return Reply{}, userErrorf("Invalid parameters: phase_days must be >= 1")
	}
	handles, solved, err := b.solvedSubmissions(ctx, req.Member, crit, rest)
	if err != nil {
		return Reply{}, err
	}

	phase := time.Duration(phaseDays) * day
	var earliest time.Time
	for _, subs := range solved {
		if len(subs) > 0 && (earliest.IsZero() || subs[0].CreationTime.Before(earliest)) {
			earliest = subs[0].CreationTime
		}
	}
	low, high, phases := phaseWindow(earliest, now, crit.DateHigh, phase)
	bins := min(maxTimeBins, phases)
	if len(handles) > 1 {
		bins = min(maxTimeBins/len(handles), phases)
	}
	bins = max(bins, 1)

	fig := render.Figure{
		Title:  "Histogram of number of solved problems over time",
		XLabel: "Time",
		YLabel: "Number solved",
		Legend: true,
	}
	if len(handles) == 1 {
		byType := stats.Classify(solved[0])
		bars := &render.Bars{}
		for _, t := range crit.Types {
			buckets, err := stats.BucketizeTimes(creationTimes(byType[t]), low, high, bins)
			if err != nil {
				return Reply{}, err
			}
			if bars.Labels == nil {
				for _, bk := range buckets {
					bars.Labels = append(bars.Labels, bk.Start.Format(dateLayout))
				}
			}
			stack := render.BarStack{
				Label: fmt.Sprintf("%s: %d", typeLabels[t], len(byType[t])),
				Color: typeColors[t],
			}
			for _, bk := range buckets {
				stack.Values = append(stack.Values, float64(bk.Count))
			}
			bars.Stacks = append(bars.Stacks, stack)
		}
		fig.Bars = bars
		return b.imageReply(fig.Title, fmt.Sprintf("%s: %d", handles[0], len(solved[0])), fig)
	}

	fig.TimeAxis = true
	for i, subs := range solved {
		buckets, err := stats.BucketizeTimes(creationTimes(subs), low, high, bins)
		if err != nil {
			return Reply{}, err
		}
		line := render.Line{Label: fmt.Sprintf("%s: %d", handles[i], len(subs)), Color: colorAt(i), Mark: render.MarkLineDots}
		for _, bk := range buckets {
			line.X = append(line.X, unix(bk.Start))
			line.Y = append(line.Y, float64(bk.Count))
		}
		fig.Lines = append(fig.Lines, line)
	}
	return b.imageReply(fig.Title, "", fig)
}

func (b *Bot) curve(ctx context.Context, req Request) (Reply, error) {
	now := b.now()
	crit, args, err := query.Parse(req.Args, now)
	if err != nil {
		return Reply{}, err
	}
	handles, solved, err := b.solvedSubmissions(ctx, req.Member, crit, args)
	if err != nil {
		return Reply{}, err
	}
	end := now
	if crit.DateHigh.Before(end) {
		end = crit.DateHigh
	}
	fig := render.Figure{
		Title:    "Curve of number of solved problems over time",
		XLabel:   "Time",
		YLabel:   "Cumulative solve count",
		TimeAxis: true,
		Legend:   true,
	}
	for i, subs := range solved {
		line := render.Line{Label: fmt.Sprintf("%s: %d", handles[i], len(subs)), Color: colorAt(i)}
		for n, s := range subs {
			line.X = append(line.X, unix(s.CreationTime))
			line.Y = append(line.Y, float64(n+1))
		}
		line.X = append(line.X, unix(end))
		line.Y = append(line.Y, float64(len(subs)))
		fig.Lines = append(fig.Lines, line)
	}
	return b.imageReply(fig.Title, "", fig)
}

// phaseWindow returns the [low, high) window for the solved-over-time
// histogram: it ends at the earlier of tomorrow and the filter's upper date,
// and spans a whole number of phases back past the earliest solve.
func phaseWindow(earliest, now, dateHigh time.Time, phase time.Duration) (time.Time, time.Time, int) {
	high := truncateDay(now).Add(day)
	if upper := ceilDay(dateHigh); upper.Before(high) {
		high = upper
	}
	low := truncateDay(earliest)
	phases := int(math.Ceil(float64(high.Sub(low)) / float64(phase)))
	phases = max(phases, 1)
	return high.Add(-time.Duration(phases) * phase), high, phases
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ceilDay(t time.Time) time.Time {
	d := truncateDay(t)
	if d.Equal(t) {
		return d
	}
	return d.Add(day)
}

// centeredRange returns bucket bounds whose centres fall on multiples of step
// and cover [lo, hi].
func centeredRange(lo, hi, step int) (int, int) {
	low := int(math.Floor(float64(lo)/float64(step)))*step - step/2
	high := int(math.Ceil(float64(hi)/float64(step)))*step + step/2
	return low, high
}

// alignedBuckets buckets every series over the same bounds and trims the
// empty ends they share.
func alignedBuckets(series [][]int, low, high, step int) ([][]stats.Bucket, error) {
	out := make([][]stats.Bucket, len(series))
	for i, values := range series {
		buckets, err := stats.Bucketize(values, low, high, step, stats.Untrimmed())
		if err != nil {
			return nil, err
		}
		out[i] = buckets
	}
	if len(out) == 0 {
		return out, nil
	}
	n := len(out[0])
	occupied := func(j int) bool {
		for _, buckets := range out {
			if buckets[j].Count > 0 {
				return true
			}
		}
		return false
	}
	l, r := 0, n-1
	for l <= r && !occupied(l) {
		l++
	}
	for r >= l && !occupied(r) {
		r--
	}
	for i := range out {
		out[i] = out[i][l : r+1]
	}
	return out, nil
}

func bucketCenters(buckets []stats.Bucket, step int) []string {
	labels := make([]string, len(buckets))
	for i, bk := range buckets {
		labels[i] = strconv.Itoa(bk.Low + step/2)
	}
	return labels
}

func bucketCounts(buckets []stats.Bucket) []float64 {
	counts := make([]float64, len(buckets))
	for i, bk := range buckets {
		counts[i] = float64(bk.Count)
	}
	return counts
}

func problemRatings(subs []model.Submission) []int {
	out := make([]int, 0, len(subs))
	for _, s := range subs {
		if s.Problem.Rating != nil {
			out = append(out, *s.Problem.Rating)
		}
	}
	return out
}

func creationTimes(subs []model.Submission) []time.Time {
	out := make([]time.Time, len(subs))
	for i, s := range subs {
		out[i] = s.CreationTime
	}
	return out
}
