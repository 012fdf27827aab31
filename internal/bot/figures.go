package bot

import (
	"math"
	"time"

	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/ranks"
	"github.com/verte-zerg/cfplot/internal/render"
)

// palette cycles line colours for multi-handle plots.
var palette = []string{
	"1F77B4", "FF7F0E", "2CA02C", "D62728", "9467BD",
	"8C564B", "E377C2", "7F7F7F", "BCBD22", "17BECF",
}

func colorAt(i int) string {
	return palette[i%len(palette)]
}

var typeColors = map[model.ParticipantType]string{
	model.Contestant:       "1F77B4",
	model.OutOfCompetition: "FF7F0E",
	model.Virtual:          "2CA02C",
	model.Practice:         "D62728",
}

var typeLabels = map[model.ParticipantType]string{
	model.Contestant:       "Contest",
	model.OutOfCompetition: "Unofficial",
	model.Virtual:          "Virtual",
	model.Practice:         "Practice",
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// ratingBands shades the rated tiers horizontally.
func ratingBands() []render.Band {
	bands := make([]render.Band, 0, len(ranks.Rated))
	for _, r := range ranks.Rated {
		bands = append(bands, render.Band{
			Axis:  render.AxisY,
			Low:   clampRating(r.Low),
			High:  clampRating(r.High),
			Color: r.Band,
		})
	}
	return bands
}

// rankColumns shades the rated tiers vertically.
func rankColumns() []render.Band {
	bands := make([]render.Band, 0, len(ranks.Rated))
	for _, r := range ranks.Rated {
		bands = append(bands, render.Band{
			Axis:  render.AxisX,
			Low:   clampRating(r.Low),
			High:  clampRating(r.High),
			Color: r.Band,
		})
	}
	return bands
}

func clampRating(v int) float64 {
	return math.Max(-1e4, math.Min(1e4, float64(v)))
}

func ratingLine(label string, changes []model.RatingChange, color string, mark render.Mark) render.Line {
	line := render.Line{Label: label, Color: color, Mark: mark, DotSize: 3}
	for _, c := range changes {
		line.X = append(line.X, unix(c.UpdateTime))
		line.Y = append(line.Y, float64(c.NewRating))
	}
	return line
}
