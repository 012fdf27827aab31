// Package render turns processed series into chart images.
package render

import "math"

// Axis selects which axis a Band spans.
type Axis int

// Band axes.
const (
	AxisX Axis = iota
	AxisY
)

// Mark selects how a line's points are drawn.
type Mark int

// Point marks.
const (
	MarkLine Mark = iota
	MarkDots
	MarkLineDots
)

// Range is a closed axis interval.
type Range struct {
	Min float64
	Max float64
}

// Line is an ordered (x, y) series.
type Line struct {
	Label string
	X     []float64
	Y     []float64
	Color string
	Mark  Mark
	// DotSize is the marker radius in pixels for MarkDots and MarkLineDots.
	DotSize float64
}

// Band shades [Low, High) along one axis.
type Band struct {
	Axis  Axis
	Low   float64
	High  float64
	Color string
}

// Marker is a labelled point drawn on top of every series.
type Marker struct {
	X     float64
	Y     float64
	Label string
}

// BarStack is one layer of a bar chart.
type BarStack struct {
	Label  string
	Color  string
	Values []float64
}

// Bars describes a (possibly stacked) bar chart over labelled buckets.
type Bars struct {
	Labels []string
	Stacks []BarStack
	// BarColors overrides the colour per bucket for single-stack charts.
	BarColors []string
}

// Figure is everything a renderer needs; it never carries raw records.
type Figure struct {
	Title  string
	XLabel string
	YLabel string
	// TimeAxis marks X values as unix seconds.
	TimeAxis bool
	XRange   *Range
	YRange   *Range
	Lines    []Line
	Bands    []Band
	Markers  []Marker
	Bars     *Bars
	Legend   bool
}

// DataRange returns the extent of all line values on each axis.
func (f Figure) DataRange() (x, y Range, ok bool) {
	x = Range{Min: math.Inf(1), Max: math.Inf(-1)}
	y = x
	for _, l := range f.Lines {
		for i := range l.X {
			x.Min = math.Min(x.Min, l.X[i])
			x.Max = math.Max(x.Max, l.X[i])
			y.Min = math.Min(y.Min, l.Y[i])
			y.Max = math.Max(y.Max, l.Y[i])
		}
	}
	for _, m := range f.Markers {
		x.Min = math.Min(x.Min, m.X)
		x.Max = math.Max(x.Max, m.X)
		y.Min = math.Min(y.Min, m.Y)
		y.Max = math.Max(y.Max, m.Y)
	}
	return x, y, !math.IsInf(x.Min, 1)
}

// Renderer produces an encoded image for a figure.
type Renderer interface {
	Render(fig Figure) ([]byte, error)
}
