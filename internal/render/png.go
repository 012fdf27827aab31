package render

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 640

	defaultDotSize = 3
	timeLayout     = "Jan 2006"
	markerColor    = "FF0000"
	defaultColor   = "1F77B4"
)

// PNG renders figures with go-chart.
type PNG struct {
	Width  int
	Height int
}

// NewPNG returns a renderer using the given canvas size; non-positive values fall back to defaults.
func NewPNG(width, height int) *PNG {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &PNG{Width: width, Height: height}
}

// Render encodes fig as PNG bytes.
func (p *PNG) Render(fig Figure) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if fig.Bars != nil {
		err = p.renderBars(&buf, fig)
	} else {
		err = p.renderLines(&buf, fig)
	}
	if err != nil {
		return nil, fmt.Errorf("render %q: %w", fig.Title, err)
	}
	return buf.Bytes(), nil
}

func (p *PNG) renderLines(buf *bytes.Buffer, fig Figure) error {
	xr, yr, ok := fig.DataRange()
	if !ok && (fig.XRange == nil || fig.YRange == nil) {
		return fmt.Errorf("figure has no points")
	}
	if fig.XRange != nil {
		xr = *fig.XRange
	}
	if fig.YRange != nil {
		yr = *fig.YRange
	}
	xr = padRange(xr, fig.TimeAxis)
	yr = padRange(yr, false)

	xScale := 1.0
	if fig.TimeAxis {
		// go-chart time formatters expect unix nanoseconds.
		xScale = 1e9
	}

	series := make([]chart.Series, 0, len(fig.Bands)+len(fig.Lines)+2)
	series = append(series, bandSeries(fig.Bands, xr, yr, xScale)...)

	named := make([]chart.Series, 0, len(fig.Lines))
	for _, l := range fig.Lines {
		s := lineSeries(l, xScale)
		series = append(series, s)
		if l.Label != "" {
			named = append(named, s)
		}
	}
	if len(fig.Markers) > 0 {
		series = append(series, markerSeries(fig.Markers, xScale)...)
	}

	xAxis := chart.XAxis{
		Name:  fig.XLabel,
		Range: &chart.ContinuousRange{Min: xr.Min * xScale, Max: xr.Max * xScale},
	}
	if fig.TimeAxis {
		xAxis.ValueFormatter = chart.TimeValueFormatterWithFormat(timeLayout)
	} else {
		xAxis.ValueFormatter = intFormatter
	}
	ch := chart.Chart{
		Title:      fig.Title,
		Width:      p.Width,
		Height:     p.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      xAxis,
		YAxis: chart.YAxis{
			Name:           fig.YLabel,
			Range:          &chart.ContinuousRange{Min: yr.Min, Max: yr.Max},
			ValueFormatter: intFormatter,
		},
		Series: series,
	}
	if fig.Legend && len(named) > 0 {
		// The legend only lists labelled lines, so it is built from a copy.
		legendSource := ch
		legendSource.Series = named
		ch.Elements = []chart.Renderable{chart.Legend(&legendSource)}
	}
	return ch.Render(chart.PNG, buf)
}

func (p *PNG) renderBars(buf *bytes.Buffer, fig Figure) error {
	bars := fig.Bars
	if len(bars.Labels) == 0 || len(bars.Stacks) == 0 {
		return fmt.Errorf("figure has no bars")
	}
	barWidth := p.barWidth(len(bars.Labels))
	if len(bars.Stacks) == 1 {
		stack := bars.Stacks[0]
		values := make([]chart.Value, len(bars.Labels))
		for i, label := range bars.Labels {
			color := stack.Color
			if i < len(bars.BarColors) && bars.BarColors[i] != "" {
				color = bars.BarColors[i]
			}
			values[i] = chart.Value{
				Label: label,
				Value: valueAt(stack.Values, i),
				Style: chart.Style{
					FillColor:   colorOf(color),
					StrokeColor: colorOf(color),
				},
			}
		}
		ch := chart.BarChart{
			Title:      fig.Title,
			Width:      p.Width,
			Height:     p.Height,
			BarWidth:   barWidth,
			Background: chart.Style{Padding: chart.Box{Top: 40}},
			XAxis:      chart.Style{TextRotationDegrees: rotationFor(len(bars.Labels))},
			YAxis: chart.YAxis{
				Name:           fig.YLabel,
				ValueFormatter: intFormatter,
			},
			Bars: values,
		}
		if fig.YRange != nil {
			ch.YAxis.Range = &chart.ContinuousRange{Min: fig.YRange.Min, Max: fig.YRange.Max}
		}
		return ch.Render(chart.PNG, buf)
	}
	return p.renderStacked(buf, fig)
}

// renderStacked draws each layer as filled boxes reaching its cumulative
// height. Layers are drawn from the top down so lower layers paint over them.
func (p *PNG) renderStacked(buf *bytes.Buffer, fig Figure) error {
	bars := fig.Bars
	n := len(bars.Labels)
	tops := make([][]float64, len(bars.Stacks))
	var peak float64
	for si := range bars.Stacks {
		tops[si] = make([]float64, n)
		for i := 0; i < n; i++ {
			below := 0.0
			if si > 0 {
				below = tops[si-1][i]
			}
			tops[si][i] = below + math.Max(valueAt(bars.Stacks[si].Values, i), 0)
			peak = math.Max(peak, tops[si][i])
		}
	}

	series := make([]chart.Series, 0, len(bars.Stacks))
	for si := len(bars.Stacks) - 1; si >= 0; si-- {
		series = append(series, stepSeries(tops[si], bars.Stacks[si].Color))
	}

	ticks := make([]chart.Tick, n)
	for i, label := range bars.Labels {
		ticks[i] = chart.Tick{Value: float64(i) + 0.5, Label: label}
	}
	yr := Range{Min: 0, Max: math.Max(peak*1.05, 1)}
	if fig.YRange != nil {
		yr = *fig.YRange
	}
	ch := chart.Chart{
		Title:      fig.Title,
		Width:      p.Width,
		Height:     p.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:  fig.XLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: float64(n)},
			Ticks: ticks,
			Style: chart.Style{TextRotationDegrees: rotationFor(n)},
		},
		YAxis: chart.YAxis{
			Name:           fig.YLabel,
			Range:          &chart.ContinuousRange{Min: yr.Min, Max: yr.Max},
			ValueFormatter: intFormatter,
		},
		Series: series,
	}
	if fig.Legend {
		var named []chart.Series
		for _, s := range bars.Stacks {
			if s.Label == "" {
				continue
			}
			named = append(named, chart.ContinuousSeries{
				Name:  s.Label,
				Style: chart.Style{StrokeColor: colorOf(s.Color), StrokeWidth: 4},
			})
		}
		if len(named) > 0 {
			legendSource := ch
			legendSource.Series = named
			ch.Elements = []chart.Renderable{chart.Legend(&legendSource)}
		}
	}
	return ch.Render(chart.PNG, buf)
}

// stepSeries outlines one box per bucket, bucket i spanning [i, i+1) less a gap.
func stepSeries(tops []float64, color string) chart.ContinuousSeries {
	const gap = 0.1
	xs := make([]float64, 0, 4*len(tops))
	ys := make([]float64, 0, 4*len(tops))
	for i, top := range tops {
		left, right := float64(i)+gap, float64(i+1)-gap
		xs = append(xs, left, left, right, right)
		ys = append(ys, 0, top, top, 0)
	}
	c := colorOf(color)
	return chart.ContinuousSeries{
		XValues: xs,
		YValues: ys,
		// go-chart only fills a series whose stroke is drawn.
		Style: chart.Style{StrokeColor: c, StrokeWidth: 1, FillColor: c},
	}
}

func (p *PNG) barWidth(n int) int {
	w := (p.Width - 120) / (n + 1)
	if w < 4 {
		w = 4
	}
	if w > 80 {
		w = 80
	}
	return w
}

func rotationFor(n int) float64 {
	if n > 12 {
		return 45
	}
	return 0
}

func valueAt(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}

func lineSeries(l Line, xScale float64) chart.ContinuousSeries {
	xs := make([]float64, len(l.X))
	for i, x := range l.X {
		xs[i] = x * xScale
	}
	ys := append([]float64(nil), l.Y...)
	if len(xs) == 1 {
		// go-chart needs two points to draw a series.
		xs = append(xs, xs[0])
		ys = append(ys, ys[0])
	}
	color := colorOf(l.Color)
	dot := l.DotSize
	if dot <= 0 {
		dot = defaultDotSize
	}
	style := chart.Style{StrokeColor: color, StrokeWidth: 2}
	switch l.Mark {
	case MarkDots:
		style = chart.Style{StrokeWidth: 0, StrokeColor: drawing.ColorTransparent, DotWidth: dot, DotColor: color}
	case MarkLineDots:
		style.DotWidth = dot
		style.DotColor = color
	}
	return chart.ContinuousSeries{Name: l.Label, XValues: xs, YValues: ys, Style: style}
}

// bandSeries shades rank bands. Each band is a filled series whose fill runs
// down to the canvas bottom, so Y bands are drawn from the highest down and X
// bands are clipped to the current y range.
func bandSeries(bands []Band, xr, yr Range, xScale float64) []chart.Series {
	var ys, xs []Band
	for _, b := range bands {
		if b.Axis == AxisY {
			ys = append(ys, b)
		} else {
			xs = append(xs, b)
		}
	}
	sort.Slice(ys, func(i, j int) bool { return ys[i].High > ys[j].High })

	out := make([]chart.Series, 0, len(bands))
	for _, b := range ys {
		if b.Low >= yr.Max || b.High <= yr.Min {
			continue
		}
		top := math.Min(b.High, yr.Max)
		out = append(out, fillSeries(
			[]float64{xr.Min * xScale, xr.Max * xScale},
			[]float64{top, top},
			b.Color,
		))
	}
	for _, b := range xs {
		low := math.Max(b.Low, xr.Min)
		high := math.Min(b.High, xr.Max)
		if low >= high {
			continue
		}
		out = append(out, fillSeries(
			[]float64{low * xScale, high * xScale},
			[]float64{yr.Max, yr.Max},
			b.Color,
		))
	}
	return out
}

func fillSeries(xs, ys []float64, color string) chart.ContinuousSeries {
	c := colorOf(color)
	return chart.ContinuousSeries{
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeWidth: 0,
			StrokeColor: drawing.ColorTransparent,
			FillColor:   c,
		},
	}
}

func markerSeries(markers []Marker, xScale float64) []chart.Series {
	red := colorOf(markerColor)
	xs := make([]float64, 0, len(markers))
	ys := make([]float64, 0, len(markers))
	annotations := make([]chart.Value2, 0, len(markers))
	for _, m := range markers {
		xs = append(xs, m.X*xScale)
		ys = append(ys, m.Y)
		if m.Label != "" {
			annotations = append(annotations, chart.Value2{XValue: m.X * xScale, YValue: m.Y, Label: m.Label})
		}
	}
	if len(xs) == 1 {
		xs = append(xs, xs[0])
		ys = append(ys, ys[0])
	}
	out := []chart.Series{chart.ContinuousSeries{
		XValues: xs,
		YValues: ys,
		Style:   chart.Style{StrokeWidth: 0, StrokeColor: drawing.ColorTransparent, DotWidth: 5, DotColor: red},
	}}
	if len(annotations) > 0 {
		out = append(out, chart.AnnotationSeries{Annotations: annotations})
	}
	return out
}

// padRange widens degenerate ranges; go-chart rejects zero-width axes.
func padRange(r Range, timeAxis bool) Range {
	if r.Max > r.Min {
		return r
	}
	pad := 1.0
	if timeAxis {
		pad = 86400
	}
	return Range{Min: r.Min - pad, Max: r.Max + pad}
}

// colorOf parses a hex colour; an empty string means the default series colour.
func colorOf(hex string) drawing.Color {
	if len(hex) != 3 && len(hex) != 6 {
		return drawing.ColorFromHex(defaultColor)
	}
	return drawing.ColorFromHex(hex)
}

func intFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(math.Round(f), 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
