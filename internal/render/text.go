package render

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const (
	defaultTextHeight   = 12
	minTextWidth        = 10
	terminalWidthBackup = 80
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	barRune             = "█"
)

var linePatterns = []struct {
	name   string
	period int
	on     int
}{
	{name: "solid", period: 1, on: 1},
	{name: "dashed", period: 6, on: 3},
	{name: "dotted", period: 4, on: 1},
	{name: "dashdot", period: 8, on: 3},
}

// Text draws figures as braille plots and bar tables for terminals.
type Text struct {
	Width  int
	Height int
	Color  bool
}

// Write renders fig to w.
func (t Text) Write(w io.Writer, fig Figure) error {
	if fig.Title != "" {
		if _, err := fmt.Fprintln(w, fig.Title); err != nil {
			return err
		}
	}
	if fig.Bars != nil {
		return t.writeBars(w, fig)
	}
	return t.writeLines(w, fig)
}

// Render returns the text rendering as bytes, so Text satisfies Renderer.
func (t Text) Render(fig Figure) ([]byte, error) {
	var b strings.Builder
	if err := t.Write(&b, fig); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func (t Text) writeLines(w io.Writer, fig Figure) error {
	lines := make([]Line, 0, len(fig.Lines))
	for _, l := range fig.Lines {
		if len(l.X) > 0 && len(l.Y) > 0 {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	xr, yr, _ := fig.DataRange()
	if fig.XRange != nil {
		xr = *fig.XRange
	}
	if fig.YRange != nil {
		yr = *fig.YRange
	}
	xr, yr = widen(xr), widen(yr)

	topLabel := strconv.FormatFloat(math.Round(yr.Max), 'f', -1, 64)
	bottomLabel := strconv.FormatFloat(math.Round(yr.Min), 'f', -1, 64)
	labelWidth := max(len(topLabel), len(bottomLabel))

	height := t.Height
	if height <= 0 {
		height = defaultTextHeight
	}
	width := t.Width
	if width <= 0 {
		width = PlotWidthFor(terminalWidth(), labelWidth)
	}
	width = max(width, minTextWidth)

	layers := make([][][]uint8, len(lines))
	for i, l := range lines {
		layers[i] = newCells(height, width)
		pattern := linePatterns[i%len(linePatterns)]
		if l.Mark == MarkDots {
			pattern = linePatterns[0]
		}
		prevX, prevY := -1, -1
		for j, n := 0, min(len(l.X), len(l.Y)); j < n; j++ {
			px, py := columnFor(l.X[j], xr, width*2), rowFor(l.Y[j], yr, height*4)
			if l.Mark != MarkDots && prevX >= 0 {
				drawSegment(prevX, prevY, px, py, func(dx, dy int) {
					if dx%pattern.period < pattern.on {
						setDot(layers[i], dx, dy)
					}
				})
			} else {
				setDot(layers[i], px, py)
			}
			prevX, prevY = px, py
		}
	}

	useColor := t.Color && os.Getenv("NO_COLOR") == ""
	for y := 0; y < height; y++ {
		label := ""
		switch y {
		case 0:
			label = topLabel
		case height - 1:
			label = bottomLabel
		}
		var row strings.Builder
		fmt.Fprintf(&row, "%*s%s", labelWidth, label, axisSeparator)
		for x := 0; x < width; x++ {
			mask, owner := mergeCell(layers, x, y)
			ch := rune(0x2800 + int(mask))
			if useColor && owner >= 0 {
				row.WriteString(ansiFor(lines[owner].Color))
				row.WriteRune(ch)
				row.WriteString(colorReset)
			} else {
				row.WriteRune(ch)
			}
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}
	if fig.XLabel != "" || fig.YLabel != "" {
		if _, err := fmt.Fprintf(w, "x: %s  y: %s\n", fig.XLabel, fig.YLabel); err != nil {
			return err
		}
	}
	if fig.Legend {
		parts := make([]string, 0, len(lines))
		for i, l := range lines {
			if l.Label == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s (%s)", l.Label, linePatterns[i%len(linePatterns)].name))
		}
		if len(parts) > 0 {
			if _, err := fmt.Fprintln(w, "Legend: "+strings.Join(parts, "  ")); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t Text) writeBars(w io.Writer, fig Figure) error {
	bars := fig.Bars
	totals := make([]float64, len(bars.Labels))
	var peak float64
	for i := range bars.Labels {
		for _, s := range bars.Stacks {
			totals[i] += valueAt(s.Values, i)
		}
		peak = math.Max(peak, totals[i])
	}
	barWidth := t.Width
	if barWidth <= 0 {
		barWidth = 40
	}

	headers := []string{"bucket"}
	for _, s := range bars.Stacks {
		name := s.Label
		if name == "" {
			name = "count"
		}
		headers = append(headers, name)
	}
	headers = append(headers, "")
	rows := make([][]string, len(bars.Labels))
	rightAlign := map[int]bool{}
	for i, label := range bars.Labels {
		row := []string{label}
		for si, s := range bars.Stacks {
			rightAlign[si+1] = true
			row = append(row, strconv.FormatFloat(valueAt(s.Values, i), 'f', -1, 64))
		}
		n := 0
		if peak > 0 {
			n = int(math.Round(totals[i] / peak * float64(barWidth)))
		}
		row = append(row, strings.Repeat(barRune, n))
		rows[i] = row
	}
	for _, line := range FormatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// PlotWidthFor returns the plot width that fits totalWidth next to the axis labels.
func PlotWidthFor(totalWidth, labelWidth int) int {
	if totalWidth <= 0 {
		return minTextWidth
	}
	return max(totalWidth-labelWidth-len([]rune(axisSeparator)), minTextWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

// ansiFor maps a hex colour to the nearest basic ANSI foreground code.
func ansiFor(hex string) string {
	v, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return ""
	}
	r, g, b := v>>16&0xff, v>>8&0xff, v&0xff
	code := 30
	if r > 127 {
		code++
	}
	if g > 127 {
		code += 2
	}
	if b > 127 {
		code += 4
	}
	if code == 37 || code == 30 {
		code = 36
	}
	return "\x1b[" + strconv.Itoa(code) + "m"
}

func newCells(height, width int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := range cells {
		cells[y] = make([]uint8, width)
	}
	return cells
}

func mergeCell(layers [][][]uint8, x, y int) (uint8, int) {
	var mask uint8
	owner := -1
	for i, cells := range layers {
		if m := cells[y][x]; m != 0 {
			if owner == -1 {
				owner = i
			}
			mask |= m
		}
	}
	return mask, owner
}

// widen gives degenerate ranges a unit of width on each side.
func widen(r Range) Range {
	if math.Abs(r.Max-r.Min) < 1e-9 {
		return Range{Min: r.Min - 1, Max: r.Max + 1}
	}
	return r
}

// columnFor maps x to a dot column; points outside r land off the grid.
func columnFor(x float64, r Range, cols int) int {
	if cols <= 1 {
		return 0
	}
	pos := (x - r.Min) / (r.Max - r.Min)
	return int(math.Round(pos * float64(cols-1)))
}

func rowFor(v float64, r Range, rows int) int {
	if rows <= 1 {
		return 0
	}
	pos := (v - r.Min) / (r.Max - r.Min)
	row := int(math.Round((1 - pos) * float64(rows-1)))
	return min(max(row, 0), rows-1)
}

func drawSegment(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// braille dot bits indexed by [x][y] within a 2x4 cell.
var dotBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func setDot(cells [][]uint8, x, y int) {
	cy, cx := y/4, x/2
	if x < 0 || y < 0 || cy >= len(cells) || cx >= len(cells[cy]) {
		return
	}
	cells[cy][cx] |= dotBits[x%2][y%4]
}
