// Package chart draws daily time series as framed terminal bar charts.
package chart

import (
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/talgya/veramatrix/internal/engine"
)

// Point is a single (time, value) sample.
type Point = engine.Point

const (
	MinWidth  = 8
	MinHeight = 3
)

// Eighth-height blocks, lowest first.
var blocks = []rune("▁▂▃▄▅▆▇█")

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	axisStyle  = lipgloss.NewStyle().Faint(true)
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// Render draws points as a vertical bar chart of at most width columns and
// height rows. Longer series are downsampled by bucket mean.
func Render(title string, points []Point, width, height int) string {
	width = max(width, MinWidth)
	height = max(height, MinHeight)

	if len(points) == 0 {
		return frameStyle.Render(titleStyle.Render(title) + "\n" + axisStyle.Render("no data"))
	}

	cols := Downsample(points, width)
	base, top := bounds(cols)
	span := top - base
	if span == 0 {
		span = 1
	}

	topLabel := label(top)
	baseLabel := label(base)
	gutter := max(lipgloss.Width(topLabel), lipgloss.Width(baseLabel))

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteByte('\n')

	levels := make([]int, len(cols))
	for i, p := range cols {
		levels[i] = int(math.Round((p.Value - base) / span * float64(height*8)))
	}

	for row := height - 1; row >= 0; row-- {
		var y string
		switch row {
		case height - 1:
			y = topLabel
		case 0:
			y = baseLabel
		}
		b.WriteString(axisStyle.Render(padLeft(y, gutter) + " │"))

		var line strings.Builder
		for _, lvl := range levels {
			line.WriteRune(cell(lvl - row*8))
		}
		b.WriteString(barStyle.Render(line.String()))
		b.WriteByte('\n')
	}

	b.WriteString(axisStyle.Render(strings.Repeat(" ", gutter) + " └" + strings.Repeat("─", len(cols))))
	b.WriteByte('\n')
	b.WriteString(axisStyle.Render(strings.Repeat(" ", gutter+2) + xAxis(cols[0].Time, cols[len(cols)-1].Time, len(cols))))

	return frameStyle.Render(b.String())
}

// Downsample reduces points to at most n buckets, each holding the mean value
// and the time of its first point.
func Downsample(points []Point, n int) []Point {
	if n <= 0 || len(points) <= n {
		return append([]Point(nil), points...)
	}
	out := make([]Point, n)
	for i := range n {
		lo := i * len(points) / n
		hi := (i + 1) * len(points) / n
		var sum float64
		for _, p := range points[lo:hi] {
			sum += p.Value
		}
		out[i] = Point{Time: points[lo].Time, Value: sum / float64(hi-lo)}
	}
	return out
}

// bounds returns the chart floor (never above zero) and the maximum value.
func bounds(points []Point) (base, top float64) {
	top = points[0].Value
	for _, p := range points {
		base = math.Min(base, p.Value)
		top = math.Max(top, p.Value)
	}
	return base, math.Max(top, base)
}

func cell(eighths int) rune {
	switch {
	case eighths <= 0:
		return ' '
	case eighths >= 8:
		return blocks[7]
	default:
		return blocks[eighths-1]
	}
}

func label(v float64) string {
	return humanize.Commaf(math.Round(v*100) / 100)
}

func padLeft(s string, w int) string {
	if n := w - lipgloss.Width(s); n > 0 {
		return strings.Repeat(" ", n) + s
	}
	return s
}

func xAxis(from, to time.Time, width int) string {
	start := from.Format(time.DateOnly)
	end := to.Format(time.DateOnly)
	if from.Equal(to) {
		return start
	}
	gap := width - len(start) - len(end)
	if gap < 1 {
		return start + " " + end
	}
	return start + strings.Repeat(" ", gap) + end
}
