package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// World map grid, equirectangular
const (
	mapMinWidth  = 40
	mapMinHeight = 12
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Altitude bands for map markers, in km
var altitudeColors = []struct {
	below float64
	color lipgloss.Color
}{
	{5, lipgloss.Color("75")},
	{10, lipgloss.Color("46")},
	{15, lipgloss.Color("226")},
	{20, lipgloss.Color("214")},
	{math.Inf(1), lipgloss.Color("196")},
}

// MapToScreen converts a position to a cell on a width x height world grid.
// Latitude +90 is row 0 and longitude -180 is column 0.
func MapToScreen(lat, lon float64, width, height int) (int, int) {
	x := int((lon + 180) / 360 * float64(width))
	y := int((90 - lat) / 180 * float64(height))
	if x >= width {
		x = width - 1
	}
	if y >= height {
		y = height - 1
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y
}

func (m Model) mapSize() (int, int) {
	width := m.width - 4
	if width < mapMinWidth {
		width = mapMinWidth
	}
	height := m.height - 10 // header, status and help
	if height < mapMinHeight {
		height = mapMinHeight
	}
	return width, height
}

// renderMap plots the newest position of every trajectory, colored by altitude.
// The selected trajectory is drawn as a trail.
func (m Model) renderMap() string {
	width, height := m.mapSize()

	grid := make([][]rune, height)
	colors := make([][]lipgloss.Color, height)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(" ", width))
		colors[y] = make([]lipgloss.Color, width)
	}

	// Equator and prime meridian
	_, eqY := MapToScreen(0, 0, width, height)
	pmX, _ := MapToScreen(0, 0, width, height)
	for x := 0; x < width; x++ {
		grid[eqY][x] = '·'
		colors[eqY][x] = lipgloss.Color("237")
	}
	for y := 0; y < height; y++ {
		grid[y][pmX] = '·'
		colors[y][pmX] = lipgloss.Color("237")
	}

	if t, ok := m.Selected(); ok && t.Len() > 1 {
		for _, p := range t.Path[1:] {
			x, y := MapToScreen(p.Latitude, p.Longitude, width, height)
			grid[y][x] = '∘'
			colors[y][x] = lipgloss.Color("208")
		}
	}

	for _, p := range trajectory.LatestPoints(m.trajectories()) {
		x, y := MapToScreen(p.Latitude, p.Longitude, width, height)
		grid[y][x] = '●'
		colors[y][x] = altitudeColor(p.Altitude)
	}

	var b strings.Builder
	border := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	b.WriteString(border.Render("┌" + strings.Repeat("─", width) + "┐"))
	b.WriteString("\n")
	for y := range grid {
		b.WriteString(border.Render("│"))
		for x, r := range grid[y] {
			if r == ' ' {
				b.WriteRune(r)
				continue
			}
			b.WriteString(lipgloss.NewStyle().Foreground(colors[y][x]).Render(string(r)))
		}
		b.WriteString(border.Render("│"))
		b.WriteString("\n")
	}
	b.WriteString(border.Render("└" + strings.Repeat("─", width) + "┘"))
	b.WriteString("\n")
	b.WriteString(m.renderLegend())
	return b.String()
}

func (m Model) renderLegend() string {
	var b strings.Builder
	labels := []string{"<5 km", "<10", "<15", "<20", "≥20"}
	for i, band := range altitudeColors {
		b.WriteString(lipgloss.NewStyle().Foreground(band.color).Render("●"))
		b.WriteString(" " + labels[i] + "  ")
	}
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("∘"))
	b.WriteString(" selected trail")
	return b.String()
}

func altitudeColor(altKm float64) lipgloss.Color {
	for _, band := range altitudeColors {
		if altKm < band.below {
			return band.color
		}
	}
	return altitudeColors[len(altitudeColors)-1].color
}

// Sparkline renders path altitudes oldest first, scaled to the path's own
// range. A flat path renders at the lowest level.
func Sparkline(path []trajectory.SamplePoint) string {
	if len(path) == 0 {
		return ""
	}
	lo, hi := path[0].Altitude, path[0].Altitude
	for _, p := range path {
		lo = math.Min(lo, p.Altitude)
		hi = math.Max(hi, p.Altitude)
	}

	runes := make([]rune, len(path))
	for i := range path {
		alt := path[len(path)-1-i].Altitude
		level := 0
		if hi > lo {
			level = int((alt - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		runes[i] = sparkRunes[level]
	}
	return string(runes)
}
