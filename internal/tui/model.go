// Package tui is a terminal dashboard over the reconstructed constellation.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/balloonscope/internal/insights"
	"github.com/unklstewy/balloonscope/pkg/analytics"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// Views, cycled with tab
const (
	viewOverview = iota
	viewList
	viewMap
	viewCount
)

// Loader fetches the current snapshot. *insights.Service.Snapshot fits.
type Loader func(ctx context.Context) (*insights.Snapshot, error)

// Config tunes the dashboard.
type Config struct {
	ThresholdKm     float64
	PageSize        int
	RefreshInterval time.Duration
	FetchTimeout    time.Duration

	// Invalidate, when set, is called before a manual refresh
	Invalidate func()
}

type snapshotMsg struct {
	snap *insights.Snapshot
	at   time.Time
}

type errMsg struct{ err error }

type tickMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	load Loader
	cfg  Config

	snap       *insights.Snapshot
	overview   insights.Overview
	drift      analytics.Drift
	lastUpdate time.Time
	loading    bool
	err        error

	view     int
	page     int
	selected int // index within the current page

	width  int
	height int
}

// New creates a dashboard model.
func New(load Loader, cfg Config) Model {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Minute
	}
	if cfg.ThresholdKm <= 0 {
		cfg.ThresholdKm = analytics.EverestHeightKm
	}
	return Model{load: load, cfg: cfg, loading: true, width: 100, height: 40}
}

func (m Model) fetch() tea.Cmd {
	load, timeout := m.load, m.cfg.FetchTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		snap, err := load(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{snap: snap, at: time.Now()}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case snapshotMsg:
		m.loading = false
		m.err = nil
		m.snap = msg.snap
		m.lastUpdate = msg.at
		m.overview = insights.ComputeOverview(msg.snap.Trajectories, m.cfg.ThresholdKm)
		m.drift = analytics.GlobalDrift(msg.snap.Trajectories)
		m.clampSelection()

	case errMsg:
		m.loading = false
		m.err = msg.err

	case tickMsg:
		if m.loading {
			return m, m.tick()
		}
		m.loading = true
		return m, tea.Batch(m.fetch(), m.tick())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		m.view = (m.view + 1) % viewCount
	case "shift+tab":
		m.view = (m.view + viewCount - 1) % viewCount
	case "r":
		if m.loading {
			return m, nil
		}
		if m.cfg.Invalidate != nil {
			m.cfg.Invalidate()
		}
		m.loading = true
		return m, m.fetch()
	case "n", "right":
		if m.currentPage().HasNext {
			m.page++
			m.selected = 0
		}
	case "p", "left":
		if m.page > 0 {
			m.page--
			m.selected = 0
		}
	case "down", "j":
		if m.selected < len(m.currentPage().Items)-1 {
			m.selected++
		}
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	}
	return m, nil
}

func (m Model) trajectories() []trajectory.Trajectory {
	if m.snap == nil {
		return nil
	}
	return m.snap.Trajectories
}

func (m Model) currentPage() analytics.PageResult[trajectory.Trajectory] {
	return analytics.Page(m.trajectories(), m.page, m.cfg.PageSize)
}

// clampSelection keeps page and selection valid after a refresh.
func (m *Model) clampSelection() {
	result := m.currentPage()
	m.page = result.Page
	if m.selected >= len(result.Items) {
		m.selected = len(result.Items) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// Selected returns the highlighted trajectory, if any.
func (m Model) Selected() (trajectory.Trajectory, bool) {
	items := m.currentPage().Items
	if m.selected < 0 || m.selected >= len(items) {
		return trajectory.Trajectory{}, false
	}
	return items[m.selected], true
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(30)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("237")).Bold(true)
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	tabs := []string{"Overview", "Trajectories", "Map"}
	b.WriteString(titleStyle.Render("🎈 Balloonscope"))
	for i, name := range tabs {
		label := " " + name + " "
		if i == m.view {
			label = headerStyle.Render("[" + name + "]")
		}
		b.WriteString(" " + label)
	}
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	if m.snap == nil {
		if m.err == nil {
			b.WriteString(helpStyle.Render("Fetching the last 24 hours of positions..."))
		}
	} else {
		switch m.view {
		case viewOverview:
			b.WriteString(m.renderOverview())
		case viewList:
			b.WriteString(m.renderList())
		case viewMap:
			b.WriteString(m.renderMap())
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab: switch view • n/p: page • ↑/↓: select • r: refresh • q: quit"))
	return b.String()
}

func (m Model) statusLine() string {
	var parts []string
	if m.snap != nil {
		meta := m.snap.Window.Metadata
		parts = append(parts, fmt.Sprintf("%d balloons • %d points • %d/%d hours",
			meta.TotalBalloons, meta.TotalPoints, meta.HoursWithData, trajectory.HoursInWindow))
		if meta.HoursWithErrors > 0 {
			parts = append(parts, warnStyle.Render(fmt.Sprintf("⚠ %d hours failed", meta.HoursWithErrors)))
		}
		parts = append(parts, "updated "+m.lastUpdate.Format("15:04:05"))
	}
	if m.loading {
		parts = append(parts, "refreshing...")
	}
	line := helpStyle.Render(strings.Join(parts, " | "))
	if m.err != nil {
		line += "\n" + errStyle.Render("Error: "+m.err.Error())
	}
	return line
}

func (m Model) renderOverview() string {
	o := m.overview

	card := func(title string, lines ...string) string {
		return cardStyle.Render(headerStyle.Render(title) + "\n" + strings.Join(lines, "\n"))
	}
	found := func(ok bool, text string) string {
		if !ok {
			return helpStyle.Render("no data")
		}
		return text
	}

	journeys := card("Journeys",
		fmt.Sprintf("Trajectories: %d", o.TotalTrajectories),
		found(o.LongestJourney.Found, fmt.Sprintf("Longest: #%d %.0f km", o.LongestJourney.TrajectoryID, o.LongestJourney.DistanceKm)),
		found(o.ShortestJourney.Found, fmt.Sprintf("Shortest: #%d %.0f km", o.ShortestJourney.TrajectoryID, o.ShortestJourney.DistanceKm)),
		fmt.Sprintf("Average: %.0f km", o.AverageDistanceKm),
	)
	altitude := card("Altitude",
		found(o.HighestAltitude.Found, fmt.Sprintf("Highest: #%d %.2f km", o.HighestAltitude.TrajectoryID, o.HighestAltitude.Altitude)),
		found(o.LowestAltitude.Found, fmt.Sprintf("Lowest: #%d %.2f km", o.LowestAltitude.TrajectoryID, o.LowestAltitude.Altitude)),
		found(o.AltitudeExplorer.Found, fmt.Sprintf("Widest band: #%d %.2f km", o.AltitudeExplorer.TrajectoryID, o.AltitudeExplorer.Range)),
		fmt.Sprintf("Above %.3f km: %d (%.1f%%)", o.AboveThreshold.ThresholdKm, o.AboveThreshold.AboveCount, o.AboveThreshold.Percentage),
	)
	motion := card("Motion",
		found(o.FastestMover.Found, fmt.Sprintf("Fastest: #%d %.1f km/h", o.FastestMover.TrajectoryID, o.FastestMover.AverageSpeedKmh)),
		found(o.MostConsistent.Found, fmt.Sprintf("Steadiest: #%d %.0f%%", o.MostConsistent.TrajectoryID, o.MostConsistent.ConsistencyPercent)),
		found(m.drift.Found, fmt.Sprintf("Drift: %s (%.0f°)", m.drift.CompassLabel, m.drift.BearingDegrees)),
	)
	coverage := card("Coverage",
		found(o.Coverage.Found, fmt.Sprintf("Lat %.1f to %.1f", o.Coverage.MinLat, o.Coverage.MaxLat)),
		found(o.Coverage.Found, fmt.Sprintf("Lon %.1f to %.1f", o.Coverage.MinLon, o.Coverage.MaxLon)),
		found(o.AltitudeHistogram.Found, fmt.Sprintf("Median alt %.2f km, p90 %.2f", o.AltitudeHistogram.Median, o.AltitudeHistogram.P90)),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, journeys, altitude),
		lipgloss.JoinHorizontal(lipgloss.Top, motion, coverage),
	)
}

func (m Model) renderList() string {
	var b strings.Builder
	result := m.currentPage()

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %6s %10s %9s %9s %8s", "ID", "Points", "Dist km", "Lat", "Lon", "Alt km")))
	b.WriteString("\n")

	if len(result.Items) == 0 {
		b.WriteString(helpStyle.Render("  No trajectories in this window"))
		b.WriteString("\n")
		return b.String()
	}

	for i, t := range result.Items {
		newest := t.Newest()
		line := fmt.Sprintf("#%-5d %6d %10.0f %9.3f %9.3f %8.2f",
			t.ID, t.Len(), analytics.TotalDistance(t.Path), newest.Latitude, newest.Longitude, newest.Altitude)
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render(fmt.Sprintf("Page %d of %d (%d-%d of %d)",
		result.Page+1, result.TotalPages, result.Start+1, result.End, len(m.trajectories()))))
	b.WriteString("\n")

	if t, ok := m.Selected(); ok {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render(fmt.Sprintf("#%d altitude, oldest → newest", t.ID)))
		b.WriteString("\n")
		b.WriteString(Sparkline(t.Path))
		b.WriteString("\n")
	}
	return b.String()
}
