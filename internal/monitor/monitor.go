/*
Package monitor renders a live terminal dashboard of a publishing run.

The dashboard polls a Source (the producer.Streamer) on a fixed interval and
shows the delivery counters, their health, the progress of the run, the most
recent failures and the throughput and success rate histories, using termui
widgets.
*/
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/internal/producer"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

// HealthStatus defines the health levels of the dashboard indicators.
type HealthStatus int

const (
	HealthGood     HealthStatus = iota // Healthy, shown in green.
	HealthWarning                      // Degraded, shown in yellow.
	HealthCritical                     // Failing, shown in red.
)

// Local aliases for readability.
const (
	MaxRecentFailures = config.DashboardMaxFailures
	MaxHistorySize    = config.DashboardMaxHistorySize
	SuccessRateGood   = config.DashboardSuccessRateGood
	SuccessRateWarn   = config.DashboardSuccessRateWarn
	UIUpdateInterval  = config.DashboardUpdateInterval
	MaxRowLength      = config.DashboardMaxRowLength
	TruncateSuffix    = config.DashboardTruncateSuffix
)

// Source is what the dashboard polls.
type Source interface {
	Stats() producer.Stats
	Failures() []producer.Outcome
}

// Metrics holds the state shown by the dashboard.
type Metrics struct {
	mu                 sync.RWMutex
	StartTime          time.Time
	Total              int // Records the run intends to submit, 0 when unknown.
	Stats              producer.Stats
	OutcomesPerSecond  []float64
	SuccessRateHistory []float64
	RecentFailures     []producer.Outcome
	CurrentPerSecond   float64
	LastUpdateTime     time.Time
	Uptime             time.Duration

	lastResolved int
	lastSample   time.Time
}

// Monitor samples a Source into Metrics.
type Monitor struct {
	Metrics *Metrics
	source  Source
}

// New returns a monitor over source for a run of total records.
func New(source Source, total int) *Monitor {
	return &Monitor{
		source: source,
		Metrics: &Metrics{
			StartTime:          time.Now(),
			Total:              total,
			OutcomesPerSecond:  make([]float64, 0, MaxHistorySize),
			SuccessRateHistory: make([]float64, 0, MaxHistorySize),
		},
	}
}

// Sample polls the source once.
func (m *Monitor) Sample(now time.Time) {
	m.Metrics.record(now, m.source.Stats(), m.source.Failures())
}

func (mt *Metrics) record(now time.Time, stats producer.Stats, failures []producer.Outcome) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	resolved := stats.Acknowledged + stats.Failed
	if !mt.lastSample.IsZero() {
		if elapsed := now.Sub(mt.lastSample).Seconds(); elapsed > 0 {
			mt.CurrentPerSecond = float64(resolved-mt.lastResolved) / elapsed
			mt.OutcomesPerSecond = appendBounded(mt.OutcomesPerSecond, mt.CurrentPerSecond)
		}
	}
	if resolved > 0 {
		mt.SuccessRateHistory = appendBounded(mt.SuccessRateHistory, stats.SuccessRate())
	}

	if len(failures) > MaxRecentFailures {
		failures = failures[len(failures)-MaxRecentFailures:]
	}
	mt.RecentFailures = append(mt.RecentFailures[:0], failures...)

	mt.Stats = stats
	mt.lastResolved = resolved
	mt.lastSample = now
	mt.LastUpdateTime = now
	mt.Uptime = now.Sub(mt.StartTime)
}

func appendBounded(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > MaxHistorySize {
		history = history[1:]
	}
	return history
}

// StatusThreshold defines a threshold for status evaluation.
type StatusThreshold struct {
	MinValue float64
	Status   HealthStatus
	Text     string
	Color    ui.Color
}

// evaluateStatus evaluates value against thresholds ordered from highest.
func evaluateStatus(value float64, thresholds []StatusThreshold) (HealthStatus, string, ui.Color) {
	for _, t := range thresholds {
		if value >= t.MinValue {
			return t.Status, t.Text, t.Color
		}
	}
	if len(thresholds) > 0 {
		last := thresholds[len(thresholds)-1]
		return last.Status, last.Text, last.Color
	}
	return HealthCritical, "● UNKNOWN", ui.ColorRed
}

var healthThresholds = []StatusThreshold{
	{SuccessRateGood, HealthGood, "● GOOD", ui.ColorGreen},
	{SuccessRateWarn, HealthWarning, "● DEGRADED", ui.ColorYellow},
	{0, HealthCritical, "● CRITICAL", ui.ColorRed},
}

// GetHealthStatus evaluates a success rate in percent.
func GetHealthStatus(successRate float64) (HealthStatus, string, ui.Color) {
	return evaluateStatus(successRate, healthThresholds)
}

// GetThroughputStatus evaluates the outcome rate. Outcomes that stop
// arriving while submissions are outstanding mean the run is stalled.
func GetThroughputStatus(perSecond float64, outstanding int) (HealthStatus, string, ui.Color) {
	switch {
	case outstanding <= 0:
		return HealthGood, "● IDLE", ui.ColorGreen
	case perSecond > 0:
		return HealthGood, "● FLOWING", ui.ColorGreen
	default:
		return HealthWarning, "● STALLED", ui.ColorYellow
	}
}

// GetFailureStatus evaluates the failure count.
func GetFailureStatus(failed int) (HealthStatus, string, ui.Color) {
	if failed == 0 {
		return HealthGood, "● NONE", ui.ColorGreen
	}
	return HealthWarning, fmt.Sprintf("● %d FAILED", failed), ui.ColorYellow
}

// getGlobalHealthStatus returns the worst of the individual statuses.
func getGlobalHealthStatus(statuses ...HealthStatus) (HealthStatus, string, ui.Color) {
	global := HealthGood
	for _, s := range statuses {
		if s > global {
			global = s
		}
	}

	switch global {
	case HealthWarning:
		return global, "● WARNING", ui.ColorYellow
	case HealthCritical:
		return global, "● CRITICAL", ui.ColorRed
	default:
		return HealthGood, "● GOOD", ui.ColorGreen
	}
}

// formatUptime formats a duration for display.
func formatUptime(uptime time.Duration) string {
	if uptime.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", uptime.Hours())
	} else if uptime.Minutes() >= 1 {
		return fmt.Sprintf("%.0fm", uptime.Minutes())
	}
	return fmt.Sprintf("%.0fs", uptime.Seconds())
}

// Dashboard groups the widgets of the screen.
type Dashboard struct {
	Counters    *widgets.Table
	Health      *widgets.Table
	Progress    *widgets.Gauge
	Failures    *widgets.List
	Throughput  *widgets.Plot
	SuccessRate *widgets.Plot
}

// NewDashboard creates the widgets with their initial content.
func NewDashboard() *Dashboard {
	return &Dashboard{
		Counters:    CreateCountersTable(),
		Health:      CreateHealthTable(),
		Progress:    CreateProgressGauge(),
		Failures:    CreateFailureList(),
		Throughput:  CreateThroughputChart(),
		SuccessRate: CreateSuccessRateChart(),
	}
}

// Items returns the widgets in render order.
func (d *Dashboard) Items() []ui.Drawable {
	return []ui.Drawable{d.Counters, d.Health, d.Progress, d.Failures, d.Throughput, d.SuccessRate}
}

// Layout places the widgets on a width x height terminal.
func (d *Dashboard) Layout(width, height int) {
	mid := width / 2
	d.Counters.SetRect(0, 0, mid, 9)
	d.Health.SetRect(mid, 0, width, 9)
	d.Progress.SetRect(0, 9, width, 12)
	d.Failures.SetRect(0, 12, width, 22)
	d.Throughput.SetRect(0, 22, mid, height)
	d.SuccessRate.SetRect(mid, 22, width, height)
}

// CreateCountersTable initialises the delivery counters table.
func CreateCountersTable() *widgets.Table {
	table := widgets.NewTable()
	table.Title = "Delivery"
	table.Rows = [][]string{
		{"Counter", "Value"},
		{"Submitted", "0"},
		{"Acknowledged", "0"},
		{"Failed", "0"},
		{"Outstanding", "0"},
		{"Success rate", "-"},
		{"Last update", "-"},
	}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)
	table.SetRect(0, 0, 50, 9)
	return table
}

// CreateHealthTable initialises the health indicators table.
func CreateHealthTable() *widgets.Table {
	table := widgets.NewTable()
	table.Title = "Health"
	table.Rows = [][]string{
		{"Indicator", "Status"},
		{"Overall", "●"},
		{"Success rate", "●"},
		{"Throughput", "●"},
		{"Failures", "●"},
		{"Uptime", "-"},
	}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)
	table.SetRect(50, 0, 110, 9)
	return table
}

// CreateProgressGauge initialises the progress gauge.
func CreateProgressGauge() *widgets.Gauge {
	gauge := widgets.NewGauge()
	gauge.Title = "Progress"
	gauge.Percent = 0
	gauge.BarColor = ui.ColorGreen
	gauge.Label = "waiting for outcomes"
	gauge.SetRect(0, 9, 110, 12)
	return gauge
}

// CreateFailureList initialises the recent failures list.
func CreateFailureList() *widgets.List {
	list := widgets.NewList()
	list.Title = "Recent failures"
	list.Rows = []string{"No failures"}
	list.TextStyle = ui.NewStyle(ui.ColorWhite)
	list.SelectedRowStyle = ui.NewStyle(ui.ColorBlack, ui.ColorWhite)
	list.WrapText = false
	list.SetRect(0, 12, 110, 22)
	return list
}

// CreateThroughputChart initialises the outcomes per second chart.
func CreateThroughputChart() *widgets.Plot {
	plot := widgets.NewPlot()
	plot.Title = "Outcomes per second"
	plot.Data = [][]float64{{0}}
	plot.SetRect(0, 22, 55, 32)
	plot.AxesColor = ui.ColorWhite
	plot.LineColors[0] = ui.ColorGreen
	plot.Marker = widgets.MarkerDot
	return plot
}

// CreateSuccessRateChart initialises the success rate chart.
func CreateSuccessRateChart() *widgets.Plot {
	plot := widgets.NewPlot()
	plot.Title = "Success rate (%)"
	plot.Data = [][]float64{{0}}
	plot.SetRect(55, 22, 110, 32)
	plot.AxesColor = ui.ColorWhite
	plot.LineColors[0] = ui.ColorBlue
	plot.Marker = widgets.MarkerDot
	return plot
}

// UpdateCountersTable fills the counters table from a snapshot.
func UpdateCountersTable(table *widgets.Table, stats producer.Stats, updated time.Time) {
	rate := "-"
	if stats.Acknowledged+stats.Failed > 0 {
		rate = fmt.Sprintf("%.2f%%", stats.SuccessRate())
	}
	last := "-"
	if !updated.IsZero() {
		last = updated.Format("15:04:05")
	}
	table.Rows = [][]string{
		{"Counter", "Value"},
		{"Submitted", fmt.Sprintf("%d", stats.Submitted)},
		{"Acknowledged", fmt.Sprintf("%d", stats.Acknowledged)},
		{"Failed", fmt.Sprintf("%d", stats.Failed)},
		{"Outstanding", fmt.Sprintf("%d", stats.Outstanding())},
		{"Success rate", rate},
		{"Last update", last},
	}
}

// UpdateHealthTable fills the health table.
func UpdateHealthTable(table *widgets.Table, m *Metrics) {
	stats := m.Stats
	successStatus, successText, successColor := HealthGood, "● WAITING", ui.ColorCyan
	if stats.Acknowledged+stats.Failed > 0 {
		successStatus, successText, successColor = GetHealthStatus(stats.SuccessRate())
	}
	throughputStatus, throughputText, throughputColor := GetThroughputStatus(m.CurrentPerSecond, stats.Outstanding())
	failureStatus, failureText, failureColor := GetFailureStatus(stats.Failed)
	_, globalText, globalColor := getGlobalHealthStatus(successStatus, throughputStatus, failureStatus)

	table.Rows = [][]string{
		{"Indicator", "Status"},
		{"Overall", globalText},
		{"Success rate", successText},
		{"Throughput", throughputText},
		{"Failures", failureText},
		{"Uptime", formatUptime(m.Uptime)},
	}

	table.RowStyles = make(map[int]ui.Style)
	table.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)
	table.RowStyles[1] = ui.NewStyle(globalColor, ui.ColorClear, ui.ModifierBold)
	table.RowStyles[2] = ui.NewStyle(successColor, ui.ColorClear)
	table.RowStyles[3] = ui.NewStyle(throughputColor, ui.ColorClear)
	table.RowStyles[4] = ui.NewStyle(failureColor, ui.ColorClear)
	table.RowStyles[5] = ui.NewStyle(ui.ColorCyan, ui.ColorClear)
}

// UpdateProgressGauge shows resolved submissions against the expected total.
// The total is the larger of the announced run size and the submissions.
func UpdateProgressGauge(gauge *widgets.Gauge, stats producer.Stats, total int) {
	if stats.Submitted > total {
		total = stats.Submitted
	}
	resolved := stats.Acknowledged + stats.Failed
	if total == 0 {
		gauge.Percent = 0
		gauge.Label = "waiting for outcomes"
		return
	}
	gauge.Percent = resolved * 100 / total
	gauge.Label = fmt.Sprintf("%d/%d resolved (%d%%)", resolved, total, gauge.Percent)
	if stats.Failed > 0 {
		gauge.BarColor = ui.ColorYellow
	} else {
		gauge.BarColor = ui.ColorGreen
	}
}

// formatFailureRow formats a failed outcome for display.
func formatFailureRow(o producer.Outcome) string {
	reason := "unknown error"
	if o.Err != nil {
		reason = o.Err.Error()
	}
	row := fmt.Sprintf("[%s] %s", o.Key, reason)
	if len(row) > MaxRowLength {
		row = row[:MaxRowLength-len(TruncateSuffix)] + TruncateSuffix
	}
	return row
}

// UpdateFailureList lists the failures, most recent first.
func UpdateFailureList(list *widgets.List, failures []producer.Outcome) {
	rows := make([]string, 0, len(failures))
	for i := len(failures) - 1; i >= 0; i-- {
		rows = append(rows, formatFailureRow(failures[i]))
	}
	if len(rows) == 0 {
		rows = []string{"No failures"}
	}
	list.Rows = rows
}

// UpdateCharts updates the throughput and success rate charts.
func UpdateCharts(throughputChart, successChart *widgets.Plot, throughput, successRate []float64) {
	if len(throughput) > 0 {
		throughputChart.Data = [][]float64{throughput}
	} else {
		throughputChart.Data = [][]float64{{0}}
	}

	if len(successRate) > 0 {
		successChart.Data = [][]float64{successRate}
	} else {
		successChart.Data = [][]float64{{0}}
	}
}

// UpdateUI refreshes every widget from the latest sample.
func (m *Monitor) UpdateUI(d *Dashboard) {
	m.Metrics.mu.RLock()
	defer m.Metrics.mu.RUnlock()

	UpdateCountersTable(d.Counters, m.Metrics.Stats, m.Metrics.LastUpdateTime)
	UpdateHealthTable(d.Health, m.Metrics)
	UpdateProgressGauge(d.Progress, m.Metrics.Stats, m.Metrics.Total)
	UpdateFailureList(d.Failures, m.Metrics.RecentFailures)
	UpdateCharts(d.Throughput, d.SuccessRate, m.Metrics.OutcomesPerSecond, m.Metrics.SuccessRateHistory)
}

// Run takes over the terminal and renders the dashboard until ctx is done
// or the user presses q or Ctrl-C.
func Run(ctx context.Context, m *Monitor) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialise the terminal: %w", err)
	}
	defer ui.Close()

	d := NewDashboard()
	d.Layout(ui.TerminalDimensions())

	render := func() {
		m.Sample(time.Now())
		m.UpdateUI(d)
		ui.Render(d.Items()...)
	}
	render()

	uiEvents := ui.PollEvents()
	ticker := time.NewTicker(UIUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.Layout(payload.Width, payload.Height)
				ui.Clear()
				ui.Render(d.Items()...)
			}
		case <-ticker.C:
			render()
		}
	}
}
