// Package output renders load test progress and results on the console.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/imload/internal/loadtest/engine"
	"github.com/wesleyorama2/imload/internal/loadtest/metrics"
)

// ANSI cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"

	ruleWidth = 56
	boxWidth  = 56
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Elapsed time.Duration

	// RunTime is the configured run time; 0 when the run is open-ended
	RunTime time.Duration

	ActiveUsers int
	TargetUsers int

	CurrentRPS    float64
	TotalRequests int64
	Failures      int64
	ErrorRate     float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	Phase string
}

// Progress returns the completed fraction of the run, or -1 when open-ended.
func (s *LiveStats) Progress() float64 {
	if s.RunTime <= 0 {
		return -1
	}
	p := float64(s.Elapsed) / float64(s.RunTime)
	if p > 1 {
		p = 1
	}
	return p
}

// StatsFromSnapshot creates LiveStats from a metrics snapshot.
func StatsFromSnapshot(snap *metrics.Snapshot, runTime time.Duration, targetUsers int) *LiveStats {
	if snap == nil {
		return &LiveStats{RunTime: runTime, TargetUsers: targetUsers, Phase: "initializing"}
	}

	return &LiveStats{
		Elapsed:       snap.Elapsed,
		RunTime:       runTime,
		ActiveUsers:   snap.ActiveUsers,
		TargetUsers:   targetUsers,
		CurrentRPS:    snap.RPS,
		TotalRequests: snap.TotalRequests,
		Failures:      snap.FailedRequests,
		ErrorRate:     snap.ErrorRate,
		LatencyP95:    snap.Latency.P95,
		LatencyAvg:    snap.Latency.Mean,
		Phase:         string(snap.CurrentPhase),
	}
}

// ConsoleConfig contains configuration for ConsoleOutput.
type ConsoleConfig struct {
	Writer         io.Writer
	UpdateInterval time.Duration
	Quiet          bool
	NoColor        bool
	ForceColors    bool
	ForceTTY       bool
}

// ConsoleOutput manages console output during and after a run.
//
// On a terminal the live statistics are redrawn in place; otherwise one
// status line is printed per update.
type ConsoleOutput struct {
	writer         io.Writer
	updateInterval time.Duration
	isTTY          bool
	quiet          bool
	colors         *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(cfg ConsoleConfig) *ConsoleOutput {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = time.Second
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	useColors := !cfg.NoColor && (cfg.ForceColors || (isTTY && supportsColors()))

	colors := DefaultColorScheme()
	colors.SetEnabled(useColors)

	return &ConsoleOutput{
		writer:         cfg.Writer,
		updateInterval: cfg.UpdateInterval,
		isTTY:          isTTY,
		quiet:          cfg.Quiet,
		colors:         colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *ConsoleOutput) PrintHeader(name, host string, users int, runTime time.Duration) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	usersInfo := "shape-driven"
	if users > 0 {
		usersInfo = fmt.Sprintf("%d", users)
	}
	runInfo := "until interrupted"
	if runTime > 0 {
		runInfo = formatDuration(runTime)
	}

	rule := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(name), "Running"))
	c.writeln(rule)
	c.writeln(fmt.Sprintf("Host:     %s", c.colors.Value.Sprint(host)))
	c.writeln(fmt.Sprintf("Users:    %s", c.colors.Value.Sprint(usersInfo)))
	c.writeln(fmt.Sprintf("Run time: %s", c.colors.Value.Sprint(runInfo)))
	c.writeln("")
}

// Watch renders stats from source every update interval until ctx is done.
// source may return nil while no run is in progress.
func (c *ConsoleOutput) Watch(ctx context.Context, source func() *LiveStats) {
	if c.quiet {
		return
	}

	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := source()
			if stats == nil {
				continue
			}
			if c.isTTY {
				c.Update(stats)
			} else {
				c.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// Update redraws the live display with new statistics.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// clearLive erases the previous live display. Callers hold c.mu.
func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}

	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	if p := stats.Progress(); p >= 0 {
		lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Progress.Sprint(renderProgressBar(p, 40)),
			c.colors.Title.Sprintf("%.0f%%", p*100),
			c.colors.Dim.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.RunTime))))
	} else {
		lines = append(lines, fmt.Sprintf("Elapsed:  %s", c.colors.Dim.Sprint(formatDuration(stats.Elapsed))))
	}
	lines = append(lines, fmt.Sprintf("Phase:    %s", c.colors.Phase.Sprint(stats.Phase)))
	lines = append(lines, "")

	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	target := "-"
	if stats.TargetUsers > 0 {
		target = fmt.Sprintf("%d", stats.TargetUsers)
	}
	usersStr := fmt.Sprintf("Users:   %s / %s", c.colors.Value.Sprintf("%d", stats.ActiveUsers), target)
	reqsStr := fmt.Sprintf("Requests:    %s", c.colors.Value.Sprint(formatNumber(stats.TotalRequests)))
	lines = append(lines, c.formatBoxRow(usersStr, reqsStr))

	errColor := c.colors.rateColor(stats.ErrorRate)
	rpsStr := fmt.Sprintf("RPS:     %s", c.colors.Success.Sprintf("%.1f", stats.CurrentRPS))
	errStr := fmt.Sprintf("Failures:    %s (%s)",
		errColor.Sprintf("%d", stats.Failures),
		errColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rpsStr, errStr))

	p95Str := fmt.Sprintf("P95:     %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyP95)))
	avgStr := fmt.Sprintf("Avg:         %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyAvg)))
	lines = append(lines, c.formatBoxRow(p95Str, avgStr))

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))

	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *ConsoleOutput) formatBoxRow(left, right string) string {
	colWidth := (boxWidth - 6) / 2

	leftPadding := colWidth - visibleLen(left)
	if leftPadding < 0 {
		leftPadding = 0
	}
	rightPadding := colWidth - visibleLen(right)
	if rightPadding < 0 {
		rightPadding = 0
	}

	border := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border, left, strings.Repeat(" ", leftPadding),
		border, right, strings.Repeat(" ", rightPadding),
		border)
}

// PrintNonInteractiveUpdate prints a one-line status update. Used when the
// output is not a terminal (piped to a file or CI).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s | Users: %d | Reqs: %d | RPS: %.1f | Failures: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Phase,
		stats.ActiveUsers,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Failures,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the final summary: totals, latency distribution,
// per-request statistics and thresholds.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	status := c.colors.Success.Sprint("Completed ✓")
	if !result.Passed {
		status = c.colors.Error.Sprint("Failed ✗")
	}

	rule := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), status))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Stopped:       %s", result.StopReason))
	c.writeln(fmt.Sprintf("Peak users:    %s", c.colors.Value.Sprintf("%d", result.PeakUsers)))

	snap := result.Metrics
	if snap != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colors.Value.Sprint(formatNumber(snap.TotalRequests))))
		successRate := 1.0 - snap.ErrorRate
		c.writeln(fmt.Sprintf("Success Rate:  %s", c.colors.rateColor(snap.ErrorRate).Sprintf("%.1f%%", successRate*100)))
		c.writeln(fmt.Sprintf("RPS:           %s", c.colors.Value.Sprintf("%.2f", snap.OverallRPS)))
		c.writeln("")

		c.writeln(c.colors.Label.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(snap.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(snap.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(snap.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(snap.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(snap.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(snap.Latency.Max)))
	}
	c.writeln("")

	if len(result.Requests) > 0 {
		c.writeln(c.colors.Label.Sprint("Requests:"))
		for _, line := range RequestTable(result.Requests, snap) {
			c.writeln("  " + line)
		}
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Label.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := c.colors.Success.Sprint("✓")
			if !t.Passed {
				mark = c.colors.Error.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

// RequestTable formats per-request statistics as aligned text rows, with an
// aggregated row computed from snap when it is not nil.
func RequestTable(requests []metrics.RequestStats, snap *metrics.Snapshot) []string {
	nameWidth := len("Aggregated")
	for _, r := range requests {
		if n := len(r.Method) + 1 + len(r.Name); n > nameWidth {
			nameWidth = n
		}
	}

	row := func(name string, reqs, fails int64, avg, min, max, med time.Duration, rps float64) string {
		failRate := 0.0
		if reqs > 0 {
			failRate = float64(fails) / float64(reqs) * 100
		}
		return fmt.Sprintf("%-*s %8s %12s %8s %8s %8s %8s %8.2f",
			nameWidth, name,
			formatNumber(reqs),
			fmt.Sprintf("%d(%.1f%%)", fails, failRate),
			formatDurationShort(avg),
			formatDurationShort(min),
			formatDurationShort(max),
			formatDurationShort(med),
			rps)
	}

	lines := []string{
		fmt.Sprintf("%-*s %8s %12s %8s %8s %8s %8s %8s",
			nameWidth, "Name", "# reqs", "# fails", "Avg", "Min", "Max", "Med", "req/s"),
		strings.Repeat("-", nameWidth+8*6+12+7),
	}
	for _, r := range requests {
		lines = append(lines, row(r.Method+" "+r.Name, r.Requests, r.Failures,
			r.Latency.Mean, r.Latency.Min, r.Latency.Max, r.Latency.P50, r.RPS))
	}
	if snap != nil {
		lines = append(lines, strings.Repeat("-", nameWidth+8*6+12+7))
		lines = append(lines, row("Aggregated", snap.TotalRequests, snap.FailedRequests,
			snap.Latency.Mean, snap.Latency.Min, snap.Latency.Max, snap.Latency.P50, snap.OverallRPS))
	}
	return lines
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}
