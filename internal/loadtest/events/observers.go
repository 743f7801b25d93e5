package events

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

const bannerWidth = 60

// RegisterLifecycleObservers subscribes the standard run observers:
//   - a start banner naming the target host and user count
//   - a stop summary with totals, average/max response time and RPS
//   - a one-line diagnostic for every failed request
//
// Banner and summary go to w; request diagnostics go to logger.
func RegisterLifecycleObservers(bus *Bus, w io.Writer, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bus.OnTestStart(func(ev StartEvent) {
		writeStartBanner(w, ev)
	})

	bus.OnTestStop(func(ev StopEvent) {
		writeStopSummary(w, ev)
	})

	bus.OnRequest(func(ev RequestEvent) {
		if ev.Err == nil {
			return
		}
		logger.Warn("request failed",
			zap.String("name", ev.Name),
			zap.String("method", ev.Method),
			zap.Error(ev.Err),
		)
	})
}

func writeStartBanner(w io.Writer, ev StartEvent) {
	users := "unknown"
	if !ev.ShapeDriven && ev.Users > 0 {
		users = fmt.Sprintf("%d", ev.Users)
	}

	rule := strings.Repeat("=", bannerWidth)
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintln(w, "Fleets IM load test starting")
	fmt.Fprintf(w, "Target host: %s\n", ev.Host)
	fmt.Fprintf(w, "Users:       %s\n", users)
	fmt.Fprintf(w, "%s\n\n", rule)
}

func writeStopSummary(w io.Writer, ev StopEvent) {
	rule := strings.Repeat("=", bannerWidth)
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintln(w, "Fleets IM load test finished")

	s := ev.Stats
	if s.TotalRequests > 0 {
		fmt.Fprintf(w, "Total requests:    %d\n", s.TotalRequests)
		fmt.Fprintf(w, "Failed requests:   %d\n", s.TotalFailures)
		fmt.Fprintf(w, "Avg response time: %.2fms\n", durationMillis(s.AvgResponseTime))
		fmt.Fprintf(w, "Max response time: %.2fms\n", durationMillis(s.MaxResponseTime))
		fmt.Fprintf(w, "RPS:               %.2f\n", s.RPS)
	}

	fmt.Fprintf(w, "%s\n\n", rule)
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
