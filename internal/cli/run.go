package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest/engine"
	"github.com/wesleyorama2/imload/internal/loadtest/events"
	"github.com/wesleyorama2/imload/internal/loadtest/metrics"
	"github.com/wesleyorama2/imload/internal/loadtest/output"
	"github.com/wesleyorama2/imload/internal/loadtest/report"
)

// ErrThresholdsFailed is returned when a run completes but a threshold was
// not met.
var ErrThresholdsFailed = errors.New("one or more thresholds failed")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [class...]",
		Short: "Run a load test against a Fleets server",
		Long: `Run simulated users against a Fleets IM server until the run time
elapses, the load shape finishes, or the process is interrupted.

Classes are im-user and admin-user; both run when none is named.

Fixed user count:
  imload run --host http://localhost:8080 --users 50 --spawn-rate 5 --run-time 5m

Stepped ramp (20 more users every minute for ten minutes):
  imload run --host http://localhost:8080 --shape step

Only standard users, with reports:
  imload run im-user --users 10 --run-time 1m --html report.html --json result.json`,
		ValidArgs: []string{config.ClassIMUser, config.ClassAdminUser},
		RunE:      runLoadTest,
	}

	addTargetFlags(cmd)
	cmd.Flags().IntP("users", "u", 0, fmt.Sprintf("Number of concurrent users (default %d)", config.DefaultUsers))
	cmd.Flags().Float64P("spawn-rate", "r", 0, fmt.Sprintf("Users started per second (default %g)", config.DefaultSpawnRate))
	cmd.Flags().StringP("run-time", "t", "", "Stop after this long, e.g. 300s or 5m (default: until interrupted)")
	cmd.Flags().String("shape", "", "Load shape overriding --users and --spawn-rate (step)")
	cmd.Flags().String("html", "", "Write an HTML report to this path")
	cmd.Flags().String("json", "", "Write the JSON result to this path")
	cmd.Flags().String("csv", "", "Write Locust-style CSV stats to files with this prefix")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9646")
	cmd.Flags().BoolP("quiet", "q", false, "Only print the final result")

	return cmd
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadTestConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	classes, err := userClasses(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	noColor, _ := cmd.Flags().GetBool("no-color")

	bus := events.NewBus()
	var banner io.Writer = out
	if cfg.Output.Quiet {
		banner = io.Discard
	}
	events.RegisterLifecycleObservers(bus, banner, logger)

	opts := []engine.Option{
		engine.WithBus(bus),
		engine.WithLogger(logger),
	}
	if cfg.Output.MetricsAddr != "" {
		opts = append(opts, engine.WithExporter(metrics.NewPrometheusExporter(cfg.Output.MetricsAddr)))
		logger.Info("serving prometheus metrics", zap.String("addr", cfg.Output.MetricsAddr))
	}

	eng, err := engine.New(cfg, classes, opts...)
	if err != nil {
		return err
	}

	console := output.NewConsoleOutput(output.ConsoleConfig{
		Writer:  out,
		Quiet:   cfg.Output.Quiet,
		NoColor: noColor,
	})

	runTime := time.Duration(cfg.RunTime)
	headerUsers := cfg.Users
	if cfg.Shape != nil {
		headerUsers = 0
	}
	console.PrintHeader(cfg.Name, cfg.Host, headerUsers, runTime)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		console.Watch(watchCtx, func() *output.LiveStats {
			m := eng.Metrics()
			if m == nil {
				return nil
			}
			return output.StatsFromSnapshot(m.Snapshot(), runTime, eng.TargetUsers())
		})
	}()

	result, runErr := eng.Run(ctx)
	stopWatch()
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("load test failed: %w", runErr)
	}

	console.PrintSummary(result)

	if err := writeReports(out, cfg.Output, result); err != nil {
		return err
	}

	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// writeReports writes the HTML, JSON and CSV outputs that cfg asks for.
func writeReports(w io.Writer, cfg config.OutputConfig, result *engine.TestResult) error {
	if cfg.HTML != "" {
		if err := ensureDir(cfg.HTML); err != nil {
			return err
		}
		if err := report.GenerateHTML(result, cfg.HTML); err != nil {
			return fmt.Errorf("failed to generate HTML report: %w", err)
		}
		fmt.Fprintf(w, "Report: %s\n", cfg.HTML)
	}

	if cfg.JSON != "" {
		if err := ensureDir(cfg.JSON); err != nil {
			return err
		}
		if err := report.WriteJSON(result, cfg.JSON); err != nil {
			return err
		}
		fmt.Fprintf(w, "Result: %s\n", cfg.JSON)
	}

	if cfg.CSV != "" {
		if err := ensureDir(cfg.CSV); err != nil {
			return err
		}
		paths, err := report.WriteCSV(result, cfg.CSV)
		if err != nil {
			return err
		}
		for _, path := range paths {
			fmt.Fprintf(w, "CSV: %s\n", path)
		}
	}

	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
