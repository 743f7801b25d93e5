package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest/shape"
)

func newShapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shape",
		Short: "Print the schedule of the step load shape",
		Long: `Print when the step load shape changes its target user count and when
it ends, without sending any requests.

  imload shape --step-time 30s --step-load 10 --time-limit 5m`,
		Args: cobra.NoArgs,
		RunE: runShape,
	}

	cmd.Flags().StringP("config", "c", "", "Test configuration file with a shape section")
	cmd.Flags().String("step-time", "", fmt.Sprintf("Length of each step (default %s)", config.DefaultStepTime))
	cmd.Flags().Int("step-load", 0, fmt.Sprintf("Users added per step (default %d)", config.DefaultStepLoad))
	cmd.Flags().Float64("spawn-rate", 0, fmt.Sprintf("Spawn rate while stepping (default %g)", config.DefaultShapeSpawnRate))
	cmd.Flags().String("time-limit", "", fmt.Sprintf("Stop the shape after this long (default %s)", config.DefaultTimeLimit))

	return cmd
}

func runShape(cmd *cobra.Command, args []string) error {
	shapeCfg := &config.ShapeConfig{Type: config.ShapeStep}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		if cfg.Shape != nil {
			shapeCfg = cfg.Shape
		}
	}

	flags := cmd.Flags()
	for _, name := range []string{"step-time", "time-limit"} {
		if !flags.Changed(name) {
			continue
		}
		s, _ := flags.GetString(name)
		d, err := config.ParseDurationString(s)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", name, err)
		}
		if name == "step-time" {
			shapeCfg.StepTime = config.Duration(d)
		} else {
			shapeCfg.TimeLimit = config.Duration(d)
		}
	}
	if flags.Changed("step-load") {
		shapeCfg.StepLoad, _ = flags.GetInt("step-load")
	}
	if flags.Changed("spawn-rate") {
		shapeCfg.SpawnRate, _ = flags.GetFloat64("spawn-rate")
	}

	s, err := shape.FromConfig(shapeCfg)
	if err != nil {
		return err
	}

	step, ok := s.(*shape.StepLoadShape)
	if !ok {
		return fmt.Errorf("unsupported shape type: %s", shapeCfg.Type)
	}

	points := shape.Schedule(s, step.StepTime, step.TimeLimit)
	printSchedule(cmd.OutOrStdout(), points, step.TimeLimit)
	return nil
}

// printSchedule writes one row per target change. The shape stops as soon as
// the elapsed time exceeds limit.
func printSchedule(w io.Writer, points []shape.Point, limit time.Duration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tUSERS\tSPAWN RATE")
	stopped := false
	for _, p := range points {
		if p.Users < 0 {
			fmt.Fprintf(tw, "%s\tstop\t\n", p.At)
			stopped = true
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%g/s\n", p.At, p.Users, p.SpawnRate)
	}
	if !stopped {
		fmt.Fprintf(tw, "after %s\tstop\t\n", limit)
	}
	_ = tw.Flush()
}
