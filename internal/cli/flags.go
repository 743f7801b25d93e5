package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest"
	"github.com/wesleyorama2/imload/internal/loadtest/imuser"
)

// addTargetFlags registers the flags shared by the commands that run users.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Test configuration file (YAML or JSON)")
	cmd.Flags().String("host", "", fmt.Sprintf("Fleets server base URL (default %s)", config.DefaultHost))
	cmd.Flags().Uint64("seed", 0, "Random seed for reproducible user behavior (0 for random)")
	cmd.Flags().String("password", "", "Password of the test accounts")
}

// loadTestConfig reads --config, applies the flags that were set on the
// command line and restricts the run to the classes named in args.
func loadTestConfig(cmd *cobra.Command, args []string) (*config.TestConfig, error) {
	cfg := &config.TestConfig{}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	config.ApplyDefaults(cfg)
	cfg.SelectClasses(args)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set into cfg. Flags that are not
// defined on cmd are skipped.
func applyFlags(cmd *cobra.Command, cfg *config.TestConfig) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		return flags.Lookup(name) != nil && flags.Changed(name)
	}

	if changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if changed("password") {
		cfg.IMUser.Password, _ = flags.GetString("password")
	}
	if changed("users") {
		cfg.Users, _ = flags.GetInt("users")
	}
	if changed("spawn-rate") {
		cfg.SpawnRate, _ = flags.GetFloat64("spawn-rate")
	}
	if changed("run-time") {
		s, _ := flags.GetString("run-time")
		d, err := config.ParseDurationString(s)
		if err != nil {
			return fmt.Errorf("invalid --run-time: %w", err)
		}
		cfg.RunTime = config.Duration(d)
	}
	if changed("shape") {
		kind, _ := flags.GetString("shape")
		switch kind {
		case "", "none":
			cfg.Shape = nil
		default:
			if cfg.Shape == nil {
				cfg.Shape = &config.ShapeConfig{}
			}
			cfg.Shape.Type = kind
		}
	}
	if changed("html") {
		cfg.Output.HTML, _ = flags.GetString("html")
	}
	if changed("json") {
		cfg.Output.JSON, _ = flags.GetString("json")
	}
	if changed("csv") {
		cfg.Output.CSV, _ = flags.GetString("csv")
	}
	if changed("metrics-addr") {
		cfg.Output.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if changed("quiet") {
		cfg.Output.Quiet, _ = flags.GetBool("quiet")
	}
	return nil
}

// userClasses builds the user classes selected in cfg.
func userClasses(cfg *config.TestConfig) ([]loadtest.UserClass, error) {
	classes, err := imuser.Classes(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build user classes: %w", err)
	}
	return classes, nil
}
