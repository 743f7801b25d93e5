package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest/events"
	"github.com/wesleyorama2/imload/internal/loadtest/worker"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker [class...]",
		Short: "Run as a worker of a Locust master",
		Long: `Connect to a Locust master and run users on its behalf. The master
decides how many users run and collects the request statistics; each
user class is a task weighted by its class weight.

  locust --master -f locustfile.py
  imload worker --host http://localhost:8080 --master-host 127.0.0.1`,
		ValidArgs: []string{config.ClassIMUser, config.ClassAdminUser},
		RunE:      runWorker,
	}

	addTargetFlags(cmd)
	cmd.Flags().String("master-host", "127.0.0.1", "Locust master host")
	cmd.Flags().Int("master-port", worker.DefaultMasterPort, "Locust master port")

	return cmd
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	masterHost, _ := cmd.Flags().GetString("master-host")
	masterPort, _ := cmd.Flags().GetInt("master-port")

	bus := events.NewBus()
	events.RegisterLifecycleObservers(bus, cmd.OutOrStdout(), logger)

	w, err := worker.New(cfg, classes, worker.Config{
		MasterHost: masterHost,
		MasterPort: masterPort,
		Bus:        bus,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return w.Run(ctx)
}
