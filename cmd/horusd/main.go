// Command horusd is a small demo host process that wires a Scheduler, a
// handful of example nodes, and the dashboard HTTP/WS boundary from a YAML
// run manifest. It is not the project-wide launcher named out of scope in
// the runtime core's own spec: it exists only to exercise the core
// end-to-end.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/horus-robotics/horus/internal/config"
	dashboard "github.com/horus-robotics/horus/internal/interfaces/http"
	"github.com/horus-robotics/horus/internal/node"
	"github.com/horus-robotics/horus/internal/scheduler"
	"github.com/horus-robotics/horus/internal/telemetry"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "horusd",
		Short:   "HORUS runtime core demo host",
		Version: version,
		Long: `horusd wires a fixed-rate scheduler, a topic bus, and a handful of
demo nodes from a YAML run manifest, and serves a read-only dashboard
boundary over HTTP and websocket.`,
	}

	var manifestPath string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(manifestPath)
		},
	}
	runCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "manifest.yaml", "path to the run manifest")

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate a run manifest without starting the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := config.Load(manifestPath)
			if err != nil {
				return err
			}
			log.Info().
				Str("scheduler", m.Scheduler.Name).
				Float64("target_hz", m.Scheduler.TargetHz).
				Int("nodes", len(m.Nodes)).
				Msg("manifest is valid")
			return nil
		},
	}
	doctorCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "manifest.yaml", "path to the run manifest")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the horusd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(runCmd, doctorCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("horusd exited with an error")
	}
}

func runManifest(path string) error {
	m, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("horusd: %w", err)
	}

	ring := telemetry.NewRing(m.Telemetry.RingSize)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	sched := scheduler.New(m.Scheduler.Name,
		scheduler.WithTargetHz(m.Scheduler.TargetHz),
		scheduler.WithErrorThreshold(m.Scheduler.ErrorThreshold),
		scheduler.WithRing(ring),
		scheduler.WithMetrics(metrics),
	)

	for _, nc := range m.Nodes {
		priority, err := nc.ParsePriority()
		if err != nil {
			return err
		}
		impl, err := demoNodeByName(nc.Name)
		if err != nil {
			return err
		}
		if _, err := sched.Add(nc.Name, priority, nc.Logging, impl); err != nil {
			return fmt.Errorf("horusd: registering node %q: %w", nc.Name, err)
		}
	}

	srv, err := dashboard.NewServer(dashboard.ServerConfig{
		Addr:         m.Dashboard.Listen,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, sched)
	if err != nil {
		return fmt.Errorf("horusd: starting dashboard: %w", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("dashboard server stopped")
		}
	}()

	unbind := scheduler.BindSignals(sched, os.Interrupt)
	defer unbind()

	log.Info().Str("run_id", sched.RunID().String()).Msg("scheduler starting")
	err = sched.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("dashboard server shutdown")
	}

	return err
}

// demoNodeByName is the small, fixed set of example nodes this demo binary
// ships with; a run manifest names which of them to register and in what
// order.
func demoNodeByName(name string) (node.Capability, error) {
	switch name {
	case "producer":
		return &VelocityProducer{}, nil
	case "consumer":
		return &VelocityConsumer{}, nil
	case "watchdog":
		return &Watchdog{}, nil
	default:
		return nil, fmt.Errorf("horusd: unknown demo node %q", name)
	}
}
