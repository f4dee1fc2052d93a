package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	eb "mesh-mac-simulation/internal/eventBus"
	"mesh-mac-simulation/internal/metrics"
	"mesh-mac-simulation/internal/mqtt"
	"mesh-mac-simulation/internal/server"
	"mesh-mac-simulation/internal/sim"
	"mesh-mac-simulation/internal/utils"
)

type runOptions struct {
	listen      string
	broker      string
	topic       string
	format      string
	metricsFile string
	monitor     time.Duration
	hold        bool
}

var runOpts runOptions

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	Long: `Runs the scenario to completion and writes the metrics file. With --listen
the event stream is served on /ws and frames can be injected on /nodeAPI/send;
with --mqtt health reports and drops are published to a broker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := loadScenario(cmd)
		if err != nil {
			return err
		}
		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		if runOpts.metricsFile != "" {
			sc.Logging.MetricsFile = runOpts.metricsFile
		}
		log, closer, err := utils.NewLogger(level, sc.Logging.LogDir)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()
		return runSimulation(ctx, sc, runOpts, log)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringVarP(&runOpts.listen, "listen", "l", "", "serve the websocket and HTTP API on this address, e.g. :8080")
	runCmd.Flags().StringVar(&runOpts.broker, "mqtt", "", "MQTT broker URL for telemetry, e.g. tcp://localhost:1883")
	runCmd.Flags().StringVar(&runOpts.topic, "mqtt-topic", "meshsim", "MQTT topic prefix")
	runCmd.Flags().StringVar(&runOpts.format, "mqtt-format", "json", "telemetry encoding: json or msgpack")
	runCmd.Flags().StringVarP(&runOpts.metricsFile, "metrics", "m", "", "metrics output file, overrides the scenario")
	runCmd.Flags().DurationVar(&runOpts.monitor, "monitor", 0, "log goroutine and heap usage at this interval")
	runCmd.Flags().BoolVar(&runOpts.hold, "hold", false, "keep serving after the run until interrupted")
}

func runSimulation(ctx context.Context, sc *sim.Scenario, opts runOptions, log *slog.Logger) error {
	format, err := mqtt.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	bus := eb.NewEventBus(log)
	coll := metrics.NewCollector()
	runner, err := sim.NewRunner(sc, bus, coll, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	// services end with the simulation
	svcCtx, cancelSvc := context.WithCancel(gctx)
	defer cancelSvc()

	if opts.broker != "" {
		m, err := mqtt.New(opts.broker, "meshsim-"+runner.ID().String(), log)
		if err != nil {
			return err
		}
		defer m.Disconnect()
		if err := m.Subscribe(opts.topic+"/send", 0, mqtt.ProcessSendFrame(svcCtx, runner, log)); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		tel := mqtt.NewTelemetry(m, opts.topic, runner.ID().String(), format, log)
		sub := bus.Subscribe()
		g.Go(func() error { return ignoreInterrupt(tel.Run(svcCtx, sub)) })
	}
	if opts.listen != "" {
		srv := server.New(bus, runner, coll, log)
		g.Go(func() error { return srv.Serve(svcCtx, opts.listen) })
	}
	if opts.monitor > 0 {
		g.Go(func() error {
			utils.MonitorResources(svcCtx, opts.monitor, log)
			return nil
		})
	}
	g.Go(func() error {
		defer cancelSvc()
		err := runner.Run(gctx)
		if interrupted(err) {
			log.Info("interrupted: shutting down early", "cause", err)
			return nil
		}
		if err == nil && opts.hold {
			log.Info("run complete, holding until interrupted")
			<-gctx.Done()
		}
		return err
	})

	err = g.Wait()
	bus.Close()

	// always flush metrics before exit
	if ferr := coll.Flush(sc.Logging.MetricsFile); ferr != nil {
		log.Error("flush metrics", "err", ferr)
		return errors.Join(err, ferr)
	}
	log.Info("run complete: stats written", "file", sc.Logging.MetricsFile)
	return err
}

// interrupted reports whether err only says the run was stopped early, by
// a signal or a deadline.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func ignoreInterrupt(err error) error {
	if interrupted(err) {
		return nil
	}
	return err
}
