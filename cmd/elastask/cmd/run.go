package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/elastask/internal/config"
	"github.com/hugo-lorenzo-mato/elastask/internal/dispatcher"
	"github.com/hugo-lorenzo-mato/elastask/internal/events"
	"github.com/hugo-lorenzo-mato/elastask/internal/logging"
	"github.com/hugo-lorenzo-mato/elastask/internal/web"
)

const (
	eventBufferSize = 256
	shutdownTimeout = 10 * time.Second
)

var (
	runWatch    bool
	runNoServer bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatch loop until interrupted",
	Long: `Poll the task store every polling interval and dispatch due tasks to the
Kibana nodes. Runs until SIGINT or SIGTERM; claims in flight are allowed to
finish before the process exits.

When server.enabled is set, a status API with a live event stream is served
alongside the loop.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false,
		"reload capacity, polling interval and max attempts when the config file changes")
	runCmd.Flags().BoolVar(&runNoServer, "no-server", false,
		"do not start the status API even if server.enabled is set")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	deps, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("closing task store", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.New(eventBufferSize)
	defer bus.Close()

	d, err := deps.newDispatcher(dispatcher.WithEventBus(bus))
	if err != nil {
		return err
	}

	if runWatch {
		if loader.Watch(reloadLimits(d, bus, logger, loader.ConfigFile())) {
			logger.Info("watching config file", "path", loader.ConfigFile())
		} else {
			logger.Warn("--watch ignored: no config file in use")
		}
	}

	return serve(ctx, cfg, d, bus, logger)
}

// serve runs the dispatch loop and, when enabled, the status API until ctx
// is cancelled, then waits for detached claims to finish.
func serve(ctx context.Context, cfg *config.Config, d *dispatcher.Dispatcher, bus *events.EventBus, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})

	if cfg.Server.Enabled && !runNoServer {
		srvCfg := web.DefaultConfig()
		srvCfg.Host = cfg.Server.Host
		srvCfg.Port = cfg.Server.Port
		srv := web.New(srvCfg, d, logger.Logger, web.WithEventBus(bus), web.WithVersion(appVersion))
		if err := srv.Start(); err != nil {
			cancel()
			_ = g.Wait()
			d.Wait()
			return fmt.Errorf("starting status server: %w", err)
		}
		logger.Info("status server listening", "addr", srv.Addr())

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("stopping status server: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	logger.Info("waiting for in-flight claims")
	d.Wait()
	return err
}

// reloadLimits returns the config watcher callback. Only the limits the
// dispatcher can change while running are applied; other edits need a
// restart.
func reloadLimits(d *dispatcher.Dispatcher, bus *events.EventBus, logger *logging.Logger, path string) func(*config.Config, error) {
	return func(cfg *config.Config, err error) {
		if err != nil {
			logger.Error("config reload failed, keeping current settings", "path", path, "error", err)
			return
		}
		if err := config.ValidateConfig(cfg); err != nil {
			logger.Error("reloaded config is invalid, keeping current settings", "path", path, "error", err)
			return
		}
		limits := limitsOf(cfg)
		d.SetLimits(limits)
		for _, w := range cfg.Warnings {
			logger.Warn("ignored malformed setting", "warning", w)
		}
		logger.Info("config reloaded",
			"capacity", limits.Capacity,
			"polling_interval", limits.PollingInterval,
			"max_attempts", limits.MaxAttempts)
		bus.Publish(events.NewConfigReloadedEvent(path, limits.Capacity, limits.PollingInterval, limits.MaxAttempts, cfg.Warnings))
	}
}
