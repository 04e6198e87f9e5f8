// Command undertone-daemon is Undertone's entrypoint: it loads
// configuration, wires the Server Runtime, persistent store, Command
// Applier, IPC server, and Event Loop together, and runs until asked to
// stop. Structured the way the corpus' cmd/root.go lays out a cobra root
// command over a typed settings struct, generalized here onto a single
// long-running daemon rather than a family of CLI subcommands.
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
	"github.com/spf13/viper"

	notifycmd "github.com/undertone-audio/undertone/cmd/notify"
	supportcmd "github.com/undertone-audio/undertone/cmd/support"
	"github.com/undertone-audio/undertone/internal/applier"
	"github.com/undertone-audio/undertone/internal/buildinfo"
	"github.com/undertone-audio/undertone/internal/conf"
	"github.com/undertone-audio/undertone/internal/diagnostics"
	appErrors "github.com/undertone-audio/undertone/internal/errors"
	"github.com/undertone-audio/undertone/internal/eventloop"
	"github.com/undertone-audio/undertone/internal/graphcache"
	"github.com/undertone-audio/undertone/internal/ipcserver"
	"github.com/undertone-audio/undertone/internal/logging"
	"github.com/undertone-audio/undertone/internal/metrics"
	"github.com/undertone-audio/undertone/internal/notify"
	"github.com/undertone-audio/undertone/internal/pwclient"
	"github.com/undertone-audio/undertone/internal/router"
	"github.com/undertone-audio/undertone/internal/store"
)

// version and buildDate are injected at build time via -ldflags, the way
// the corpus stamps its own binaries.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	build := &buildinfo.Context{Version: version, BuildDate: buildDate}

	root := &cobra.Command{
		Use:   "undertone-daemon",
		Short: "Undertone audio-routing daemon",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: XDG config location)")
	root.PersistentFlags().Bool("debug", false, "Enable debug-level logging")
	if err := viper.BindPFlag("daemon.debug", root.PersistentFlags().Lookup("debug")); err != nil {
		fmt.Fprintf(os.Stderr, "error binding flags: %v\n", err)
		os.Exit(1)
	}

	root.AddCommand(versionCommand(build))
	root.AddCommand(serveCommand(build, &configPath))
	root.AddCommand(supportcmd.Command(&configPath))
	root.AddCommand(notifycmd.Command(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCommand(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("undertone-daemon %s (built %s)\n", build.GetVersion(), build.GetBuildDate())
			return nil
		},
	}
}

func serveCommand(build *buildinfo.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if viper.GetBool("daemon.debug") {
				settings.Daemon.LogLevel = "debug"
			}
			return run(cmd.Context(), settings, build)
		},
	}
}

// run wires every component and blocks until ctx is canceled (SIGINT or
// SIGTERM) or an unrecoverable error occurs.
func run(parentCtx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	logging.Init()
	if lvl, err := parseLevel(settings.Daemon.LogLevel); err == nil {
		logging.SetLevel(lvl)
	}
	logger := logging.ForService("daemon")

	if err := appErrors.InitTelemetry(settings.Daemon.Sentry.DSN, build.GetVersion()); err != nil {
		logger.Warn("failed to initialize error telemetry", "err", err)
	}
	defer appErrors.FlushTelemetry()

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(settings.Daemon.Store.Driver, settings.Daemon.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", "err", err)
		}
	}()

	rtr := router.New()
	cache := graphcache.New()
	rt := pwclient.New(cache, settings.Daemon.TargetDeviceName, logger)

	socketPath := settings.SocketPath()
	ipcSrv := ipcserver.New(socketPath, logger)

	app, err := applier.New(st, rtr, cache, rt, settings.Daemon.TargetDeviceName, ipcSrv.Broadcast)
	if err != nil {
		return fmt.Errorf("initializing command applier: %w", err)
	}

	recorder := metrics.New()
	app.SetRecorder(recorder)

	loop := eventloop.New(rt, ipcSrv, app, cache)
	loop.SetRecorder(recorder)

	notifier := notify.New(firstNotifyURL(settings.Daemon.Notify.URLs))
	loop.SetNotifier(notifier, settings.Daemon.Notify.DeviceDisconnectThreshold)

	var diagSrv *diagnostics.Server
	if settings.Daemon.Metrics.Enabled {
		diagSrv = diagnostics.NewServer(settings.Daemon.Metrics.Addr, recorder.Registry(), loop)
		diagSrv.Start()
		logger.Info("diagnostics server listening", "addr", settings.Daemon.Metrics.Addr)
	}

	logger.Info("starting audio-server connection", "target_device", settings.Daemon.TargetDeviceName)
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("connecting to audio server: %w", err)
	}

	if err := ipcSrv.Start(ctx); err != nil {
		return fmt.Errorf("starting IPC server: %w", err)
	}
	logger.Info("IPC server listening", "socket", socketPath)

	runErr := loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping audio-server connection", "err", err)
	}
	if diagSrv != nil {
		if err := diagSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down diagnostics server", "err", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		appErrors.Report(runErr)
		return runErr
	}
	logger.Info("daemon stopped")
	return nil
}

// firstNotifyURL returns the first configured notification URL, or an
// empty string if none is configured — notify.New treats an empty URL as
// "disabled", which is the correct default.
func firstNotifyURL(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(level))
	return l, err
}
