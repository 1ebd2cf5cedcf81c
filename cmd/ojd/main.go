// Command ojd is the daemon: it recovers state from the write-ahead log,
// watches the runbook file for changes, and drives pipelines to completion
// over a UNIX-domain socket until it receives a shutdown request or signal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/alfredjeanlab/oj/internal/adapters/notify"
	"github.com/alfredjeanlab/oj/internal/adapters/repo"
	"github.com/alfredjeanlab/oj/internal/adapters/session"
	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/coordination"
	"github.com/alfredjeanlab/oj/internal/daemon"
	"github.com/alfredjeanlab/oj/internal/executor"
	"github.com/alfredjeanlab/oj/internal/fsutil"
	"github.com/alfredjeanlab/oj/internal/id"
	"github.com/alfredjeanlab/oj/internal/logging"
	"github.com/alfredjeanlab/oj/internal/metrics"
	"github.com/alfredjeanlab/oj/internal/monitor"
	"github.com/alfredjeanlab/oj/internal/runbook"
	"github.com/alfredjeanlab/oj/internal/runtime"
	"github.com/alfredjeanlab/oj/internal/scheduler"
	"github.com/alfredjeanlab/oj/internal/tracing"
	"github.com/alfredjeanlab/oj/internal/wal"
)

// CLI is the daemon's command-line interface: a single default Serve
// command plus the global flags shared with the client.
type CLI struct {
	Serve ServeCmd `cmd:"" default:"1" help:"Run the daemon until signalled to stop."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." env:"OJ_LOG_LEVEL"`
	LogFile   string `help:"Log file path (empty = stderr)." env:"OJ_LOG_FILE"`
	LogFormat string `help:"Log format (simple, verbose, or text)." env:"OJ_LOG_FORMAT"`
}

// ServeCmd runs the daemon's main loop to completion.
type ServeCmd struct {
	ProjectRoot string `name:"project-root" help:"Project root; state lives under <root>/.oj." type:"path" env:"OJ_PROJECT_ROOT"`
	Runbook     string `help:"Path to the runbook TOML file." default:"runbook.toml"`
	MetricsAddr string `name:"metrics-addr" help:"Address to serve Prometheus metrics on (empty disables it)." env:"OJ_METRICS_ADDR"`
	OtelExporter string `name:"otel-exporter" help:"Tracing exporter: otlp, stdout, or empty to disable." env:"OJ_OTEL_EXPORTER"`
	MachineID   string `name:"machine-id" help:"Identifier embedded in WAL entries." default:"ojd"`
}

func main() {
	_ = godotenv.Load(".env.local", ".env")

	var cli CLI
	kctx := kong.Parse(&cli, kong.Name("ojd"), kong.Description("Workflow orchestrator daemon."))
	if err := kctx.Run(&cli); err != nil {
		slog.Error("ojd: fatal", "error", err)
		os.Exit(1)
	}
}

// initLoggerFromCLI resolves the effective log level/file/format by CLI
// flag, falling back to environment variable, falling back to a default,
// and initializes the process-wide logger accordingly.
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (cleanup func(), err error) {
	logLevel := cliLogLevel
	if logLevel == "" {
		logLevel = os.Getenv("OJ_LOG_LEVEL")
	}
	if logLevel == "" {
		logLevel = "info"
	}

	logFile := cliLogFile
	if logFile == "" {
		logFile = os.Getenv("OJ_LOG_FILE")
	}

	logFormat := cliLogFormat
	if logFormat == "" {
		logFormat = os.Getenv("OJ_LOG_FORMAT")
	}
	if logFormat == "" {
		logFormat = "simple"
	}

	level := logging.ParseLevel(logLevel)

	var output *os.File
	if logFile != "" {
		f, cleanupFn, openErr := logging.OpenLogFile(logFile)
		if openErr != nil {
			return nil, fmt.Errorf("ojd: open log file: %w", openErr)
		}
		output = f
		cleanup = cleanupFn
	} else {
		output = os.Stderr
	}

	logging.Init(level, output, logFormat)
	return cleanup, nil
}

func (c *ServeCmd) Run(cli *CLI) error {
	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("ojd: shutting down")
		cancel()
	}()

	tracingShutdown, err := tracing.Init(ctx, c.OtelExporter)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := tracingShutdown(shutdownCtx); err != nil {
			slog.Error("ojd: tracer shutdown failed", "error", err)
		}
	}()

	if c.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(c.MetricsAddr); err != nil {
				slog.Error("ojd: metrics server exited", "error", err)
			}
		}()
	}

	projectRoot := c.ProjectRoot
	if projectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			projectRoot = wd
		}
	}

	stateDir, err := fsutil.EnsureStateDir(projectRoot)
	if err != nil {
		return fmt.Errorf("ojd: %w", err)
	}

	store, err := wal.Open(fsutil.WALDirPath(stateDir), c.MachineID)
	if err != nil {
		return fmt.Errorf("ojd: %w", err)
	}
	defer store.Close()

	runbookPath := c.Runbook
	if !filepath.IsAbs(runbookPath) {
		runbookPath = filepath.Join(projectRoot, runbookPath)
	}
	registry, err := runbook.NewRegistry(runbookPath)
	if err != nil {
		return fmt.Errorf("ojd: %w", err)
	}
	watchStop := make(chan struct{})
	defer close(watchStop)
	if err := registry.Watch(watchStop); err != nil {
		return fmt.Errorf("ojd: watch runbook: %w", err)
	}

	sched := scheduler.New()
	sessions := session.NewTmuxAdapter("oj-")
	repoAdapter := repo.NewGitAdapter(projectRoot)
	notifier := buildNotifier()
	exec := executor.New(store, sched, sessions, repoAdapter, notifier, clock.System{}, projectRoot)
	mon := monitor.New(sessions)
	coord := coordination.NewManager()
	maint := coordination.NewMaintenanceTask(coordination.DefaultMaintenanceConfig(), clock.System{})

	rt := runtime.New(store, sched, registry, exec, mon, coord, maint, clock.System{}, id.UUID{})

	d, err := daemon.New(stateDir, rt)
	if err != nil {
		return fmt.Errorf("ojd: %w", err)
	}

	slog.Info("ojd: listening", "socket", fsutil.SocketPath(stateDir), "pid", os.Getpid())
	return d.Serve(ctx)
}

func buildNotifier() notify.Adapter {
	if _, err := os.Stat("/usr/bin/osascript"); err == nil {
		return notify.NewOsascriptNotifier("oj")
	}
	return notify.Noop{}
}

const shutdownTimeout = 5 * time.Second
