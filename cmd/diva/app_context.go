package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/diva/internal/app"
	"github.com/alexisbeaulieu97/diva/internal/config"
	"github.com/alexisbeaulieu97/diva/internal/infrastructure/events"
	"github.com/alexisbeaulieu97/diva/internal/infrastructure/host"
	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/plugin"
	"github.com/alexisbeaulieu97/diva/internal/plugins"
	"github.com/alexisbeaulieu97/diva/internal/pool"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/project"
	"github.com/alexisbeaulieu97/diva/internal/telemetry"
)

const logFileName = "diva.log"

// appContext holds everything a command needs to operate on a project.
type appContext struct {
	ctx      context.Context
	settings *config.Settings
	log      *logger.Logger
	events   *events.LoggingPublisher
	registry *plugin.Registry
	project  *project.Project
	pool     *pool.WorkerPool
	previews *pool.DiscardingPool
	tracer   ports.Tracer
	metrics  ports.MetricsCollector
	shutdown telemetry.Shutdown
	loops    []*host.Loop
	closers  []io.Closer
}

type openOptions struct {
	// logToFile sends log output to the data directory, used while a
	// terminal UI owns the screen.
	logToFile bool
}

func openApp(cmd *cobra.Command, flags *rootFlags, opts openOptions) (*appContext, error) {
	var settingsOpts []config.SettingsOption
	if flags.settingsPath != "" {
		settingsOpts = append(settingsOpts, config.WithSettingsFile(flags.settingsPath))
	}
	if flags.envFile != "" {
		settingsOpts = append(settingsOpts, config.WithEnvFile(flags.envFile))
	}
	settings, err := config.LoadSettings(settingsOpts...)
	if err != nil {
		return nil, newCommandError(cmd.Name(), "loading settings", err, "Check the settings file and DIVA_* environment variables.")
	}

	a := &appContext{settings: settings}

	level := settings.LogLevel
	if flags.verbose {
		level = "debug"
	}
	var writer io.Writer = cmd.ErrOrStderr()
	if opts.logToFile {
		f, err := openLogFile(flags.projectPath, settings.DataDir)
		if err != nil {
			return nil, newCommandError(cmd.Name(), "opening log file", err, "")
		}
		a.closers = append(a.closers, f)
		writer = f
	}
	log, err := logger.New(logger.Options{
		Level:         level,
		HumanReadable: settings.LogFormat == "console",
		Writer:        writer,
		Component:     "cli",
	})
	if err != nil {
		a.Close()
		return nil, newCommandError(cmd.Name(), "creating logger", err, "Use one of debug, info, warn or error as log level.")
	}
	a.log = log

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a.ctx = ports.WithCorrelationID(ctx, ports.GenerateCorrelationID())

	a.shutdown, err = telemetry.Setup(a.ctx, telemetry.Config{
		ServiceName:    "diva",
		ServiceVersion: version,
		Endpoint:       settings.Telemetry.Endpoint,
		Insecure:       settings.Telemetry.Insecure,
		SampleRate:     settings.Telemetry.SampleRate,
	}, log)
	if err != nil {
		a.Close()
		return nil, newCommandError(cmd.Name(), "setting up telemetry", err, "Check DIVA_TELEMETRY_ENDPOINT or unset it to disable export.")
	}
	a.tracer = telemetry.NewTracer(otel.GetTracerProvider())
	a.metrics = telemetry.NewMetrics(otel.GetMeterProvider(), log)

	a.registry = plugin.NewRegistry(log)
	if err := plugins.Register(a.registry); err != nil {
		a.Close()
		return nil, newCommandError(cmd.Name(), "registering processor services", err, "")
	}

	a.events = events.NewLoggingPublisher(log)
	a.project, err = project.Load(flags.projectPath, project.Options{
		Resolver: a.registry,
		DataDir:  settings.DataDir,
		Events:   a.events,
		Logger:   log,
	})
	if err != nil {
		a.Close()
		return nil, newCommandError(cmd.Name(), fmt.Sprintf("loading project %s", flags.projectPath), err, "Pass --project with the path of a valid project file.")
	}

	a.pool = pool.NewWorkerPool("processors", settings.Workers, settings.QueueSize)
	a.previews = pool.NewDiscardingPool()
	return a, nil
}

// service builds the application service reporting through h.
func (a *appContext) service(h ports.Host) (*app.Service, error) {
	if h.Events == nil {
		h.Events = a.events
	}
	return app.NewService(app.Options{
		Project:  a.project,
		Pool:     a.pool,
		Previews: a.previews,
		Host:     h,
		Logger:   a.log,
		Tracer:   a.tracer,
		Metrics:  a.metrics,
	})
}

// plainHost reports through the logger and runs callbacks on a headless
// loop drained by Close.
func (a *appContext) plainHost() ports.Host {
	loop := host.NewLoop()
	a.loops = append(a.loops, loop)
	return ports.Host{
		Status: host.LogStatus{Log: a.log},
		Errors: host.LogErrors{Log: a.log},
		UI:     loop,
		Busy:   &host.Busy{},
	}
}

// pages resolves the --page flag: every page when id is negative.
func (a *appContext) pages(operation string, id int) ([]*project.Page, error) {
	if id < 0 {
		pages := a.project.Pages()
		if len(pages) == 0 {
			return nil, newCommandError(operation, "selecting pages", errors.New("the project has no pages"), "Add one with 'diva pages add <image>'.")
		}
		return pages, nil
	}
	page, ok := a.project.Page(id)
	if !ok {
		return nil, newCommandError(operation, "selecting pages", fmt.Errorf("unknown page %d", id), "Run 'diva pages list' to see the page ids.")
	}
	return []*project.Page{page}, nil
}

func (a *appContext) Close() {
	for _, loop := range a.loops {
		loop.Close()
	}
	if a.previews != nil {
		a.previews.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.project != nil {
		a.project.Close()
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil && a.log != nil {
			a.log.Warn(context.Background(), "telemetry shutdown failed", "error", err)
		}
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}

func openLogFile(projectPath, dataDir string) (*os.File, error) {
	dir := dataDir
	if dir == "" {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(filepath.Dir(abs), project.DataDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func isTerminal(stream any) bool {
	if file, ok := stream.(*os.File); ok {
		return termIsTerminal(int(file.Fd()))
	}
	return false
}

var termIsTerminal = func(fd int) bool {
	return term.IsTerminal(fd)
}
