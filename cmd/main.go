// trafficpilot drives disposable, human-paced browser sessions against a
// video platform or a website and streams their lifecycle to observers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"trafficpilot/internal/api"
	"trafficpilot/internal/browser"
	"trafficpilot/internal/config"
	"trafficpilot/internal/metrics"
	"trafficpilot/internal/models"
	"trafficpilot/internal/orchestrator"
	"trafficpilot/internal/stealth"
	"trafficpilot/internal/status"
	"trafficpilot/internal/storage"
	"trafficpilot/internal/strategy"
)

// Version info
const (
	AppName    = "trafficpilot"
	AppVersion = "1.0.0"
)

// Command line flags
var (
	configPath = flag.String("config", "./config/config.yaml", "Path to config file")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	headless   = flag.Bool("headless", false, "Run in headless mode")
)

// How often finished session statuses are swept
const pruneInterval = time.Minute

// App holds all application dependencies
type App struct {
	config  *config.Config
	logger  zerolog.Logger
	logFile *lumberjack.Logger

	ctx    context.Context
	cancel context.CancelFunc

	db        *storage.Database
	statuses  *storage.StatusStore
	hub       *status.Hub
	recorder  *status.Recorder
	nats      *status.NATSForwarder
	publisher status.Publisher
	metrics   *metrics.Metrics
	stealth   *stealth.Controller
	browser   *browser.Controller
	registry  *strategy.Registry
	service   *orchestrator.Service
}

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	if command == "help" {
		printUsage()
		return
	}

	printBanner()

	app, err := NewApp()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer app.Cleanup()

	app.setupSignalHandler()

	var cmdErr error
	switch command {
	case "serve":
		cmdErr = app.cmdServe()
	case "run":
		cmdErr = app.cmdRun(args[1:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		app.Cleanup()
		os.Exit(1)
	}

	if cmdErr != nil {
		app.logger.Error().Err(cmdErr).Msg("Command failed")
		app.Cleanup()
		os.Exit(1)
	}
}

// NewApp creates and initializes the application
func NewApp() (*App, error) {
	app := &App{}
	app.ctx, app.cancel = context.WithCancel(context.Background())

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.config = cfg

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *headless {
		cfg.Browser.Headless = true
	}

	app.setupLogging()
	app.logger.Info().Str("version", AppVersion).Msg("Starting application")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db
	app.statuses = storage.NewStatusStore(db)

	app.metrics = metrics.New()

	app.hub = status.NewHub()
	app.recorder = status.NewRecorder(app.statuses, app.logger)
	publishers := status.Fanout{app.hub, app.recorder}

	if cfg.Events.NATSURL != "" {
		fwd, err := status.NewNATSForwarder(status.NATSConfig{
			URL:     cfg.Events.NATSURL,
			Subject: cfg.Events.NATSSubject,
		}, app.logger)
		if err != nil {
			app.logger.Warn().Err(err).Msg("NATS forwarding disabled")
		} else {
			app.nats = fwd
			publishers = append(publishers, fwd)
		}
	}
	app.publisher = publishers

	app.stealth = stealth.NewController(stealth.Options{
		MouseSpeedMin: cfg.Stealth.MouseSpeedMin,
		MouseSpeedMax: cfg.Stealth.MouseSpeedMax,
		Overshoot:     cfg.Stealth.EnableOvershoot,
	}, app.logger)
	app.stealth.Scroll().Observe(app.metrics.Scrolled)

	app.registry = strategy.Default(&strategy.Kit{
		Stealth:  app.stealth,
		Rand:     app.stealth.Rand(),
		Settings: strategy.SettingsFrom(cfg.Session),
		Metrics:  app.metrics,
		Logger:   app.logger,
	})
	if missing := app.registry.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("no strategy registered for targets %v", missing)
	}

	app.browser = browser.NewController(&cfg.Browser, app.stealth, app.logger)

	orch := orchestrator.New(app.browser, app.registry, app.publisher, app.metrics, app.logger)
	app.service = orchestrator.NewService(orch, app.statuses, cfg.Session.MaxConcurrent, app.logger)

	app.logger.Info().
		Interface("targets", app.registry.Targets()).
		Int("maxConcurrent", cfg.Session.MaxConcurrent).
		Msg("Application initialized")
	return app, nil
}

// setupLogging configures the console logger and the optional rotated JSON file
func (app *App) setupLogging() {
	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	if app.config.LogFile != "" {
		app.logFile = &lumberjack.Logger{
			Filename:   app.config.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		output = zerolog.MultiLevelWriter(output, app.logFile)
	}

	level := zerolog.InfoLevel
	switch app.config.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	app.logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	log.Logger = app.logger
}

// setupSignalHandler cancels the application context on shutdown signals
func (app *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			app.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			app.cancel()
		case <-app.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

// Cleanup releases all resources. Safe to call more than once.
func (app *App) Cleanup() {
	if app.cancel != nil {
		app.cancel()
	}

	if app.service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := app.service.Shutdown(ctx); err != nil {
			app.logger.Warn().Err(err).Msg("Sessions did not stop in time")
		}
		cancel()
		app.service = nil
	}

	if app.hub != nil {
		app.hub.Close()
		app.hub = nil
	}

	if app.recorder != nil {
		app.recorder.Close()
		app.recorder = nil
	}

	if app.nats != nil {
		if err := app.nats.Close(); err != nil {
			app.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
		app.nats = nil
	}

	if app.db != nil {
		app.db.Close()
		app.db = nil
	}

	if app.logFile != nil {
		app.logFile.Close()
		app.logFile = nil
	}
}

// cmdServe runs the HTTP API until a shutdown signal arrives
func (app *App) cmdServe() error {
	app.logger.Info().Msg("=== Serve Command ===")

	server := api.NewServer(app.config.Server, app.service, app.hub, app.metrics, app.logger)

	go app.service.RunPruner(app.ctx, app.statuses, app.config.Storage.Retention(), pruneInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-app.ctx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app.logger.Info().Msg("Shutting down HTTP server")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}

// cmdRun executes a single session in the foreground and logs its events
func (app *App) cmdRun(args []string) error {
	app.logger.Info().Msg("=== Run Command ===")

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sessionPath := fs.String("session", "", "Path to a session YAML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionPath == "" {
		return errors.New("run requires -session <file.yaml>")
	}

	cfg, err := loadSession(*sessionPath)
	if err != nil {
		return err
	}

	logEvents := status.PublisherFunc(func(e models.BotStatusEvent) {
		app.logger.Info().
			Str("sessionId", e.SessionID).
			Str("status", string(e.Status)).
			Msg(e.Message)
	})

	orch := orchestrator.New(app.browser, app.registry, status.Fanout{app.publisher, logEvents}, app.metrics, app.logger)

	result, err := orch.Run(app.ctx, cfg)
	if err != nil {
		return fmt.Errorf("session %s failed: %w", result.SessionID, err)
	}

	fmt.Println("\n========== Session ==========")
	fmt.Printf("  Id:        %s\n", result.SessionID)
	fmt.Printf("  Target:    %s\n", result.Target)
	fmt.Printf("  Status:    %s\n", result.Status)
	fmt.Printf("  Duration:  %s\n", result.Duration().Round(time.Second))
	if result.NoOp {
		fmt.Printf("  Note:      %s\n", result.Message)
	}
	fmt.Println("=============================")
	return nil
}

// loadSession reads a session description from YAML
func loadSession(path string) (models.SessionConfig, error) {
	var cfg models.SessionConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse session file: %w", err)
	}
	if cfg.Target == "" {
		return cfg, errors.New("session file has no target")
	}
	return cfg, nil
}

// printBanner prints the application banner
func printBanner() {
	fmt.Print(`
╔═══════════════════════════════════════════════════╗
║           trafficpilot - v` + AppVersion + `                   ║
║   Scripted, human-paced browser sessions          ║
╚═══════════════════════════════════════════════════╝
` + "\n")
}

// printUsage prints usage information
func printUsage() {
	fmt.Print(`
Usage: trafficpilot [options] <command>

Commands:
  serve     Start the HTTP API, WebSocket stream and metrics endpoint
  run       Run one session in the foreground (-session file.yaml)
  help      Show this help message

Options:
  -config string    Path to config file (default "./config/config.yaml")
  -log-level string Log level: debug, info, warn, error
  -headless         Run browser in headless mode

Examples:
  trafficpilot serve
  trafficpilot -log-level debug serve
  trafficpilot -headless run -session sessions/website.yaml

Configuration:
  1. Copy .env.example to .env to set PORT, CHROME_BIN, NATS_URL...
  2. Edit config/config.yaml to tune timeouts and limits
` + "\n")
}
