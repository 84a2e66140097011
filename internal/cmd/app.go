package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/config"
	"github.com/harrison/agentflow/internal/controller"
	"github.com/harrison/agentflow/internal/filelock"
	"github.com/harrison/agentflow/internal/logger"
	"github.com/harrison/agentflow/internal/metrics"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/provider"
	"github.com/harrison/agentflow/internal/store"
)

// app is everything a run or resume needs, wired from configuration.
type app struct {
	cfg      *config.Config
	store    *store.Store
	console  *logger.ConsoleLogger
	file     *logger.FileLogger
	registry *prometheus.Registry
	ctrl     *controller.Controller
}

// loadConfig reads the config file, merges the flags that were set, resolves
// state paths and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var timeoutPtr *time.Duration
	if changed(cmd, "timeout") {
		timeout, err := cmd.Flags().GetDuration("timeout")
		if err != nil {
			return nil, err
		}
		timeoutPtr = &timeout
	}
	logLevel := stringFlag(cmd, "log-level")
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && logLevel == nil {
		debug := "debug"
		logLevel = &debug
	}
	if changed(cmd, "fixture") && changed(cmd, "command") {
		return nil, errors.New("cannot use both --fixture and --command")
	}
	cfg.MergeWithFlags(timeoutPtr, stringFlag(cmd, "log-dir"), logLevel, stringFlag(cmd, "fixture"), stringFlag(cmd, "command"), stringFlag(cmd, "metrics-addr"))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// stringFlag returns a pointer to the flag value, or nil when it was not set.
func stringFlag(cmd *cobra.Command, name string) *string {
	if !changed(cmd, name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

// buildProviders selects the capability source configured in providers.
func buildProviders(cfg *config.Config) (*provider.Set, error) {
	switch {
	case cfg.Providers.Fixture != "":
		p, err := provider.LoadFixture(cfg.Providers.Fixture)
		if err != nil {
			return nil, err
		}
		return provider.All(p), nil
	case cfg.Providers.Command != "":
		return provider.All(provider.NewCommandProvider(cfg.Providers.Command, cfg.ProviderTimeout, cfg.Providers.Args...)), nil
	}
	return nil, errors.New("no provider configured: set providers.command or providers.fixture, or pass --command or --fixture")
}

// newApp opens the store and loggers and builds the controller.
func newApp(cmd *cobra.Command, cfg *config.Config) (*app, error) {
	providers, err := buildProviders(cfg)
	if err != nil {
		return nil, err
	}
	settings, err := cfg.ControllerSettings()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   st,
		console: logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel),
	}

	sinks := []logger.Sink{a.console}
	if cfg.LogDir != "" {
		a.file, err = logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
		if err != nil {
			st.Close()
			return nil, err
		}
		sinks = append(sinks, a.file)
	}
	observer := logger.NewMultiLogger(sinks...)

	var m *metrics.Metrics
	a.registry, m = metrics.NewRegistry()

	a.ctrl, err = controller.New(providers, settings,
		controller.WithStore(st),
		controller.WithRecorder(st),
		controller.WithObserver(observer),
		controller.WithSchedulerObserver(observer),
		controller.WithMetrics(m),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// serveMetrics exposes /metrics while ctx is live, if an address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.registry); err != nil {
			a.console.LogWarn(fmt.Sprintf("metrics server: %v", err))
		}
	}()
	a.console.LogInfo(fmt.Sprintf("Serving metrics on %s/metrics", a.cfg.Metrics.Addr))
}

// runContext bounds a run by the configured timeout.
func (a *app) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(parent, a.cfg.Timeout)
	}
	return context.WithCancel(parent)
}

// Close releases the store and the file logger.
func (a *app) Close() error {
	var errs []error
	if a.file != nil {
		errs = append(errs, a.file.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// report prints the outcome: the answer text on out, or how to resume a
// parked run. With outputPath set the answer is also written to that file.
func report(ctx context.Context, out io.Writer, outcome controller.Outcome, outputPath string) error {
	if outcome.Suspended() {
		s := outcome.Suspension
		fmt.Fprintf(out, "%s\n\n", s.Prompt())
		switch s.Kind {
		case models.SuspendedForConfirmation:
			fmt.Fprintf(out, "Resume with: agentflow resume %s --confirm yes|no\n", s.Token)
		default:
			fmt.Fprintf(out, "Resume with: agentflow resume %s --answer \"...\"\n", s.Token)
		}
		return nil
	}

	answer := outcome.Answer
	if answer == nil {
		return errors.New("run ended without an answer")
	}
	text := strings.TrimRight(answer.Text, "\n") + "\n"
	fmt.Fprint(out, text)

	if outputPath != "" {
		if err := filelock.LockAndWrite(ctx, outputPath, []byte(text)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}

// readDocuments loads --doc files as reference documents.
func readDocuments(paths []string) ([]models.Document, error) {
	docs := make([]models.Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		docs = append(docs, models.Document{Name: p, Content: string(data)})
	}
	return docs, nil
}
