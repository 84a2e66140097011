package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/agentflow/internal/controller"
	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/models"
)

// SchedulerConfig represents plan execution concurrency settings
type SchedulerConfig struct {
	// DefaultCeiling caps in-flight calls for node types without an explicit ceiling
	DefaultCeiling int `yaml:"default_ceiling"`

	// Ceilings caps in-flight calls per node type (e.g. research: 2)
	Ceilings map[string]int `yaml:"ceilings"`

	// NodeTimeout bounds each node's provider call (0 = none)
	NodeTimeout time.Duration `yaml:"node_timeout"`
}

// ControllerConfig represents phase controller settings
type ControllerConfig struct {
	// MaxClarifications caps information requests per task (0 = unlimited)
	MaxClarifications int `yaml:"max_clarifications"`

	// ConfirmTypes lists node types that need user confirmation before execution
	ConfirmTypes []string `yaml:"confirm_types"`
}

// StoreConfig represents persistence settings
type StoreConfig struct {
	// Path is the SQLite database file; ":memory:" keeps nothing across runs
	Path string `yaml:"path"`
}

// ProvidersConfig selects where capability calls go
type ProvidersConfig struct {
	// Command is an executable invoked as `<command> <capability>`
	Command string `yaml:"command"`

	// Args are passed to Command before the capability name
	Args []string `yaml:"args"`

	// Fixture is a YAML file of canned capability responses
	Fixture string `yaml:"fixture"`
}

// MetricsConfig represents Prometheus exposition settings
type MetricsConfig struct {
	// Addr serves /metrics when set (e.g. ":9090")
	Addr string `yaml:"addr"`
}

// Config represents agentflow configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// Timeout is the maximum time for a whole run (0 = none)
	Timeout time.Duration `yaml:"timeout"`

	// ProviderTimeout bounds each phase-level capability call (0 = none)
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// FinalizeTimeout bounds evaluation and synthesis after cancellation
	FinalizeTimeout time.Duration `yaml:"finalize_timeout"`

	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Controller ControllerConfig `yaml:"controller"`
	Store      StoreConfig      `yaml:"store"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		Timeout:         30 * time.Minute,
		ProviderTimeout: 2 * time.Minute,
		FinalizeTimeout: controller.DefaultFinalizeTimeout,
		Scheduler: SchedulerConfig{
			DefaultCeiling: executor.DefaultCeiling,
			Ceilings:       map[string]int{string(models.NodeResearch): executor.DefaultResearchCeiling},
		},
	}
}

// fileConfig mirrors Config with pointer fields so absent keys keep defaults
// and durations are parsed from strings.
type fileConfig struct {
	LogLevel        *string `yaml:"log_level"`
	LogDir          *string `yaml:"log_dir"`
	Timeout         *string `yaml:"timeout"`
	ProviderTimeout *string `yaml:"provider_timeout"`
	FinalizeTimeout *string `yaml:"finalize_timeout"`
	Scheduler       *struct {
		DefaultCeiling *int           `yaml:"default_ceiling"`
		Ceilings       map[string]int `yaml:"ceilings"`
		NodeTimeout    *string        `yaml:"node_timeout"`
	} `yaml:"scheduler"`
	Controller *struct {
		MaxClarifications *int     `yaml:"max_clarifications"`
		ConfirmTypes      []string `yaml:"confirm_types"`
	} `yaml:"controller"`
	Store *struct {
		Path *string `yaml:"path"`
	} `yaml:"store"`
	Providers *struct {
		Command *string  `yaml:"command"`
		Args    []string `yaml:"args"`
		Fixture *string  `yaml:"fixture"`
	} `yaml:"providers"`
	Metrics *struct {
		Addr *string `yaml:"addr"`
	} `yaml:"metrics"`
}

type durationField struct {
	key string
	src *string
	dst *time.Duration
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogDir != nil {
		cfg.LogDir = *fc.LogDir
	}
	durations := []durationField{
		{"timeout", fc.Timeout, &cfg.Timeout},
		{"provider_timeout", fc.ProviderTimeout, &cfg.ProviderTimeout},
		{"finalize_timeout", fc.FinalizeTimeout, &cfg.FinalizeTimeout},
	}
	if fc.Scheduler != nil {
		durations = append(durations, durationField{"scheduler.node_timeout", fc.Scheduler.NodeTimeout, &cfg.Scheduler.NodeTimeout})

		if fc.Scheduler.DefaultCeiling != nil {
			cfg.Scheduler.DefaultCeiling = *fc.Scheduler.DefaultCeiling
		}
		for name, n := range fc.Scheduler.Ceilings {
			cfg.Scheduler.Ceilings[name] = n
		}
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format %q: %w", d.key, *d.src, err)
		}
		*d.dst = parsed
	}

	if fc.Controller != nil {
		if fc.Controller.MaxClarifications != nil {
			cfg.Controller.MaxClarifications = *fc.Controller.MaxClarifications
		}
		if fc.Controller.ConfirmTypes != nil {
			cfg.Controller.ConfirmTypes = fc.Controller.ConfirmTypes
		}
	}
	if fc.Store != nil && fc.Store.Path != nil {
		cfg.Store.Path = *fc.Store.Path
	}
	if fc.Providers != nil {
		if fc.Providers.Command != nil {
			cfg.Providers.Command = *fc.Providers.Command
		}
		if fc.Providers.Args != nil {
			cfg.Providers.Args = fc.Providers.Args
		}
		if fc.Providers.Fixture != nil {
			cfg.Providers.Fixture = *fc.Providers.Fixture
		}
	}
	if fc.Metrics != nil && fc.Metrics.Addr != nil {
		cfg.Metrics.Addr = *fc.Metrics.Addr
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .agentflow/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".agentflow", "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(timeout *time.Duration, logDir *string, logLevel *string, fixture *string, command *string, metricsAddr *string) {
	if timeout != nil {
		c.Timeout = *timeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if fixture != nil {
		c.Providers.Fixture = *fixture
		c.Providers.Command = ""
	}
	if command != nil {
		c.Providers.Command = *command
		c.Providers.Fixture = ""
	}
	if metricsAddr != nil {
		c.Metrics.Addr = *metricsAddr
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	if c.ProviderTimeout < 0 {
		return fmt.Errorf("provider_timeout must be >= 0, got %v", c.ProviderTimeout)
	}
	if c.FinalizeTimeout < 0 {
		return fmt.Errorf("finalize_timeout must be >= 0, got %v", c.FinalizeTimeout)
	}
	if c.Scheduler.NodeTimeout < 0 {
		return fmt.Errorf("scheduler.node_timeout must be >= 0, got %v", c.Scheduler.NodeTimeout)
	}
	if c.Scheduler.DefaultCeiling <= 0 {
		return fmt.Errorf("scheduler.default_ceiling must be > 0, got %d", c.Scheduler.DefaultCeiling)
	}
	if _, err := c.ExecutorConfig(); err != nil {
		return err
	}
	if c.Controller.MaxClarifications < 0 {
		return fmt.Errorf("controller.max_clarifications must be >= 0, got %d", c.Controller.MaxClarifications)
	}
	if _, err := c.confirmTypes(); err != nil {
		return err
	}
	if c.Providers.Command != "" && c.Providers.Fixture != "" {
		return fmt.Errorf("providers.command and providers.fixture are mutually exclusive")
	}

	return nil
}

// ExecutorConfig converts the scheduler section into executor settings.
func (c *Config) ExecutorConfig() (executor.Config, error) {
	out := executor.Config{
		DefaultCeiling: c.Scheduler.DefaultCeiling,
		Ceilings:       make(map[models.NodeType]int, len(c.Scheduler.Ceilings)),
		NodeTimeout:    c.Scheduler.NodeTimeout,
	}
	for name, n := range c.Scheduler.Ceilings {
		t, err := models.ParseNodeType(name)
		if err != nil {
			return executor.Config{}, fmt.Errorf("scheduler.ceilings: %w", err)
		}
		if n <= 0 {
			return executor.Config{}, fmt.Errorf("scheduler.ceilings.%s must be > 0, got %d", name, n)
		}
		out.Ceilings[t] = n
	}
	return out, nil
}

func (c *Config) confirmTypes() ([]models.NodeType, error) {
	var types []models.NodeType
	for _, name := range c.Controller.ConfirmTypes {
		t, err := models.ParseNodeType(name)
		if err != nil {
			return nil, fmt.Errorf("controller.confirm_types: %w", err)
		}
		types = append(types, t)
	}
	return types, nil
}

// ControllerSettings converts the configuration into controller settings.
func (c *Config) ControllerSettings() (controller.Config, error) {
	sched, err := c.ExecutorConfig()
	if err != nil {
		return controller.Config{}, err
	}
	types, err := c.confirmTypes()
	if err != nil {
		return controller.Config{}, err
	}
	return controller.Config{
		MaxClarifications: c.Controller.MaxClarifications,
		ConfirmTypes:      types,
		ProviderTimeout:   c.ProviderTimeout,
		FinalizeTimeout:   c.FinalizeTimeout,
		Scheduler:         sched,
	}, nil
}
