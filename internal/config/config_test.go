package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/agentflow/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Scheduler.DefaultCeiling != 4 {
		t.Errorf("DefaultCeiling = %d, want 4", cfg.Scheduler.DefaultCeiling)
	}
	if cfg.Scheduler.Ceilings["research"] != 2 {
		t.Errorf("research ceiling = %d, want 2", cfg.Scheduler.Ceilings["research"])
	}
	if cfg.Controller.MaxClarifications != 0 {
		t.Errorf("MaxClarifications = %d, want 0 (unlimited)", cfg.Controller.MaxClarifications)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// TestLoadConfigValidFile tests loading a full YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	path := writeConfig(t, `log_level: debug
log_dir: /tmp/logs
timeout: 5m
provider_timeout: 30s
finalize_timeout: 10s
scheduler:
  default_ceiling: 6
  ceilings:
    research: 1
    direct_qa: 3
  node_timeout: 45s
controller:
  max_clarifications: 2
  confirm_types: [research]
store:
  path: ":memory:"
providers:
  fixture: fixtures/weather.yaml
metrics:
  addr: ":9090"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.LogDir != "/tmp/logs" {
		t.Errorf("logging = %q %q", cfg.LogLevel, cfg.LogDir)
	}
	if cfg.Timeout != 5*time.Minute || cfg.ProviderTimeout != 30*time.Second || cfg.FinalizeTimeout != 10*time.Second {
		t.Errorf("timeouts = %v %v %v", cfg.Timeout, cfg.ProviderTimeout, cfg.FinalizeTimeout)
	}
	if cfg.Scheduler.NodeTimeout != 45*time.Second {
		t.Errorf("NodeTimeout = %v, want 45s", cfg.Scheduler.NodeTimeout)
	}
	if cfg.Store.Path != ":memory:" || cfg.Metrics.Addr != ":9090" || cfg.Providers.Fixture != "fixtures/weather.yaml" {
		t.Errorf("store/metrics/providers not loaded: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	exec, err := cfg.ExecutorConfig()
	if err != nil {
		t.Fatalf("ExecutorConfig() error = %v", err)
	}
	if exec.Ceiling(models.NodeResearch) != 1 {
		t.Errorf("research ceiling = %d, want 1", exec.Ceiling(models.NodeResearch))
	}
	if exec.Ceiling(models.NodeDirectQA) != 3 {
		t.Errorf("direct-qa ceiling = %d, want 3", exec.Ceiling(models.NodeDirectQA))
	}
	if exec.Ceiling(models.NodeDiagramAnalysis) != 6 {
		t.Errorf("diagram ceiling = %d, want default 6", exec.Ceiling(models.NodeDiagramAnalysis))
	}

	ctrl, err := cfg.ControllerSettings()
	if err != nil {
		t.Fatalf("ControllerSettings() error = %v", err)
	}
	if ctrl.MaxClarifications != 2 || len(ctrl.ConfirmTypes) != 1 || ctrl.ConfirmTypes[0] != models.NodeResearch {
		t.Errorf("controller settings = %+v", ctrl)
	}
}

// TestLoadConfigFileNotExists tests fallback to defaults when file doesn't exist
func TestLoadConfigFileNotExists(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() should not error on missing file, got: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q (default)", cfg.LogLevel, "info")
	}
}

// TestLoadConfigPartialValues tests that partial config merges with defaults
func TestLoadConfigPartialValues(t *testing.T) {
	path := writeConfig(t, `log_level: warn
scheduler:
  ceilings:
    diagram-analysis: 1
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Timeout != DefaultConfig().Timeout {
		t.Errorf("Timeout = %v, want default", cfg.Timeout)
	}
	if cfg.Scheduler.Ceilings["research"] != 2 {
		t.Errorf("default research ceiling should survive a partial ceilings map")
	}
	if cfg.Scheduler.Ceilings["diagram-analysis"] != 1 {
		t.Errorf("diagram ceiling not merged")
	}
	if cfg.Scheduler.DefaultCeiling != 4 {
		t.Errorf("DefaultCeiling = %d, want 4", cfg.Scheduler.DefaultCeiling)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid yaml", "timeout: [this is not valid\n", "parse config"},
		{"bad duration", "timeout: soon\n", "invalid timeout"},
		{"bad node timeout", "scheduler:\n  node_timeout: 3 apples\n", "scheduler.node_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"zero default ceiling", func(c *Config) { c.Scheduler.DefaultCeiling = 0 }, "default_ceiling"},
		{"unknown ceiling type", func(c *Config) { c.Scheduler.Ceilings["telepathy"] = 1 }, "unknown node type"},
		{"zero type ceiling", func(c *Config) { c.Scheduler.Ceilings["research"] = 0 }, "must be > 0"},
		{"negative clarifications", func(c *Config) { c.Controller.MaxClarifications = -1 }, "max_clarifications"},
		{"unknown confirm type", func(c *Config) { c.Controller.ConfirmTypes = []string{"launch"} }, "confirm_types"},
		{"command and fixture", func(c *Config) {
			c.Providers.Command = "bin/provider"
			c.Providers.Fixture = "f.yaml"
		}, "mutually exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Command = "bin/provider"

	timeout := time.Minute
	logDir := "/var/log/agentflow"
	fixture := "fixture.yaml"
	cfg.MergeWithFlags(&timeout, &logDir, nil, &fixture, nil, nil)

	if cfg.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want 1m", cfg.Timeout)
	}
	if cfg.LogDir != logDir {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("nil flag should keep LogLevel, got %q", cfg.LogLevel)
	}
	if cfg.Providers.Fixture != fixture || cfg.Providers.Command != "" {
		t.Errorf("fixture flag should replace the command provider: %+v", cfg.Providers)
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".agentflow"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".agentflow", "config.yaml"), []byte("log_level: error\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromDir(dir)
	if err != nil {
		t.Fatalf("LoadConfigFromDir() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error", cfg.LogLevel)
	}
}

func TestGetHomeFromEnv(t *testing.T) {
	home := filepath.Join(t.TempDir(), "state")
	t.Setenv(HomeEnv, home)

	got, err := GetHome()
	if err != nil {
		t.Fatalf("GetHome() error = %v", err)
	}
	if got != home {
		t.Errorf("GetHome() = %q, want %q", got, home)
	}
	if _, err := os.Stat(home); err != nil {
		t.Errorf("home directory should be created: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Store.Path != filepath.Join(home, "agentflow.db") {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.LogDir != filepath.Join(home, "logs") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".agentflow-root"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	got, ok := findRoot(nested)
	if !ok || got != root {
		t.Errorf("findRoot() = %q, %v; want %q", got, ok, root)
	}
}
