package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the state directory.
const HomeEnv = "AGENTFLOW_HOME"

// GetHome returns the agentflow state directory, creating it if needed.
// Priority order:
//  1. AGENTFLOW_HOME environment variable (if set)
//  2. The nearest ancestor of the working directory holding an .agentflow-root marker
//  3. .agentflow in the current working directory
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create agentflow home directory: %w", err)
		}
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	base := cwd
	if root, ok := findRoot(cwd); ok {
		base = root
	}

	home := filepath.Join(base, ".agentflow")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create agentflow home directory: %w", err)
	}
	return home, nil
}

// findRoot walks up from dir looking for an .agentflow-root marker.
func findRoot(dir string) (string, bool) {
	current := dir
	for {
		if _, err := os.Stat(filepath.Join(current, ".agentflow-root")); err == nil {
			return current, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// GetDBPath returns the database path: $AGENTFLOW_HOME/agentflow.db
func GetDBPath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "agentflow.db"), nil
}

// GetLogDir returns the default log directory: $AGENTFLOW_HOME/logs
func GetLogDir() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "logs"), nil
}

// GetLockDir returns the directory holding resume locks: $AGENTFLOW_HOME/locks
func GetLockDir() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "locks"), nil
}

// Resolve fills the store path and log dir from the home directory when unset.
func (c *Config) Resolve() error {
	if c.Store.Path == "" {
		p, err := GetDBPath()
		if err != nil {
			return err
		}
		c.Store.Path = p
	}
	if c.LogDir == "" {
		d, err := GetLogDir()
		if err != nil {
			return err
		}
		c.LogDir = d
	}
	return nil
}
