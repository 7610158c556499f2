// Package config holds the plandeck configuration, loaded through viper
// from a config file, PLANDECK_* environment variables, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete plandeck configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Shell   ShellConfig   `mapstructure:"shell"`
}

// StorageConfig controls where plan state is persisted.
type StorageConfig struct {
	// Dir is the directory holding plan documents and the plan index.
	// Empty means <config dir>/plans.
	Dir string `mapstructure:"dir"`
}

// PathsConfig controls filesystem locations for runtime artifacts.
type PathsConfig struct {
	// WorktreeDir is where node worktrees are created.
	// Empty means <repo>/.plandeck/worktrees.
	WorktreeDir string `mapstructure:"worktree_dir"`

	// LogDir is where per-node log files are written.
	// Empty means <config dir>/logs.
	LogDir string `mapstructure:"log_dir"`
}

// LoggingConfig controls the structured engine log.
type LoggingConfig struct {
	// Enabled toggles the engine log file.
	Enabled bool `mapstructure:"enabled"`

	// Level is the minimum level: debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// EngineConfig controls scheduling behavior.
type EngineConfig struct {
	// DefaultMaxParallel bounds concurrently running nodes for plans
	// that do not set their own limit.
	DefaultMaxParallel int `mapstructure:"default_max_parallel"`

	// GlobalMaxParallel bounds concurrently running nodes across all
	// plans. Zero means unlimited.
	GlobalMaxParallel int `mapstructure:"global_max_parallel"`
}

// AgentConfig controls how agent work specs are executed.
type AgentConfig struct {
	// Command is the agent CLI executable.
	Command string `mapstructure:"command"`

	// DefaultModel is used when an agent spec names no model.
	DefaultModel string `mapstructure:"default_model"`
}

// ShellConfig controls how shell work specs are executed.
type ShellConfig struct {
	// DefaultDialect interprets shell specs that name no dialect.
	DefaultDialect string `mapstructure:"default_dialect"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Dir: "", // Empty means <config dir>/plans
		},
		Paths: PathsConfig{
			WorktreeDir: "", // Empty means <repo>/.plandeck/worktrees
			LogDir:      "", // Empty means <config dir>/logs
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Engine: EngineConfig{
			DefaultMaxParallel: 4,
			GlobalMaxParallel:  0,
		},
		Agent: AgentConfig{
			Command:      "copilot",
			DefaultModel: "",
		},
		Shell: ShellConfig{
			DefaultDialect: "bash",
		},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("storage.dir", defaults.Storage.Dir)

	viper.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("engine.default_max_parallel", defaults.Engine.DefaultMaxParallel)
	viper.SetDefault("engine.global_max_parallel", defaults.Engine.GlobalMaxParallel)

	viper.SetDefault("agent.command", defaults.Agent.Command)
	viper.SetDefault("agent.default_model", defaults.Agent.DefaultModel)

	viper.SetDefault("shell.default_dialect", defaults.Shell.DefaultDialect)
}

// Load reads the configuration from viper and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// unmarshaling fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	if c.Engine.DefaultMaxParallel < 1 {
		return fmt.Errorf("engine.default_max_parallel must be at least 1")
	}
	if c.Engine.GlobalMaxParallel < 0 {
		return fmt.Errorf("engine.global_max_parallel must not be negative")
	}
	if c.Agent.Command == "" {
		return fmt.Errorf("agent.command must not be empty")
	}
	switch c.Shell.DefaultDialect {
	case "sh", "bash", "zsh":
	default:
		return fmt.Errorf("invalid shell.default_dialect %q", c.Shell.DefaultDialect)
	}
	return nil
}

// StorageDir returns the resolved plan storage directory.
func (c *Config) StorageDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(ConfigDir(), "plans")
}

// LogDir returns the resolved node log directory.
func (c *Config) LogDir() string {
	if c.Paths.LogDir != "" {
		return c.Paths.LogDir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// WorktreeDir returns the resolved worktree root for a repository.
func (c *Config) WorktreeDir(repoPath string) string {
	if c.Paths.WorktreeDir != "" {
		return c.Paths.WorktreeDir
	}
	return filepath.Join(repoPath, ".plandeck", "worktrees")
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "plandeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".plandeck"
	}
	return filepath.Join(home, ".config", "plandeck")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
