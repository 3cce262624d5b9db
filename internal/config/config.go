package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// envBindings maps config keys to the environment variables that may set them.
// The NEXT_PUBLIC_* names are kept so existing deployment env files keep working.
var envBindings = map[string][]string{
	"api_url":      {"DOCDESK_API_URL", "NEXT_PUBLIC_API_URL"},
	"backend_host": {"DOCDESK_BACKEND_HOST", "NEXT_PUBLIC_BACKEND_HOST"},
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults, env bindings and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("api_url", defaults.APIURL)
	v.SetDefault("backend_host", defaults.BackendHost)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("timing.index_poll_interval", defaults.Timing.IndexPollInterval)
	v.SetDefault("timing.completion_delay", defaults.Timing.CompletionDelay)
	v.SetDefault("timing.request_timeout", defaults.Timing.RequestTimeout)
	v.SetDefault("indexing.chunk_size", defaults.Indexing.ChunkSize)
	v.SetDefault("dashboard.host", defaults.Dashboard.Host)
	v.SetDefault("dashboard.port", defaults.Dashboard.Port)

	// Environment variables with DOCDESK_ prefix (DOCDESK_TIMING_COMPLETION_DELAY, ...)
	v.SetEnvPrefix("DOCDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.docdesk")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the path of the loaded config file, or "" if none was found.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
// Invalid edits are logged and the previous config stays active.
func (cm *Manager) WatchConfig(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate checks that the config can drive a client.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url must be set")
	}
	if c.BackendHost == "" {
		return errors.New("backend_host must be set")
	}
	if c.Timing.IndexPollInterval <= 0 {
		return fmt.Errorf("timing.index_poll_interval must be positive, got %s", c.Timing.IndexPollInterval)
	}
	if c.Timing.CompletionDelay < 0 {
		return fmt.Errorf("timing.completion_delay must not be negative, got %s", c.Timing.CompletionDelay)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel converts a log_level string into a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", level)
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(fileConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# docdesk configuration
# api_url and backend_host can also be set with NEXT_PUBLIC_API_URL / NEXT_PUBLIC_BACKEND_HOST
# or DOCDESK_API_URL / DOCDESK_BACKEND_HOST.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

// fileConfig renders durations as strings so the written yaml reads "4s" rather than nanoseconds.
func fileConfig(cfg *Config) map[string]any {
	return map[string]any{
		"api_url":      cfg.APIURL,
		"backend_host": cfg.BackendHost,
		"log_level":    cfg.LogLevel,
		"timing": map[string]string{
			"index_poll_interval": cfg.Timing.IndexPollInterval.String(),
			"completion_delay":    cfg.Timing.CompletionDelay.String(),
			"request_timeout":     cfg.Timing.RequestTimeout.String(),
		},
		"indexing": map[string]int{
			"chunk_size": cfg.Indexing.ChunkSize,
		},
		"dashboard": map[string]string{
			"host": cfg.Dashboard.Host,
			"port": cfg.Dashboard.Port,
		},
	}
}
