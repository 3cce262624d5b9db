package config

import (
	"strings"
	"time"
)

// Config holds docdesk configuration.
// Stored at: ~/.docdesk/config.yaml (or ./config.yaml)
type Config struct {
	APIURL      string       `mapstructure:"api_url" yaml:"api_url"`           // REST base URL (NEXT_PUBLIC_API_URL)
	BackendHost string       `mapstructure:"backend_host" yaml:"backend_host"` // host[:port] for WebSockets (NEXT_PUBLIC_BACKEND_HOST)
	LogLevel    string       `mapstructure:"log_level" yaml:"log_level"`       // debug, info, warn, error
	Timing      TimingCfg    `mapstructure:"timing" yaml:"timing"`
	Indexing    IndexingCfg  `mapstructure:"indexing" yaml:"indexing"`
	Dashboard   DashboardCfg `mapstructure:"dashboard" yaml:"dashboard"`
}

// TimingCfg controls the progress coordinator's clocks.
type TimingCfg struct {
	// IndexPollInterval is the fallback poll period while a book is indexing.
	IndexPollInterval time.Duration `mapstructure:"index_poll_interval" yaml:"index_poll_interval"`
	// CompletionDelay is how long a finished tracker stays visible at 100%.
	CompletionDelay time.Duration `mapstructure:"completion_delay" yaml:"completion_delay"`
	// RequestTimeout bounds a single REST call (uploads included).
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// IndexingCfg holds indexing defaults.
type IndexingCfg struct {
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// DashboardCfg configures the local dashboard server.
type DashboardCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		APIURL:      "http://localhost:8000",
		BackendHost: "localhost:8000",
		LogLevel:    "info",
		Timing: TimingCfg{
			IndexPollInterval: 4 * time.Second,
			CompletionDelay:   2 * time.Second,
			RequestTimeout:    10 * time.Minute,
		},
		Indexing: IndexingCfg{
			ChunkSize: 1000,
		},
		Dashboard: DashboardCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
	}
}

// WebSocketBase returns the ws:// (or wss://) origin used for progress channels.
// BackendHost may be a bare host:port or a full http(s)/ws(s) URL.
func (c *Config) WebSocketBase() string {
	host := strings.TrimSuffix(c.BackendHost, "/")
	switch {
	case strings.HasPrefix(host, "ws://"), strings.HasPrefix(host, "wss://"):
		return host
	case strings.HasPrefix(host, "https://"):
		return "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		return "ws://" + strings.TrimPrefix(host, "http://")
	default:
		return "ws://" + host
	}
}
