package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the full application configuration, assembled from defaults, an
// optional YAML file and EMI_* environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Scheduler SchedulerConfig `yaml:"scheduler" envconfig:"SCHEDULER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig tunes the chi HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// LoggingConfig selects slog level, format and destinations.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig overrides pieces of the executable-relative layout.
type PathsConfig struct {
	ExecutableDir string `yaml:"executable_dir" envconfig:"EXECUTABLE_DIR"`
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR"`
	WebDir        string `yaml:"web_dir" envconfig:"WEB_DIR"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
	SourcesFile   string `yaml:"sources_file" envconfig:"SOURCES_FILE"`
}

// PipelineConfig contains ingestion pipeline configuration
type PipelineConfig struct {
	FetchTimeout    time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT"`
	RunTimeout      time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT"`
	MaxParallel     int           `yaml:"max_parallel" envconfig:"MAX_PARALLEL"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`
	CacheEnabled    bool          `yaml:"cache_enabled" envconfig:"CACHE_ENABLED"`
	UserAgent       string        `yaml:"user_agent" envconfig:"USER_AGENT"`
	AggregateReduce string        `yaml:"aggregate_reduce" envconfig:"AGGREGATE_REDUCE"`
}

// SchedulerConfig contains the cron refresh configuration
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"ENABLED"`
	Spec     string `yaml:"spec" envconfig:"SPEC"`
	Timezone string `yaml:"timezone" envconfig:"TIMEZONE"`
}

// SecurityConfig covers CORS and API rate limiting.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig throttles the API per client IP.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// WebSocketConfig tunes the progress stream connections.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load loads configuration in precedence order: built-in defaults, then an
// optional YAML file, then EMI_* environment variables.
func Load() (*Config, error) {
	cfg := Default()

	// Fields absent from the file keep their default values.
	if configFile := findConfigFile(); configFile != "" {
		if err := overlayFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Environment variables win over both defaults and file values.
	if err := envconfig.Process("EMI", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if paths, err := GetPaths(); err == nil {
		cfg.Paths.ExecutableDir = paths.ExecutableDir
	} else {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.ValidatePaths(); err != nil {
		return nil, fmt.Errorf("path validation failed: %w", err)
	}

	return cfg, nil
}

func overlayFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ValidatePaths creates the directory tree and logs the resolved layout.
func (c *Config) ValidatePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()
	return nil
}

// resolveDir prefers the executable-relative layout and falls back to the
// configured override when executable resolution fails.
func (c *Config) resolveDir(fromPaths func(*Paths) string, override string) string {
	if paths, err := GetPaths(); err == nil {
		return fromPaths(paths)
	}
	if filepath.IsAbs(override) {
		return override
	}
	return filepath.Join(c.Paths.ExecutableDir, override)
}

// GetDataDir returns the resolved data directory.
func (c *Config) GetDataDir() string {
	return c.resolveDir(func(p *Paths) string { return p.DataDir }, c.Paths.DataDir)
}

// GetWebDir returns the resolved web assets directory.
func (c *Config) GetWebDir() string {
	return c.resolveDir(func(p *Paths) string { return p.WebDir }, c.Paths.WebDir)
}

// GetLogsDir returns the resolved log directory.
func (c *Config) GetLogsDir() string {
	return c.resolveDir(func(p *Paths) string { return p.LogsDir }, c.Paths.LogsDir)
}

// GetSourcesFile returns the resolved source catalog path. An explicitly
// configured path wins over the executable-relative default.
func (c *Config) GetSourcesFile() string {
	if c.Paths.SourcesFile != "" {
		if filepath.IsAbs(c.Paths.SourcesFile) {
			return c.Paths.SourcesFile
		}
		return filepath.Join(c.Paths.ExecutableDir, c.Paths.SourcesFile)
	}

	paths, err := GetPaths()
	if err != nil {
		return filepath.Join(c.Paths.ExecutableDir, "data", "sources", "sources.yml")
	}
	return paths.SourcesFile
}

// validate rejects settings the application cannot run with and repairs
// logging settings it can fall back on.
func (c *Config) validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	case c.Server.ReadTimeout <= 0:
		return fmt.Errorf("server read timeout must be positive")
	case c.Server.WriteTimeout <= 0:
		return fmt.Errorf("server write timeout must be positive")
	case len(c.Security.AllowedOrigins) == 0:
		return fmt.Errorf("at least one allowed origin must be specified")
	case c.Pipeline.FetchTimeout <= 0:
		return fmt.Errorf("pipeline fetch timeout must be positive")
	case c.Pipeline.MaxParallel <= 0:
		return fmt.Errorf("pipeline max parallel must be positive")
	}

	switch c.Pipeline.AggregateReduce {
	case "mean", "min", "max", "last":
	default:
		return fmt.Errorf("unsupported aggregate reducer: %s", c.Pipeline.AggregateReduce)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/emicli.log"
	}

	return nil
}

// findConfigFile probes the conventional locations for config.yaml; an empty
// result means env vars and defaults only.
func findConfigFile() string {
	for _, location := range []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "both",
			FilePath: "logs/emicli.log",
		},
		Paths: PathsConfig{
			DataDir: DefaultDataDir,
			WebDir:  DefaultWebDir,
			LogsDir: DefaultLogsDir,
		},
		Pipeline: PipelineConfig{
			FetchTimeout:    DefaultFetchTimeout,
			RunTimeout:      DefaultRunTimeout,
			MaxParallel:     4,
			RateLimitRPS:    DefaultFetchRateLimit,
			RateLimitBurst:  DefaultFetchBurst,
			CacheEnabled:    true,
			UserAgent:       DefaultUserAgent,
			AggregateReduce: "mean",
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Spec:     DefaultRefreshSpec,
			Timezone: DefaultTimezone,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultAPIRateLimit,
				Burst:   DefaultAPIBurst,
			},
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      WebSocketPingPeriod,
			PongWait:        WebSocketPongWait,
		},
	}
}
