package config

import "time"

// Config represents the complete tgsender configuration.
type Config struct {
	Service ServiceConfig `yaml:"service" toml:"service" envPrefix:"SERVICE_"`
	Sender  SenderConfig  `yaml:"sender" toml:"sender" envPrefix:"SENDER_"`
	BotAPI  BotAPIConfig  `yaml:"botapi" toml:"botapi" envPrefix:"BOTAPI_"`
	Journal JournalConfig `yaml:"journal" toml:"journal" envPrefix:"JOURNAL_"`
	API     APIConfig     `yaml:"api,omitempty" toml:"api" envPrefix:"API_"`

	// Path is the file the config was loaded from, empty for Defaults().
	Path string `yaml:"-" toml:"-" json:"-"`
	// Digest is the BLAKE3 hex digest of the loaded file.
	Digest string `yaml:"-" toml:"-" json:"-"`
}

// ServiceConfig defines process-level settings.
type ServiceConfig struct {
	Name      string `yaml:"name" toml:"name" env:"NAME"`
	LogLevel  string `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" toml:"log_format" env:"LOG_FORMAT"`
	LockPath  string `yaml:"lock_path" toml:"lock_path" env:"LOCK_PATH"`

	Tracing TracingConfig `yaml:"tracing,omitempty" toml:"tracing" envPrefix:"TRACING_"`
}

// TracingConfig exports execution spans over OTLP/HTTP. An empty Endpoint
// leaves tracing off even when Enabled is set.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Endpoint    string  `yaml:"endpoint" toml:"endpoint" env:"ENDPOINT"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// SenderConfig defines the command queue and its two worker pools.
type SenderConfig struct {
	QueueSize       int           `yaml:"queue_size" toml:"queue_size" env:"QUEUE_SIZE"`
	EnqueueTimeout  time.Duration `yaml:"enqueue_timeout" toml:"enqueue_timeout" env:"ENQUEUE_TIMEOUT"`
	PollInterval    time.Duration `yaml:"poll_interval" toml:"poll_interval" env:"POLL_INTERVAL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	Executor        PoolConfig    `yaml:"executor" toml:"executor" envPrefix:"EXECUTOR_"`
	Callback        PoolConfig    `yaml:"callback" toml:"callback" envPrefix:"CALLBACK_"`
}

// PoolConfig sizes one worker pool. QueueCapacity 0 means rendezvous
// hand-off (no buffering), not an unbounded queue.
type PoolConfig struct {
	CoreSize      int           `yaml:"core_size" toml:"core_size" env:"CORE_SIZE"`
	MaxSize       int           `yaml:"max_size" toml:"max_size" env:"MAX_SIZE"`
	KeepAlive     time.Duration `yaml:"keep_alive" toml:"keep_alive" env:"KEEP_ALIVE"`
	QueueCapacity int           `yaml:"queue_capacity" toml:"queue_capacity" env:"QUEUE_CAPACITY"`
}

// BotAPIConfig defines how to reach the Telegram Bot API.
type BotAPIConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url" env:"BASE_URL"`
	Token   string        `yaml:"token" toml:"token" env:"TOKEN"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	Proxy   ProxyConfig   `yaml:"proxy,omitempty" toml:"proxy" envPrefix:"PROXY_"`
}

// ProxyConfig routes Bot API traffic through an HTTP or SOCKS5 proxy.
// The proxy is only used when both Host and Port are set.
type ProxyConfig struct {
	Type          string   `yaml:"type" toml:"type" env:"TYPE"`
	Host          string   `yaml:"host" toml:"host" env:"HOST"`
	Port          int      `yaml:"port" toml:"port" env:"PORT"`
	Principal     string   `yaml:"principal" toml:"principal" env:"PRINCIPAL"`
	Password      string   `yaml:"password" toml:"password" env:"PASSWORD"`
	NonProxyHosts []string `yaml:"non_proxy_hosts,omitempty" toml:"non_proxy_hosts" env:"NON_PROXY_HOSTS" envSeparator:","`
	AuthScheme    string   `yaml:"auth_scheme" toml:"auth_scheme" env:"AUTH_SCHEME"`
}

// Enabled reports whether a proxy endpoint is configured.
func (p ProxyConfig) Enabled() bool {
	return p.Host != "" && p.Port > 0
}

// HasCredentials reports whether proxy authentication is configured.
func (p ProxyConfig) HasCredentials() bool {
	return p.Principal != "" && p.Password != ""
}

// JournalConfig defines the SQLite command outcome journal.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Path      string        `yaml:"path" toml:"path" env:"PATH"`
	Retention time.Duration `yaml:"retention" toml:"retention" env:"RETENTION"`
}

// APIConfig defines the ops HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Listen  string `yaml:"listen" toml:"listen" env:"LISTEN"`
	APIKey  string `yaml:"api_key" toml:"api_key" env:"KEY"`
	// MaxWait caps how long POST /commands?wait may block for a result.
	MaxWait time.Duration `yaml:"max_wait" toml:"max_wait" env:"MAX_WAIT"`
}

const (
	ProxyTypeHTTP   = "HTTP"
	ProxyTypeSOCKS5 = "SOCKS_V5"

	AuthSchemeBasic = "BASIC"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "tgsender",
			LogLevel:  "info",
			LogFormat: "json",
			LockPath:  "./data/tgsender.lock",
			Tracing: TracingConfig{
				SampleRatio: 1,
			},
		},
		Sender: SenderConfig{
			QueueSize:       1000,
			EnqueueTimeout:  5 * time.Second,
			PollInterval:    100 * time.Millisecond,
			ShutdownTimeout: 5 * time.Second,
			Executor:        DefaultPoolConfig(),
			Callback:        DefaultPoolConfig(),
		},
		BotAPI: BotAPIConfig{
			BaseURL: "https://api.telegram.org",
			Timeout: 30 * time.Second,
			Proxy: ProxyConfig{
				Type: ProxyTypeHTTP,
			},
		},
		Journal: JournalConfig{
			Enabled:   false,
			Path:      "./data/journal.db",
			Retention: 7 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
			MaxWait: 30 * time.Second,
		},
	}
}

// DefaultPoolConfig returns the default sizing shared by both pools.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		CoreSize:      4,
		MaxSize:       16,
		KeepAlive:     60 * time.Second,
		QueueCapacity: 0,
	}
}
