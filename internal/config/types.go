package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	// TrustedProxies lists addresses or CIDR ranges whose forwarding
	// headers are believed
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// RulesConfig locates the redaction rules and controls reloading
type RulesConfig struct {
	Path     string        `yaml:"path" mapstructure:"path"`
	Watch    bool          `yaml:"watch" mapstructure:"watch"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" mapstructure:"level"`
	Format       string `yaml:"format" mapstructure:"format"` // json or console
	RedactFields bool   `yaml:"redact_fields" mapstructure:"redact_fields"`
	File         struct {
		Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
		Path       string `yaml:"path" mapstructure:"path"`
		MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
		MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
		Compress   bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// RateLimitConfig limits API requests per client IP
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Events   struct {
		BroadcastReloads     bool `yaml:"broadcast_reloads" mapstructure:"broadcast_reloads"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// RedisConfig enables fleet-wide rule distribution through Redis
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	URL            string `yaml:"url" mapstructure:"url"`
	Key            string `yaml:"key" mapstructure:"key"`
	Channel        string `yaml:"channel" mapstructure:"channel"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	// UseAsSource loads rules from Redis instead of rules.path
	UseAsSource bool `yaml:"use_as_source" mapstructure:"use_as_source"`
}

// AuditConfig records reload history in PostgreSQL
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Rules: RulesConfig{
			Path:     "configs/rules.json",
			Watch:    true,
			Debounce: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 600,
			Burst:          50,
		},
		WebSocket: WebSocketConfig{
			Enabled: false,
			Path:    "/ws",
		},
		Redis: RedisConfig{
			Enabled:        false,
			URL:            "redis://localhost:6379/0",
			Key:            "log-redactor:rules",
			Channel:        "log-redactor:reload",
			MaxConnections: 10,
		},
		Audit: AuditConfig{
			Enabled:         false,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
	}

	cfg.Logging.File.Path = "logs/redactor.log"
	cfg.Logging.File.MaxSize = 100 // MB
	cfg.Logging.File.MaxAge = 30   // days
	cfg.Logging.File.MaxBackups = 5
	cfg.Logging.File.Compress = true

	cfg.WebSocket.Events.BroadcastReloads = true
	cfg.WebSocket.Events.BroadcastSystem = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
