package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. REDACTOR_RULES_PATH
const EnvPrefix = "REDACTOR"

// Loader reads the daemon configuration. Each Loader owns its own viper
// instance, so tests and multiple daemons do not share global state.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a configuration loader
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()
	setDefaults(l.v, config)

	// Configure viper
	l.v.SetConfigName("redactor")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	l.v.AddConfigPath("./configs")
	l.v.AddConfigPath("/etc/log-redactor/")
	l.v.AddConfigPath("$HOME/.log-redactor/")

	// Environment variable overrides
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// Use specific config file if provided
	if configPath != "" {
		l.v.SetConfigFile(configPath)
	}

	// Read configuration
	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ConfigFile returns the file the configuration was read from, if any
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// setDefaults registers every default with viper so that environment
// variables can override keys that are absent from the config file
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", c.Server.IdleTimeout)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.trusted_proxies", c.Server.TrustedProxies)

	v.SetDefault("rules.path", c.Rules.Path)
	v.SetDefault("rules.watch", c.Rules.Watch)
	v.SetDefault("rules.debounce", c.Rules.Debounce)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.redact_fields", c.Logging.RedactFields)
	v.SetDefault("logging.file.enabled", c.Logging.File.Enabled)
	v.SetDefault("logging.file.path", c.Logging.File.Path)
	v.SetDefault("logging.file.max_size", c.Logging.File.MaxSize)
	v.SetDefault("logging.file.max_age", c.Logging.File.MaxAge)
	v.SetDefault("logging.file.max_backups", c.Logging.File.MaxBackups)
	v.SetDefault("logging.file.compress", c.Logging.File.Compress)

	v.SetDefault("rate_limit.enabled", c.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_min", c.RateLimit.RequestsPerMin)
	v.SetDefault("rate_limit.burst", c.RateLimit.Burst)

	v.SetDefault("websocket.enabled", c.WebSocket.Enabled)
	v.SetDefault("websocket.path", c.WebSocket.Path)
	v.SetDefault("websocket.username", c.WebSocket.Username)
	v.SetDefault("websocket.password", c.WebSocket.Password)
	v.SetDefault("websocket.events.broadcast_reloads", c.WebSocket.Events.BroadcastReloads)
	v.SetDefault("websocket.events.broadcast_system", c.WebSocket.Events.BroadcastSystem)
	v.SetDefault("websocket.events.broadcast_connections", c.WebSocket.Events.BroadcastConnections)

	v.SetDefault("redis.enabled", c.Redis.Enabled)
	v.SetDefault("redis.url", c.Redis.URL)
	v.SetDefault("redis.key", c.Redis.Key)
	v.SetDefault("redis.channel", c.Redis.Channel)
	v.SetDefault("redis.max_connections", c.Redis.MaxConnections)
	v.SetDefault("redis.use_as_source", c.Redis.UseAsSource)

	v.SetDefault("audit.enabled", c.Audit.Enabled)
	v.SetDefault("audit.database_url", c.Audit.DatabaseURL)
	v.SetDefault("audit.max_open_conns", c.Audit.MaxOpenConns)
	v.SetDefault("audit.max_idle_conns", c.Audit.MaxIdleConns)
	v.SetDefault("audit.conn_max_lifetime", c.Audit.ConnMaxLifetime)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid server max_body_bytes: %d", config.Server.MaxBodyBytes)
	}

	if config.Rules.Path == "" && !(config.Redis.Enabled && config.Redis.UseAsSource) {
		return fmt.Errorf("rules.path is required unless redis.use_as_source is set")
	}

	if config.Rules.Debounce < 0 {
		return fmt.Errorf("invalid rules debounce: %s", config.Rules.Debounce)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerMin <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: requests_per_min and burst must be positive")
	}

	if config.WebSocket.Enabled && (config.WebSocket.Username == "" || config.WebSocket.Password == "") {
		return fmt.Errorf("websocket requires username and password")
	}

	if config.Redis.UseAsSource && !config.Redis.Enabled {
		return fmt.Errorf("redis.use_as_source requires redis.enabled")
	}

	if config.Redis.Enabled && (config.Redis.URL == "" || config.Redis.Key == "" || config.Redis.Channel == "") {
		return fmt.Errorf("redis requires url, key and channel")
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit requires database_url")
	}

	return nil
}

// Watch starts watching the configuration file for changes. Invalid
// configurations are reported through onError and otherwise ignored.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := l.v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to unmarshal config %s: %w", e.Name, err))
			}
			return
		}

		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("invalid configuration %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	l.v.WatchConfig()
}
