// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Controller ControllerConfig `mapstructure:"controller"`
	Polling    PollingConfig    `mapstructure:"polling"`
	App        AppConfig        `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
}

// RedisConfig represents the snapshot cache configuration
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	KeyTTL   time.Duration `mapstructure:"key_ttl"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ControllerConfig describes the machine controller and how to reach it
type ControllerConfig struct {
	MachineID       string        `mapstructure:"machine_id"`
	NodeNumber      int           `mapstructure:"node_number"`
	IPAddress       string        `mapstructure:"ip_address"`
	CncIPAddress    string        `mapstructure:"cnc_ip_address"`
	ProXPort        int           `mapstructure:"prox_port"`
	CncPort         int           `mapstructure:"cnc_port"`
	ProXVersion     int           `mapstructure:"prox_version"`
	Emulate         bool          `mapstructure:"emulate"`
	EmulatedVersion int           `mapstructure:"emulated_version"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	ReplyTimeout    time.Duration `mapstructure:"reply_timeout"`
	NoopCycle       time.Duration `mapstructure:"noop_cycle"`
	LogLevel        int           `mapstructure:"log_level"`
	ConnectionDelay time.Duration `mapstructure:"connection_delay"`
	Transport       string        `mapstructure:"transport"`
	Gateway         GatewayConfig `mapstructure:"gateway"`
	Serial          SerialConfig  `mapstructure:"serial"`
}

// GatewayConfig addresses the vendor library gateway over TCP
type GatewayConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	KeepAlive      bool          `mapstructure:"keep_alive"`
}

// SerialConfig represents the RS-232 gateway configuration
type SerialConfig struct {
	Port     string        `mapstructure:"port"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	StopBits int           `mapstructure:"stop_bits"`
	Parity   string        `mapstructure:"parity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PollingConfig drives the periodic refresh
type PollingConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	PersistSnapshots bool          `mapstructure:"persist_snapshots"`
	HistoryLimit     int           `mapstructure:"history_limit"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Transport names
const (
	TransportTCP      = "tcp"
	TransportSerial   = "serial"
	TransportEmulator = "emulator"
)

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, or from the search paths when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/makino-adapter")
	}

	// Environment variable support
	v.SetEnvPrefix("MAKINO_ADAPTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Defaults and environment are enough to run against a single controller
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if config.Controller.CncIPAddress == "" {
		config.Controller.CncIPAddress = config.Controller.IPAddress
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "makino_adapter")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "./migrations")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 5)
	v.SetDefault("redis.key_ttl", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Controller defaults
	v.SetDefault("controller.machine_id", "makino-1")
	v.SetDefault("controller.node_number", 8)
	v.SetDefault("controller.ip_address", "127.0.0.1")
	v.SetDefault("controller.prox_port", 11212)
	v.SetDefault("controller.cnc_port", 8193)
	v.SetDefault("controller.prox_version", 0)
	v.SetDefault("controller.emulate", false)
	v.SetDefault("controller.emulated_version", 6)
	v.SetDefault("controller.send_timeout", "10s")
	v.SetDefault("controller.reply_timeout", "10s")
	v.SetDefault("controller.noop_cycle", "120s")
	v.SetDefault("controller.log_level", 0)
	v.SetDefault("controller.connection_delay", "60s")
	v.SetDefault("controller.transport", TransportTCP)
	v.SetDefault("controller.gateway.host", "127.0.0.1")
	v.SetDefault("controller.gateway.port", 11300)
	v.SetDefault("controller.gateway.connect_timeout", "10s")
	v.SetDefault("controller.gateway.keep_alive", true)
	v.SetDefault("controller.serial.baud_rate", 115200)
	v.SetDefault("controller.serial.data_bits", 8)
	v.SetDefault("controller.serial.stop_bits", 1)
	v.SetDefault("controller.serial.parity", "none")
	v.SetDefault("controller.serial.timeout", "10s")

	// Polling defaults
	v.SetDefault("polling.enabled", true)
	v.SetDefault("polling.interval", "30s")
	v.SetDefault("polling.persist_snapshots", false)
	v.SetDefault("polling.history_limit", 50)

	// App defaults
	v.SetDefault("app.name", "makino-adapter")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	switch config.Controller.ProXVersion {
	case 0, 3, 5, 6:
	default:
		return fmt.Errorf("controller.prox_version must be one of 0, 3, 5, 6: got %d", config.Controller.ProXVersion)
	}
	switch config.Controller.EmulatedVersion {
	case 3, 5, 6:
	default:
		return fmt.Errorf("controller.emulated_version must be one of 3, 5, 6: got %d", config.Controller.EmulatedVersion)
	}

	switch config.Controller.Transport {
	case TransportTCP:
		if config.Controller.Gateway.Host == "" {
			return fmt.Errorf("controller.gateway.host is required for the tcp transport")
		}
	case TransportSerial:
		if config.Controller.Serial.Port == "" {
			return fmt.Errorf("controller.serial.port is required for the serial transport")
		}
	case TransportEmulator:
	default:
		return fmt.Errorf("controller.transport must be one of: %v",
			[]string{TransportTCP, TransportSerial, TransportEmulator})
	}

	if !config.Controller.Emulate && config.Controller.Transport != TransportEmulator && config.Controller.IPAddress == "" {
		return fmt.Errorf("controller.ip_address is required")
	}
	if config.Controller.ConnectionDelay < 0 {
		return fmt.Errorf("controller.connection_delay must not be negative")
	}
	if config.Polling.Enabled && config.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive")
	}
	if config.Polling.PersistSnapshots && !config.Database.Enabled {
		return fmt.Errorf("polling.persist_snapshots requires database.enabled")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// UsesEmulator reports whether the controller is served by the in-process emulator
func (c *ControllerConfig) UsesEmulator() bool {
	return c.Emulate || c.Transport == TransportEmulator
}
