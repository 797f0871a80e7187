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
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Firmware  FirmwareConfig  `mapstructure:"firmware"`
	Power     PowerConfig     `mapstructure:"power"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SecurityConfig represents security configuration for the local API
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SerialConfig represents the default serial link configuration
type SerialConfig struct {
	Port              string        `mapstructure:"port"`
	BaudRate          int           `mapstructure:"baud_rate"`
	DataBits          int           `mapstructure:"data_bits"`
	StopBits          float64       `mapstructure:"stop_bits"`
	Parity            string        `mapstructure:"parity"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	RTS               bool          `mapstructure:"rts"`
	DTR               bool          `mapstructure:"dtr"`
	AutoReconnect     bool          `mapstructure:"auto_reconnect"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

// TelemetryConfig represents telemetry scheduler configuration
type TelemetryConfig struct {
	TimeEnabled         bool          `mapstructure:"time_enabled"`
	APIEnabled          bool          `mapstructure:"api_enabled"`
	PerformanceEnabled  bool          `mapstructure:"performance_enabled"`
	TimeInterval        time.Duration `mapstructure:"time_interval"`
	APIInterval         time.Duration `mapstructure:"api_interval"`
	PerformanceInterval time.Duration `mapstructure:"performance_interval"`
	APIInitialDelay     time.Duration `mapstructure:"api_initial_delay"`
	CommandSpacing      time.Duration `mapstructure:"command_spacing"`
	GPUIndex            int           `mapstructure:"gpu_index"`
}

// FirmwareConfig represents firmware update configuration
type FirmwareConfig struct {
	ToolPath          string        `mapstructure:"tool_path"`
	Chip              string        `mapstructure:"chip"`
	SpinnerThreshold  time.Duration `mapstructure:"spinner_threshold"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	PostFlashBaud     int           `mapstructure:"post_flash_baud"`
}

// PowerConfig represents host power notification configuration
type PowerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/superkey")

	// Environment variable support
	viper.SetEnvPrefix("SUPERKEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file; defaults alone are a valid configuration
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", "8230")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// Serial defaults; USB CDC devices need DTR asserted after open
	viper.SetDefault("serial.baud_rate", 1000000)
	viper.SetDefault("serial.data_bits", 8)
	viper.SetDefault("serial.stop_bits", 1)
	viper.SetDefault("serial.parity", "none")
	viper.SetDefault("serial.read_timeout", "100ms")
	viper.SetDefault("serial.write_timeout", "500ms")
	viper.SetDefault("serial.rts", false)
	viper.SetDefault("serial.dtr", true)
	viper.SetDefault("serial.auto_reconnect", true)
	viper.SetDefault("serial.reconnect_interval", "2s")

	// Telemetry defaults
	viper.SetDefault("telemetry.time_enabled", true)
	viper.SetDefault("telemetry.api_enabled", true)
	viper.SetDefault("telemetry.performance_enabled", true)
	viper.SetDefault("telemetry.time_interval", "1s")
	viper.SetDefault("telemetry.api_interval", "30s")
	viper.SetDefault("telemetry.performance_interval", "5s")
	viper.SetDefault("telemetry.api_initial_delay", "5s")
	viper.SetDefault("telemetry.command_spacing", "5ms")
	viper.SetDefault("telemetry.gpu_index", 0)

	// Firmware defaults
	viper.SetDefault("firmware.chip", "SF32LB52")
	viper.SetDefault("firmware.spinner_threshold", "500ms")
	viper.SetDefault("firmware.reconnect_attempts", 5)
	viper.SetDefault("firmware.reconnect_delay", "1s")
	viper.SetDefault("firmware.post_flash_baud", 1000000)

	// Power defaults
	viper.SetDefault("power.enabled", true)

	// App defaults
	viper.SetDefault("app.name", "superkey-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	// Validate environment
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

	// Validate logging level
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

	if config.Serial.DataBits < 5 || config.Serial.DataBits > 8 {
		return fmt.Errorf("serial.data_bits must be between 5 and 8")
	}
	switch config.Serial.StopBits {
	case 1, 1.5, 2:
	default:
		return fmt.Errorf("serial.stop_bits must be 1, 1.5 or 2")
	}
	switch config.Serial.Parity {
	case "none", "even", "odd", "mark", "space":
	default:
		return fmt.Errorf("serial.parity must be one of: none, even, odd, mark, space")
	}

	if config.Firmware.ReconnectAttempts < 1 {
		return fmt.Errorf("firmware.reconnect_attempts must be at least 1")
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

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
