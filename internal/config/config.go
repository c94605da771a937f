// Package config is the root configuration surface: one Viper-backed
// singleton, loaded once via Load and read everywhere via Get, the same
// pattern the teacher uses for its own config singleton.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Config is the root configuration structure for browseragent.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Network  NetworkConfig  `mapstructure:"network"`
	CDP      CDPConfig      `mapstructure:"cdp"`
	Humanoid HumanoidConfig `mapstructure:"humanoid"`
}

// ColorConfig defines the color settings for different log levels, used
// for console output readability.
type ColorConfig struct {
	Debug  string `mapstructure:"debug"`
	Info   string `mapstructure:"info"`
	Warn   string `mapstructure:"warn"`
	Error  string `mapstructure:"error"`
	DPanic string `mapstructure:"dpanic"`
	Panic  string `mapstructure:"panic"`
	Fatal  string `mapstructure:"fatal"`
}

// LoggerConfig holds all configuration for internal/observability.
type LoggerConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	AddSource   bool        `mapstructure:"add_source"`
	ServiceName string      `mapstructure:"service_name"`
	LogFile     string      `mapstructure:"log_file"`
	MaxSize     int         `mapstructure:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups"`
	MaxAge      int         `mapstructure:"max_age"`
	Compress    bool        `mapstructure:"compress"`
	Colors      ColorConfig `mapstructure:"colors"`
}

// BrowserConfig holds settings for Chrome discovery/launch and state
// collection, mirroring internal/facade.BrowserConfig's enumerated surface.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	PageLoadTimeout   time.Duration `mapstructure:"page_load_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout"`
	NetworkIdleWindow time.Duration `mapstructure:"network_idle_timeout"`
	ScreenshotQuality int           `mapstructure:"screenshot_quality"`
	ScreenshotFormat  string        `mapstructure:"screenshot_format"`
	UserDataDir       string        `mapstructure:"user_data_dir"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir"`
	Debug             bool          `mapstructure:"debug"`
}

// ProxyConfig optionally routes the discovery/launch HTTP client through an
// upstream proxy.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// NetworkConfig holds settings for the HTTP discovery client
// (internal/httpdiscover / internal/network).
type NetworkConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors"`
	Proxy           ProxyConfig   `mapstructure:"proxy"`
}

// CDPConfig holds settings for the multiplexed CDP client
// (internal/cdpclient / internal/cdptransport).
type CDPConfig struct {
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
	AutoEnable      []string      `mapstructure:"auto_enable_domains"`
}

// HumanoidConfig tunes the cursor-trajectory engine (internal/humanoid).
type HumanoidConfig struct {
	Seed               int64   `mapstructure:"seed"`
	DriftAmplitude     float64 `mapstructure:"drift_amplitude"`
	TremorAmplitude    float64 `mapstructure:"tremor_amplitude"`
	MinSteps           int     `mapstructure:"min_steps"`
	MaxSteps           int     `mapstructure:"max_steps"`
}

// SetDefaults populates v with this module's defaults before a config file
// or environment variables are layered on top.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "browseragent")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.host", "localhost")
	v.SetDefault("browser.port", 9222)
	v.SetDefault("browser.page_load_timeout", "15s")
	v.SetDefault("browser.action_timeout", "5s")
	v.SetDefault("browser.network_idle_timeout", "500ms")
	v.SetDefault("browser.screenshot_quality", 80)
	v.SetDefault("browser.screenshot_format", "jpeg")

	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.ignore_tls_errors", false)

	v.SetDefault("cdp.command_timeout", "10s")
	v.SetDefault("cdp.connect_timeout", "10s")
	v.SetDefault("cdp.connect_retries", 10)
	v.SetDefault("cdp.auto_enable_domains", []string{"DOM", "Page", "Network", "Runtime", "Accessibility", "DOMSnapshot", "Overlay"})

	v.SetDefault("humanoid.drift_amplitude", 6.0)
	v.SetDefault("humanoid.tremor_amplitude", 1.1)
	v.SetDefault("humanoid.min_steps", 6)
	v.SetDefault("humanoid.max_steps", 28)
}

// Validate checks invariants that can't be expressed as Viper defaults.
func (c Config) Validate() error {
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser.viewport_width and browser.viewport_height must be positive")
	}
	if c.Browser.Port <= 0 {
		return fmt.Errorf("browser.port must be positive")
	}
	if c.Browser.ScreenshotFormat != "jpeg" && c.Browser.ScreenshotFormat != "png" {
		return fmt.Errorf("browser.screenshot_format must be %q or %q, got %q", "jpeg", "png", c.Browser.ScreenshotFormat)
	}
	return nil
}

// Load initializes the configuration singleton from v. Only the first call
// takes effect; subsequent calls are no-ops that return the first call's
// error, if any.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			loadErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Set installs cfg as the singleton directly, bypassing Viper — used by
// tests and by callers that already have a fully-built Config.
func Set(cfg *Config) {
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("configuration not initialized; call config.Load() or config.Set() first")
	}
	return instance
}
