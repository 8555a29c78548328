// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable viper consults,
// e.g. GUESTWIN_RENDERER_DOCUMENT_URL.
const EnvPrefix = "GUESTWIN"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Renderer() RendererConfig
	Transport() TransportConfig
	Host() HostConfig

	// Renderer Setters
	SetRendererDocumentURL(string)
	SetRendererHiddenPage(bool)
	SetRendererOpenerID(int64)

	// Transport Setters
	SetTransportURL(string)

	// Host Setters
	SetHostListenAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	RendererCfg  RendererConfig  `mapstructure:"renderer" yaml:"renderer"`
	TransportCfg TransportConfig `mapstructure:"transport" yaml:"transport"`
	HostCfg      HostConfig      `mapstructure:"host" yaml:"host"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Renderer() RendererConfig   { return c.RendererCfg }
func (c *Config) Transport() TransportConfig { return c.TransportCfg }
func (c *Config) Host() HostConfig           { return c.HostCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRendererDocumentURL(u string) { c.RendererCfg.DocumentURL = u }
func (c *Config) SetRendererHiddenPage(b bool)    { c.RendererCfg.HiddenPage = b }
func (c *Config) SetRendererOpenerID(id int64)    { c.RendererCfg.OpenerID = id }
func (c *Config) SetTransportURL(u string)        { c.TransportCfg.URL = u }
func (c *Config) SetHostListenAddr(a string)      { c.HostCfg.ListenAddr = a }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// RendererConfig carries the launch-time state of the local page: where the
// document lives, whether it starts hidden and who opened it.
type RendererConfig struct {
	// DocumentURL is the location of the local document. Relative URLs passed
	// to open() or assigned to a remote location resolve against it.
	DocumentURL string `mapstructure:"document_url" yaml:"document_url"`
	// HiddenPage mirrors the --hidden-page launch flag.
	HiddenPage bool `mapstructure:"hidden_page" yaml:"hidden_page"`
	// OpenerID is the identifier of the window that opened this page, or -1.
	OpenerID int64 `mapstructure:"opener_id" yaml:"opener_id"`
	// GuestInstance is true when the page is embedded as a guest; such pages
	// keep the engine's own window.close behavior.
	GuestInstance    bool          `mapstructure:"guest_instance" yaml:"guest_instance"`
	RoundTripTimeout time.Duration `mapstructure:"round_trip_timeout" yaml:"round_trip_timeout"`
}

// TransportConfig configures the websocket link between a renderer and its host.
type TransportConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit" yaml:"read_limit"`
	// SendRate caps outbound frames per second. Zero disables the limiter.
	SendRate  float64 `mapstructure:"send_rate" yaml:"send_rate"`
	SendBurst int     `mapstructure:"send_burst" yaml:"send_burst"`
}

// HostConfig configures the reference host that owns the windows.
type HostConfig struct {
	ListenAddr    string `mapstructure:"listen_addr" yaml:"listen_addr"`
	FirstWindowID int64  `mapstructure:"first_window_id" yaml:"first_window_id"`
	MaxWindows    int    `mapstructure:"max_windows" yaml:"max_windows"`
	BlankURL      string `mapstructure:"blank_url" yaml:"blank_url"`
	// ConfirmResult is what confirm() dialogs answer; the reference host has no UI.
	ConfirmResult bool `mapstructure:"confirm_result" yaml:"confirm_result"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "guestwin")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Renderer --
	v.SetDefault("renderer.document_url", "about:blank")
	v.SetDefault("renderer.hidden_page", false)
	v.SetDefault("renderer.opener_id", -1)
	v.SetDefault("renderer.guest_instance", false)
	v.SetDefault("renderer.round_trip_timeout", "10s")

	// -- Transport --
	v.SetDefault("transport.url", "ws://127.0.0.1:7420/ipc")
	v.SetDefault("transport.handshake_timeout", "5s")
	v.SetDefault("transport.write_timeout", "5s")
	v.SetDefault("transport.read_limit", 4<<20)
	v.SetDefault("transport.send_rate", 0)
	v.SetDefault("transport.send_burst", 64)

	// -- Host --
	v.SetDefault("host.listen_addr", "127.0.0.1:7420")
	v.SetDefault("host.first_window_id", 1)
	v.SetDefault("host.max_windows", 64)
	v.SetDefault("host.blank_url", "about:blank")
	v.SetDefault("host.confirm_result", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// Environment variables override file values for every known key.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.RendererCfg.DocumentURL == "" {
		return fmt.Errorf("renderer.document_url is a required configuration field")
	}
	if c.RendererCfg.OpenerID < -1 {
		return fmt.Errorf("renderer.opener_id must be -1 (none) or a window identifier")
	}
	if c.RendererCfg.RoundTripTimeout < 0 {
		return fmt.Errorf("renderer.round_trip_timeout must not be negative")
	}
	if c.TransportCfg.SendRate < 0 {
		return fmt.Errorf("transport.send_rate must not be negative")
	}
	if c.TransportCfg.SendRate > 0 && c.TransportCfg.SendBurst <= 0 {
		return fmt.Errorf("transport.send_burst must be a positive integer when send_rate is set")
	}
	if err := c.HostCfg.Validate(); err != nil {
		return fmt.Errorf("host configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the host settings.
func (h *HostConfig) Validate() error {
	if h.FirstWindowID < 1 {
		// Zero is falsy on the wire and would read as a refused open.
		return fmt.Errorf("first_window_id must be greater than 0")
	}
	if h.MaxWindows <= 0 {
		return fmt.Errorf("max_windows must be a positive integer")
	}
	if h.BlankURL == "" {
		return fmt.Errorf("blank_url must not be empty")
	}
	return nil
}
