package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// WeatherConfig describes where the forecast comes from.
type WeatherConfig struct {
	// URL is the forecast endpoint; empty means weatherapi.com.
	URL      string `yaml:"url,omitempty" json:"url,omitempty"`
	APIKey   string `yaml:"api_key" json:"-"`
	Location string `yaml:"location" json:"location"`
	// Day selects the sun (true) or moon (false) icon for clear skies.
	Day *bool `yaml:"day" json:"day"`
	// CacheDir keeps the last good response for offline fallback.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`

	TimeoutSeconds    int `yaml:"timeout_seconds" json:"timeout_seconds"`
	Retries           int `yaml:"retries" json:"retries"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds" json:"retry_delay_seconds"`
}

// PanelConfig describes how the panel is wired. Pin names are periph.io
// gpioreg names such as "GPIO25".
type PanelConfig struct {
	SPIPort       string `yaml:"spi_port" json:"spi_port"`
	SPIHz         int64  `yaml:"spi_hz" json:"spi_hz"`
	DCPin         string `yaml:"dc_pin" json:"dc_pin"`
	BusyPin       string `yaml:"busy_pin" json:"busy_pin"`
	RSTPin        string `yaml:"rst_pin" json:"rst_pin"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
	// LUT is "full" or "partial".
	LUT string `yaml:"lut" json:"lut"`
}

// AssetsConfig points at the glyph atlas and icon rasters.
type AssetsConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// BatteryConfig enables the I2C battery monitor.
type BatteryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	I2CBus  string `yaml:"i2c_bus" json:"i2c_bus"`
	I2CAddr uint16 `yaml:"i2c_addr" json:"i2c_addr"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API. Empty disables
	// the server.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a standard 5-field cron schedule, e.g. "*/15 * * * *".
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// StatePath is where glyph rotation and the last drawn forecast are kept.
	StatePath string `yaml:"state_path" json:"state_path"`

	// DumpDir, if set, receives a PNG of every rendered frame.
	DumpDir string `yaml:"dump_dir,omitempty" json:"dump_dir,omitempty"`

	Weather WeatherConfig `yaml:"weather" json:"weather"`
	Panel   PanelConfig   `yaml:"panel" json:"panel"`
	Assets  AssetsConfig  `yaml:"assets" json:"assets"`
	Battery BatteryConfig `yaml:"battery" json:"battery"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration. The pins match
// the usual Raspberry Pi e-paper HAT wiring.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StatePath == "" {
		c.StatePath = "./var/state.yaml"
	}

	w := &c.Weather
	if w.Day == nil {
		day := true
		w.Day = &day
	}
	if w.TimeoutSeconds <= 0 {
		w.TimeoutSeconds = 15
	}
	if w.Retries <= 0 {
		w.Retries = 5
	}
	if w.RetryDelaySeconds == 0 {
		w.RetryDelaySeconds = 10
	}

	p := &c.Panel
	if p.SPIHz <= 0 {
		p.SPIHz = 2_000_000
	}
	if p.DCPin == "" {
		p.DCPin = "GPIO25"
	}
	if p.BusyPin == "" {
		p.BusyPin = "GPIO24"
	}
	if p.RSTPin == "" {
		p.RSTPin = "GPIO17"
	}
	if p.BusyTimeoutMS == 0 {
		p.BusyTimeoutMS = 10_000
	}
	switch p.LUT {
	case "full", "partial":
	default:
		p.LUT = "full"
	}

	if c.Assets.Dir == "" {
		c.Assets.Dir = "./assets"
	}
	if c.Battery.I2CAddr == 0 {
		c.Battery.I2CAddr = 0x57
	}
}

// Validate reports settings that cannot work. It assumes Normalize ran.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if c.Weather.Location == "" {
		errs = append(errs, errors.New("weather.location is empty"))
	}
	if c.Weather.APIKey == "" && c.Weather.URL == "" {
		errs = append(errs, errors.New("weather.api_key is empty"))
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		errs = append(errs, errors.New("basic_auth.username is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsDay reports the configured day flag; unset means day.
func (w WeatherConfig) IsDay() bool {
	return w.Day == nil || *w.Day
}

// RetryDelay is RetryDelaySeconds as a duration. Negative values mean no
// delay.
func (w WeatherConfig) RetryDelay() time.Duration {
	if w.RetryDelaySeconds < 0 {
		return 0
	}
	return time.Duration(w.RetryDelaySeconds) * time.Second
}

// Timeout is TimeoutSeconds as a duration.
func (w WeatherConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// BusyTimeout converts BusyTimeoutMS; negative values mean no limit.
func (p PanelConfig) BusyTimeout() time.Duration {
	return time.Duration(p.BusyTimeoutMS) * time.Millisecond
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path, atomically
// and with 0600 permissions since it holds the API key.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".epdweather-config-*.tmp")
}

// WriteFileAtomic writes data to a temp file next to path, fsyncs it and
// renames it over path. The parent directory is created (0700) if needed and
// the final file is 0600.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
