// Package config loads the controller's YAML configuration file. The core
// components never read configuration themselves; Load produces one fully
// materialized Config value that main wires into every constructor.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigError marks a fatal startup configuration problem — the only error
// class in the system that aborts the process.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// LocationConfig is the fixed geographic point the forecast client queries.
type LocationConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// WeatherConfig controls the forecast client.
type WeatherConfig struct {
	UserAgent           string `yaml:"user_agent"`
	PollIntervalMinutes int    `yaml:"poll_interval_minutes"`
}

// DatabaseConfig locates the embedded database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WebConfig controls the HTTP surface bind address.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RelayPinConfig describes one GPIO-backed relay output.
type RelayPinConfig struct {
	GPIOPin    int  `yaml:"gpio_pin"`
	ActiveHigh bool `yaml:"active_high"`
}

// RelaysConfig names the two mirrored relay lines. Nil when unconfigured,
// in which case the controller falls back to the in-memory stub relay.
type RelaysConfig struct {
	HeatPump       RelayPinConfig `yaml:"heat_pump"`
	CirculationPump RelayPinConfig `yaml:"circulation_pump"`
}

// GroundLoopConfig is descriptive metadata about the physical installation;
// it does not influence control logic, and no component reads it.
type GroundLoopConfig struct {
	Loops        int     `yaml:"loops"`
	TotalLengthM float64 `yaml:"total_length_m"`
	PipeOuterMM  float64 `yaml:"pipe_outer_mm"`
	PipeWallMM   float64 `yaml:"pipe_wall_mm"`
}

// TankConfig is descriptive metadata about the buffer tank.
type TankConfig struct {
	VolumeLiters float64 `yaml:"volume_liters"`
}

// BackupConfig configures the optional off-site snapshot uploader. Absent
// (zero value Bucket) disables the component entirely.
type BackupConfig struct {
	Bucket          string `yaml:"bucket"`
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

// Enabled reports whether enough backup configuration is present to start
// the uploader.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Config is the fully materialized configuration handed to every
// constructor at bootstrap.
type Config struct {
	Location   LocationConfig          `yaml:"location"`
	Weather    WeatherConfig           `yaml:"weather"`
	Database   DatabaseConfig          `yaml:"database"`
	Web        WebConfig               `yaml:"web"`
	Relays     *RelaysConfig           `yaml:"relays"`
	Sensors    map[string]SensorConfig `yaml:"sensors"`
	GroundLoop *GroundLoopConfig       `yaml:"ground_loop"`
	Tank       *TankConfig             `yaml:"tank"`
	Backup     BackupConfig            `yaml:"backup"`
}

// SensorConfig names the one-wire device id for a logical sensor.
type SensorConfig struct {
	ID string `yaml:"id"`
}

// Load reads configPath (or, if empty, tries "config.yaml" then
// "config.example.yaml" in the working directory, mirroring the original
// installation's lookup order), overlaying a local .env file if present for
// secrets such as backup bucket credentials.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	path := configPath
	if path == "" {
		for _, candidate := range []string{"config.yaml", "config.example.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil, &ConfigError{Msg: "no config file found: expected config.yaml or config.example.yaml"}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("failed to read config file %s: %v", path, err)}
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("failed to parse config file %s: %v", path, err)}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Weather:  WeatherConfig{PollIntervalMinutes: 30},
		Database: DatabaseConfig{Path: "geoloop.db"},
		Web:      WebConfig{Host: "0.0.0.0", Port: 8000},
	}
}

// validate enforces the only two fields the core cannot run without; every
// other field has a documented default or is optional.
func (c *Config) validate() error {
	if c.Location.Lat == 0 && c.Location.Lon == 0 {
		return &ConfigError{Msg: "config: location.lat and location.lon are required"}
	}
	if c.Weather.UserAgent == "" {
		return &ConfigError{Msg: "config: weather.user_agent is required"}
	}
	return nil
}

// SensorIDs flattens the configured sensor map into the plain
// name-to-device-id map the sensor registry expects.
func (c *Config) SensorIDs() map[string]string {
	out := make(map[string]string, len(c.Sensors))
	for name, sc := range c.Sensors {
		out[name] = sc.ID
	}
	return out
}
