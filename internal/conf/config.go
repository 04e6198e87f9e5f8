// Package conf loads and exposes Undertone's daemon configuration: a
// cobra root command layered over viper, producing a typed Settings
// struct, the way the corpus layers its own CLI/config stack.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// LogRotation selects how the daemon log file is rotated.
type LogRotation string

const (
	RotationSize   LogRotation = "size"
	RotationDaily  LogRotation = "daily"
	RotationWeekly LogRotation = "weekly"
)

// LogSettings configures the rotating file logger (§A.2).
type LogSettings struct {
	MaxSizeMB  int         `mapstructure:"maxsizemb"`
	MaxBackups int         `mapstructure:"maxbackups"`
	MaxAgeDays int         `mapstructure:"maxagedays"`
	Rotation   LogRotation `mapstructure:"rotation"`
}

// StoreSettings configures the persistent store (§B.4).
type StoreSettings struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "mysql"
	DSN    string `mapstructure:"dsn"`    // file path for sqlite, DSN for mysql
}

// NotifySettings configures operator notifications (§B.7).
type NotifySettings struct {
	URLs                      []string `mapstructure:"urls"` // shoutrrr service URLs
	DeviceDisconnectThreshold int      `mapstructure:"devicedisconnectthreshold"`
}

// SentrySettings configures optional error telemetry (§A.3).
type SentrySettings struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsSettings configures the loopback diagnostics HTTP listener (§B.6).
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DaemonSettings is the root of Undertone's configuration tree.
type DaemonSettings struct {
	SocketPath       string          `mapstructure:"socketpath"`
	TargetDeviceName string          `mapstructure:"targetdevicename"`
	LogLevel         string          `mapstructure:"loglevel"`
	LogPath          string          `mapstructure:"logpath"`
	Log              LogSettings     `mapstructure:"log"`
	Store            StoreSettings   `mapstructure:"store"`
	Notify           NotifySettings  `mapstructure:"notify"`
	Sentry           SentrySettings  `mapstructure:"sentry"`
	Metrics          MetricsSettings `mapstructure:"metrics"`
	LevelMeterHz     float64         `mapstructure:"levelmeterhz"`
	LevelHistorySize int             `mapstructure:"levelhistorysize"`
}

// Settings is the full typed view of configuration.
type Settings struct {
	Daemon DaemonSettings `mapstructure:"daemon"`
}

var (
	mu       sync.RWMutex
	settings *Settings
)

// Setting returns the process-wide configuration, loading defaults if
// Load has not yet been called. Safe for concurrent use.
func Setting() *Settings {
	mu.RLock()
	s := settings
	mu.RUnlock()
	if s != nil {
		return s
	}
	mu.Lock()
	defer mu.Unlock()
	if settings == nil {
		settings = defaultSettings()
	}
	return settings
}

// SettingsIfLoaded returns the configuration only if Load has already run,
// and nil otherwise — used by packages (like logging) that must not force
// a default-settings bootstrap before the daemon has decided on its own.
func SettingsIfLoaded() *Settings {
	mu.RLock()
	defer mu.RUnlock()
	return settings
}

// Load reads configuration from the given file path (or the default XDG
// location if empty), applies UNDERTONE_-prefixed environment overrides,
// and stores the result for Setting() to return.
func Load(configFilePath string) (*Settings, error) {
	v := viper.New()
	applyDefaults(v)

	if configFilePath == "" {
		configFilePath = defaultConfigPath()
	}
	v.SetConfigFile(configFilePath)
	v.SetConfigType("yaml")

	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configFilePath, err)
			}
		}
		// Missing config file is fine — defaults + env apply.
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}

	mu.Lock()
	settings = s
	mu.Unlock()

	return s, nil
}

func defaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "undertone", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "undertone.yaml"
	}
	return filepath.Join(home, ".config", "undertone", "config.yaml")
}

// SocketPath resolves the IPC socket path per spec.md §6: the configured
// path, or $XDG_RUNTIME_DIR/undertone/daemon.sock, falling back to
// /run/user/{uid}/undertone/daemon.sock.
func (s *Settings) SocketPath() string {
	if s.Daemon.SocketPath != "" {
		return s.Daemon.SocketPath
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "undertone", "daemon.sock")
	}
	return fmt.Sprintf("/run/user/%d/undertone/daemon.sock", os.Getuid())
}
