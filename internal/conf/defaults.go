package conf

import "github.com/spf13/viper"

func defaultSettings() *Settings {
	return &Settings{
		Daemon: DaemonSettings{
			LogLevel: "info",
			LogPath:  "logs/undertone.log",
			Log: LogSettings{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Rotation:   RotationSize,
			},
			Store: StoreSettings{
				Driver: "sqlite",
				DSN:    "undertone.db",
			},
			Notify: NotifySettings{
				DeviceDisconnectThreshold: 3,
			},
			Metrics: MetricsSettings{
				Enabled: true,
				Addr:    "127.0.0.1:9597",
			},
			LevelMeterHz:     10,
			LevelHistorySize: 120,
		},
	}
}

// applyDefaults seeds viper with the same values defaultSettings returns,
// so a partially-specified config file only overrides what it sets.
func applyDefaults(v *viper.Viper) {
	d := defaultSettings()
	v.SetDefault("daemon.loglevel", d.Daemon.LogLevel)
	v.SetDefault("daemon.logpath", d.Daemon.LogPath)
	v.SetDefault("daemon.log.maxsizemb", d.Daemon.Log.MaxSizeMB)
	v.SetDefault("daemon.log.maxbackups", d.Daemon.Log.MaxBackups)
	v.SetDefault("daemon.log.maxagedays", d.Daemon.Log.MaxAgeDays)
	v.SetDefault("daemon.log.rotation", string(d.Daemon.Log.Rotation))
	v.SetDefault("daemon.store.driver", d.Daemon.Store.Driver)
	v.SetDefault("daemon.store.dsn", d.Daemon.Store.DSN)
	v.SetDefault("daemon.notify.devicedisconnectthreshold", d.Daemon.Notify.DeviceDisconnectThreshold)
	v.SetDefault("daemon.metrics.enabled", d.Daemon.Metrics.Enabled)
	v.SetDefault("daemon.metrics.addr", d.Daemon.Metrics.Addr)
	v.SetDefault("daemon.levelmeterhz", d.Daemon.LevelMeterHz)
	v.SetDefault("daemon.levelhistorysize", d.Daemon.LevelHistorySize)
}
