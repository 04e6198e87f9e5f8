package conf

import "github.com/spf13/viper"

// envBinding mirrors the corpus' env-binding table: a viper config key
// paired with the environment variable that overrides it.
type envBinding struct {
	ConfigKey string
	EnvVar    string
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"daemon.socketpath", "UNDERTONE_SOCKET_PATH"},
		{"daemon.targetdevicename", "UNDERTONE_TARGET_DEVICE"},
		{"daemon.loglevel", "UNDERTONE_LOG_LEVEL"},
		{"daemon.logpath", "UNDERTONE_LOG_PATH"},
		{"daemon.store.driver", "UNDERTONE_STORE_DRIVER"},
		{"daemon.store.dsn", "UNDERTONE_STORE_DSN"},
		{"daemon.sentry.dsn", "UNDERTONE_SENTRY_DSN"},
		{"daemon.metrics.addr", "UNDERTONE_METRICS_ADDR"},
	}
}

// bindEnv wires each binding's environment variable into viper so it
// takes precedence over the config file but not over explicit flags.
func bindEnv(v *viper.Viper) {
	for _, b := range getEnvBindings() {
		_ = v.BindEnv(b.ConfigKey, b.EnvVar)
	}
}
