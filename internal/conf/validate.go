package conf

import "fmt"

// Validate rejects a Settings value that would otherwise fail in a
// confusing way deep inside the store or server-runtime packages.
func Validate(s *Settings) error {
	switch s.Daemon.Store.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("daemon.store.driver: unsupported driver %q (want sqlite or mysql)", s.Daemon.Store.Driver)
	}
	if s.Daemon.Store.DSN == "" {
		return fmt.Errorf("daemon.store.dsn: must not be empty")
	}
	if s.Daemon.LevelMeterHz < 0 {
		return fmt.Errorf("daemon.levelmeterhz: must not be negative")
	}
	return nil
}
