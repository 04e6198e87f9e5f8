package errors

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

var (
	telemetryMu      sync.RWMutex
	telemetryEnabled bool
)

// InitTelemetry wires Sentry reporting for Fatal and Invariant category
// errors. It is a no-op if dsn is empty — telemetry is purely additive and
// never required for correctness, matching the corpus' optional reporting.
func InitTelemetry(dsn, release string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: release}); err != nil {
		return err
	}
	telemetryMu.Lock()
	telemetryEnabled = true
	telemetryMu.Unlock()
	return nil
}

// Report sends err to Sentry if telemetry is enabled and the error's
// category warrants operator attention (Fatal or Invariant).
func Report(err error) {
	if err == nil {
		return
	}
	telemetryMu.RLock()
	enabled := telemetryEnabled
	telemetryMu.RUnlock()
	if !enabled {
		return
	}
	switch CategoryOf(err) {
	case CategoryFatal, CategoryInvariant:
		sentry.CaptureException(err)
	}
}

// FlushTelemetry blocks briefly to let Sentry finish delivering queued
// events; call on daemon shutdown.
func FlushTelemetry() {
	telemetryMu.RLock()
	enabled := telemetryEnabled
	telemetryMu.RUnlock()
	if enabled {
		sentry.Flush(sentryFlushTimeout)
	}
}
