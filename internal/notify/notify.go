// Package notify wires shoutrrr to the daemon's two operator-facing
// conditions (spec.md §B.7): entering terminal Error state, and
// DeviceDisconnected persisting across a configurable number of
// reconciliation cycles. Grounded on the corpus' notification push
// dispatcher's Shoutrrr backend (internal/notification/push_shoutrrr_test.go)
// for the "one URL, fire-and-log-failure" shape, narrowed from that
// package's full retry/circuit-breaker/dedup machinery since Undertone
// fires at most a few times per day rather than per-detection.
package notify

import (
	"fmt"
	"time"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/undertone-audio/undertone/internal/logging"
)

// Notifier sends operator-facing messages through a configured shoutrrr
// URL. A zero-value Notifier (no URL configured) is a deliberate no-op,
// matching spec.md §B.7's "disabled when no notify URL is configured."
type Notifier struct {
	url string
}

// New constructs a Notifier. An empty url disables sending; Notify then
// becomes a no-op rather than an error, since notification is optional.
func New(url string) *Notifier {
	return &Notifier{url: url}
}

// Enabled reports whether a notify URL is configured.
func (n *Notifier) Enabled() bool { return n.url != "" }

// Notify sends message through the configured shoutrrr URL, logging (not
// returning) any delivery failure — notification delivery must never
// block or fail the operation that triggered it.
func (n *Notifier) Notify(title, message string) {
	if !n.Enabled() {
		return
	}
	body := fmt.Sprintf("%s\n%s", title, message)
	if err := shoutrrr.Send(n.url, body); err != nil {
		logging.Warn("notify: delivery failed", "title", title, "err", err)
	}
}

// ErrorState notifies that the daemon has entered terminal Error state.
func (n *Notifier) ErrorState(message string) {
	n.Notify("Undertone daemon error", message)
}

// DeviceDisconnectedPersisting notifies that the target output device has
// been missing across consecutive reconciliation cycles.
func (n *Notifier) DeviceDisconnectedPersisting(deviceName string, cycles int, since time.Duration) {
	n.Notify("Undertone output device still disconnected",
		fmt.Sprintf("%q has been absent for %d reconciliation cycles (%s).", deviceName, cycles, since.Round(time.Second)))
}

// DisconnectTracker counts consecutive reconciliation cycles during which
// the target device has been absent, firing a notification once the
// count reaches threshold and then staying quiet until the device
// reappears (reset), so a prolonged outage notifies once rather than on
// every subsequent cycle.
type DisconnectTracker struct {
	notifier  *Notifier
	threshold int

	deviceName string
	cycles     int
	firstSeen  time.Time
	notified   bool
}

// NewDisconnectTracker builds a tracker that notifies via notifier once
// the device has been absent for threshold consecutive cycles (spec.md
// §B.7 default: 3).
func NewDisconnectTracker(notifier *Notifier, threshold int) *DisconnectTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &DisconnectTracker{notifier: notifier, threshold: threshold}
}

// RecordAbsent should be called once per reconciliation cycle in which
// the target device was found absent.
func (t *DisconnectTracker) RecordAbsent(deviceName string, now time.Time) {
	if t.cycles == 0 || t.deviceName != deviceName {
		t.deviceName = deviceName
		t.firstSeen = now
	}
	t.cycles++
	if t.cycles >= t.threshold && !t.notified {
		t.notified = true
		t.notifier.DeviceDisconnectedPersisting(deviceName, t.cycles, now.Sub(t.firstSeen))
	}
}

// RecordPresent resets the tracker once the device is seen again.
func (t *DisconnectTracker) RecordPresent() {
	t.cycles = 0
	t.notified = false
	t.deviceName = ""
}
