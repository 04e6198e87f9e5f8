package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifierDisabledWithoutURL(t *testing.T) {
	n := New("")
	assert.False(t, n.Enabled())
	n.Notify("title", "message") // must not panic when disabled
}

func TestNotifierEnabledWithURL(t *testing.T) {
	n := New("generic+https://example.com/webhook")
	assert.True(t, n.Enabled())
}

func TestDisconnectTrackerFiresOnceAtThreshold(t *testing.T) {
	n := New("")
	tracker := NewDisconnectTracker(n, 3)
	now := time.Unix(0, 0)

	tracker.RecordAbsent("usb-headset", now)
	assert.False(t, tracker.notified)
	tracker.RecordAbsent("usb-headset", now.Add(time.Minute))
	assert.False(t, tracker.notified)
	tracker.RecordAbsent("usb-headset", now.Add(2*time.Minute))
	assert.True(t, tracker.notified)

	// A fourth consecutive cycle must not re-fire (notified stays true,
	// no panic, no duplicate notification attempted).
	tracker.RecordAbsent("usb-headset", now.Add(3*time.Minute))
	assert.True(t, tracker.notified)
}

func TestDisconnectTrackerResetsOnPresence(t *testing.T) {
	tracker := NewDisconnectTracker(New(""), 2)
	now := time.Unix(0, 0)

	tracker.RecordAbsent("usb-headset", now)
	tracker.RecordAbsent("usb-headset", now.Add(time.Minute))
	assert.True(t, tracker.notified)

	tracker.RecordPresent()
	assert.Equal(t, 0, tracker.cycles)
	assert.False(t, tracker.notified)
}

func TestDisconnectTrackerDefaultsThresholdWhenNonPositive(t *testing.T) {
	tracker := NewDisconnectTracker(New(""), 0)
	assert.Equal(t, 3, tracker.threshold)
}
