package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureSystemInfoKeepsDescription(t *testing.T) {
	snap := CaptureSystemInfo("test capture")
	assert.Equal(t, "test capture", snap.Description)
}

func TestMaskSensitiveInfoRedactsKnownKeys(t *testing.T) {
	content := "socketpath: /run/undertone/ipc.sock\nchannelname: music\nnotifyurl: https://example.com/secret\n"
	masked := maskSensitiveInfo(content)

	assert.Contains(t, masked, "channelname: music")
	assert.NotContains(t, masked, "/run/undertone/ipc.sock")
	assert.NotContains(t, masked, "example.com/secret")
}

func TestMaskSensitiveInfoLeavesUnrelatedLinesAlone(t *testing.T) {
	content := "displayname: Music Channel\n"
	assert.Equal(t, content, maskSensitiveInfo(content))
}
