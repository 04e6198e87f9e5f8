// Package diagnostics captures process and system resource snapshots and
// assembles operator support bundles, and serves a loopback-only HTTP
// diagnostics surface (spec.md §B.6). Adapted from the corpus'
// capture_debug.go (gopsutil CPU/RAM snapshot on abnormal events) and
// support_collect.go (masked-config support bundle), generalized from
// BirdNET-Go's debug file onto Undertone's daemon.
package diagnostics

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time resource reading for the daemon's own
// process. It is not part of the GetDiagnostics reply and is not attached
// to operator notifications.
type Snapshot struct {
	CPUPercent  float64
	RSSBytes    uint64
	GoAllocMiB  uint64
	GoNumGC     uint32
	Description string
}

// CaptureSystemInfo gathers CPU/RSS/Go-runtime stats for the current
// process, tagged with a description of what triggered the capture —
// the same shape as the corpus' CaptureSystemInfo, narrowed from whole
// -system stats to the daemon's own process since an audio-routing
// daemon has no equivalent to a detection pipeline's batch workload.
func CaptureSystemInfo(description string) Snapshot {
	snap := Snapshot{Description: description}

	if pid := int32(os.Getpid()); pid > 0 {
		if proc, err := process.NewProcess(pid); err == nil {
			if pct, err := proc.CPUPercent(); err == nil {
				snap.CPUPercent = pct
			}
			if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
				snap.RSSBytes = mi.RSS
			}
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	snap.GoAllocMiB = bToMb(m.Alloc)
	snap.GoNumGC = m.NumGC

	return snap
}

// SystemLoad reports whole-machine CPU and memory pressure. The notify
// component does not call it; notifications carry only their title and
// message.
func SystemLoad() (cpuPercent, memPercent float64) {
	if pcts, err := cpu.Percent(time.Second, false); err == nil && len(pcts) > 0 {
		cpuPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	}
	return cpuPercent, memPercent
}

func bToMb(b uint64) uint64 { return b / 1024 / 1024 }

// CollectSupportBundle gathers sound-device listings, a masked copy of
// the daemon's config file, and recent systemd journal output into a zip
// file an operator can attach to a bug report — grounded on the corpus'
// collectLinuxDiagnostics/collectConfigFile/zipDirectory trio, retargeted
// from BirdNET's hardware/package inventory onto PipeWire device state.
func CollectSupportBundle(configPath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "undertone-diagnostics-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if runtime.GOOS != "linux" {
		return "", fmt.Errorf("support bundle collection is only implemented for linux, got %s", runtime.GOOS)
	}

	collectSoundDevices(tmpDir)
	collectJournal(tmpDir)
	if configPath != "" {
		if err := collectMaskedConfig(configPath, tmpDir); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to collect config file: %v\n", err)
		}
	}

	zipPath := filepath.Join(os.TempDir(), fmt.Sprintf("undertone-diagnostics-%s.zip", time.Now().Format("20060102-150405")))
	if err := zipDirectory(tmpDir, zipPath); err != nil {
		return "", fmt.Errorf("compress diagnostics: %w", err)
	}
	return zipPath, nil
}

func collectSoundDevices(tmpDir string) {
	runCommand("pw-cli", []string{"list-objects"}, filepath.Join(tmpDir, "pipewire_objects.txt"))
	runCommand("pw-dump", nil, filepath.Join(tmpDir, "pipewire_dump.json"))
	runCommand("aplay", []string{"-l"}, filepath.Join(tmpDir, "alsa_devices.txt"))
}

func collectJournal(tmpDir string) {
	since := time.Now().AddDate(0, 0, -2).Format("2006-01-02 15:04:05")
	runCommand("journalctl", []string{"-u", "undertone-daemon", "--since", since}, filepath.Join(tmpDir, "undertone-daemon.log"))
}

func runCommand(command string, args []string, outputFile string) {
	cmd := exec.Command(command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return
	}
	_ = os.WriteFile(outputFile, output, 0o644)
}

func collectMaskedConfig(configPath, tmpDir string) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	masked := maskSensitiveInfo(string(content))
	return os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(masked), 0o644)
}

var sensitiveConfigKeys = map[string]bool{
	"socketpath": true,
	"authtoken":  true,
	"notifyurl":  true,
	"urls":       true,
}

// maskSensitiveInfo redacts the values of recognized sensitive config
// keys (shoutrrr notify URLs carry credentials in their query string,
// matching the corpus' rationale for masking broker/username/password
// lines).
func maskSensitiveInfo(content string) string {
	lines := strings.Split(content, "\n")
	inSensitiveList := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if inSensitiveList && strings.HasPrefix(trimmed, "- ") {
			indent := line[:strings.Index(line, "-")]
			lines[i] = indent + "- " + strings.Repeat("*", len(strings.TrimSpace(trimmed[2:])))
			continue
		}
		inSensitiveList = false
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(strings.ToLower(parts[0]))
		if sensitiveConfigKeys[key] {
			value := strings.TrimSpace(parts[1])
			if value == "" {
				inSensitiveList = true
				continue
			}
			lines[i] = fmt.Sprintf("%s: %s", parts[0], strings.Repeat("*", len(value)))
		}
	}
	return strings.Join(lines, "\n")
}

func zipDirectory(source, target string) error {
	zipfile, err := os.Create(target)
	if err != nil {
		return err
	}
	defer zipfile.Close()

	archive := zip.NewWriter(zipfile)
	defer archive.Close()

	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = strings.TrimPrefix(path, source+string(filepath.Separator))
		header.Method = zip.Deflate

		writer, err := archive.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer file.Close()

		_, err = io.Copy(writer, file)
		return err
	})
}
