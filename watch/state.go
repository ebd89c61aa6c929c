package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gro/fsys"
)

// MaxRecentEvents bounds the timeline kept in the state file.
const MaxRecentEvents = 50

// StatePath returns the dev session snapshot path under buildDir.
func StatePath(buildDir string) string {
	return filepath.Join(buildDir, "dev_state.json")
}

func pidPath(buildDir string) string {
	return filepath.Join(buildDir, "dev.pid")
}

// WriteState persists the snapshot for `gro status` to read
func WriteState(buildDir string, state *State) error {
	if len(state.RecentEvents) > MaxRecentEvents {
		state.RecentEvents = state.RecentEvents[len(state.RecentEvents)-MaxRecentEvents:]
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return fsys.NewOS().WriteFile(StatePath(buildDir), data)
}

// ReadState reads the snapshot from disk.
// Returns nil if state doesn't exist or cannot be parsed.
func ReadState(buildDir string) *State {
	data, err := os.ReadFile(StatePath(buildDir))
	if err != nil {
		return nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil
	}
	return &state
}

// Fresh reports whether the snapshot was written within maxAge.
func (s *State) Fresh(maxAge time.Duration) bool {
	return s != nil && time.Since(s.UpdatedAt) <= maxAge
}

// WritePID writes the dev process PID to <buildDir>/dev.pid
func WritePID(buildDir string) error {
	return fsys.NewOS().WriteFile(pidPath(buildDir), []byte(fmt.Sprintf("%d", os.Getpid())))
}

// ReadPID reads the dev process PID from <buildDir>/dev.pid
func ReadPID(buildDir string) (int, error) {
	data, err := os.ReadFile(pidPath(buildDir))
	if err != nil {
		return 0, err
	}
	var pid int
	_, err = fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid)
	return pid, err
}

// RemovePID removes the PID file
func RemovePID(buildDir string) {
	os.Remove(pidPath(buildDir))
}

// IsRunning checks if the dev process is running
func IsRunning(buildDir string) bool {
	pid, err := ReadPID(buildDir)
	if err != nil {
		return false
	}
	// Check if process exists by sending signal 0
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds, so send signal 0 to check
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
