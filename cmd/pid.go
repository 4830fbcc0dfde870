package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const stateDirName = ".pgactivity"

// StatusInfo describes a running collection
type StatusInfo struct {
	PID          int       `json:"pid"`
	StartTime    time.Time `json:"start_time"`
	OutputPath   string    `json:"output_path"`
	Snapshots    int64     `json:"snapshots"`
	Rows         int64     `json:"rows"`
	Reconnects   int64     `json:"reconnects"`
	LastSnapshot time.Time `json:"last_snapshot,omitempty"`
}

func stateDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, stateDirName)
}

// GetPIDFilePath returns the path to the PID file
func GetPIDFilePath() string {
	return filepath.Join(stateDir(), "collector.pid")
}

// GetStatusFilePath returns the path to the status file
func GetStatusFilePath() string {
	return filepath.Join(stateDir(), "status.json")
}

// writeStateFile replaces path through a temporary file so readers never see a partial write
func writeStateFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WritePIDFile writes the current process PID to a file
func WritePIDFile() error {
	return writeStateFile(GetPIDFilePath(), []byte(strconv.Itoa(os.Getpid())))
}

// RemovePIDFile removes the PID file
func RemovePIDFile() error {
	return os.Remove(GetPIDFilePath())
}

// ReadPIDFile reads the PID from file
func ReadPIDFile() (int, error) {
	data, err := os.ReadFile(GetPIDFilePath())
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

// IsProcessRunning checks if a process with given PID is running
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// signal 0 only checks for existence
	return process.Signal(syscall.Signal(0)) == nil
}

// WriteStatus writes the collection status to file
func WriteStatus(info *StatusInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return writeStateFile(GetStatusFilePath(), data)
}

// ReadStatus reads the collection status from file
func ReadStatus() (*StatusInfo, error) {
	data, err := os.ReadFile(GetStatusFilePath())
	if err != nil {
		return nil, err
	}

	var info StatusInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &info, nil
}

// RemoveStatusFile removes the status file
func RemoveStatusFile() error {
	return os.Remove(GetStatusFilePath())
}
