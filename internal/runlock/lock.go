// Package runlock keeps two evolve processes from driving the same working
// tree at once. The lock is a JSON file naming the owning process; a lock
// whose process has died is treated as stale and replaced.
package runlock

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

// LockFileName is the name of the lock file within the state directory
const LockFileName = "evolve.lock"

// unreadableGrace is how long an unparsable lock file is assumed to be a
// competitor's lock that is still being written.
const unreadableGrace = 10 * time.Second

// Lock represents an acquired run lock
type Lock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Command   string    `json:"command,omitempty"`
	StartedAt time.Time `json:"started_at"`

	// Internal fields (not serialized)
	lockFile string
	logger   *logging.Logger
}

// Path returns the lock file location inside stateDir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, LockFileName)
}

// Acquire takes the run lock in stateDir, creating the directory if needed.
// It fails with an error matching errors.ErrLocked when a live process holds
// the lock. command describes the holder in lock reports. The logger is
// optional.
func Acquire(stateDir, command string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	lockPath := Path(stateDir)

	existing, err := Read(lockPath)
	switch {
	case err == nil:
		if isProcessAlive(existing.PID) {
			logger.Error("failed to acquire run lock",
				"holder_pid", existing.PID,
				"holder_host", existing.Hostname,
			)
			return nil, lockedError(existing)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale run lock cleaned", "old_pid", existing.PID)
	case !errors.Is(err, fs.ErrNotExist):
		info, statErr := os.Stat(lockPath)
		if statErr == nil && time.Since(info.ModTime()) < unreadableGrace {
			// Created but not yet written by a process that won the race
			logger.Error("failed to acquire run lock", "reason", "lock file is being written")
			return nil, fmt.Errorf("%w: lock file %s is being written", errors.ErrLocked, lockPath)
		}
		// A torn write from a crashed process; nobody can prove ownership
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove unreadable lock: %w", err)
		}
		logger.Warn("unreadable run lock removed", "error", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &Lock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		Command:   command,
		StartedAt: time.Now().UTC(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL so a process racing us between the check and the create loses
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := Read(lockPath); readErr == nil {
				return nil, lockedError(existing)
			}
			return nil, errors.ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Info("run lock acquired", "pid", lock.PID)
	return lock, nil
}

func lockedError(holder *Lock) error {
	return fmt.Errorf("%w: PID %d on %s since %s",
		errors.ErrLocked, holder.PID, holder.Hostname, holder.StartedAt.Local().Format(time.Kitchen))
}

// Release removes the lock file if this process still owns it.
// Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := Read(l.lockFile)
	if err != nil {
		return nil
	}
	if existing.PID != l.PID {
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	if l.logger != nil {
		l.logger.Info("run lock released")
	}
	return nil
}

// Read reads a lock file.
func Read(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

// Holder returns the live process holding the lock in stateDir, if any.
func Holder(stateDir string) (*Lock, bool) {
	lock, err := Read(Path(stateDir))
	if err != nil {
		return nil, false
	}
	if !isProcessAlive(lock.PID) {
		return lock, false
	}
	return lock, true
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
