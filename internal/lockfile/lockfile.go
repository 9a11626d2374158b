// Package lockfile guards a state directory so that two service instances
// never share the same SQLite database.
//
// The lock is an flock(2) on a file inside the directory. The kernel drops it
// when the process exits, so a crash leaves at most a stale file behind, never
// a held lock.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "smartinclusion.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Info is the owner information written into a lock file.
type Info struct {
	PID       int
	StartedAt time.Time
}

// AcquireLock takes an exclusive, non-blocking lock on stateDir, creating the
// directory if needed. A *LockError is returned when another process holds it.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.AcquireLock: acquiring", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// No O_TRUNC: a losing contender must not wipe the owner's info.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		owner := describeOwner(lockPath)
		slog.Error("lockfile.AcquireLock: state directory already locked", "lock_path", lockPath, "owner", owner, "error", err)
		return nil, &LockError{LockPath: lockPath, Owner: owner, Cause: err}
	}

	if err := writeInfo(file, Info{PID: os.Getpid(), StartedAt: time.Now().UTC()}); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("lockfile.AcquireLock: state directory locked", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("lockfile.Release: unlock failed", "lock_path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Warn("lockfile.Release: close failed", "lock_path", l.path, "error", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: remove failed", "lock_path", l.path, "error", err)
	}
	l.file = nil
	slog.Info("lockfile.Release: state directory unlocked", "lock_path", l.path)
	return nil
}

// LockError reports a state directory held by another process.
type LockError struct {
	LockPath string
	Owner    string
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another Smart Inclusion instance is using this state directory (lock file: %s)", e.LockPath)
	if e.Owner != "" {
		fmt.Fprintf(&b, "; owner: %s", e.Owner)
	}
	fmt.Fprintf(&b, "; if no other instance is running, remove the stale file with: rm %s", e.LockPath)
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

func writeInfo(file *os.File, info Info) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(file, "pid=%d\nstarted=%s\n", info.PID, info.StartedAt.Format(time.RFC3339)); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile.writeInfo: sync failed", "error", err)
	}
	return nil
}

// parseInfo reads key=value lines. Unknown keys and malformed values are ignored.
func parseInfo(content string) Info {
	var info Info
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				info.PID = pid
			}
		case "started":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				info.StartedAt = ts
			}
		}
	}
	return info
}

func describeOwner(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unknown (lock file unreadable)"
	}
	info := parseInfo(string(data))
	if info.PID == 0 {
		return "unknown"
	}
	state := "running"
	if !isProcessRunning(info.PID) {
		state = "not running, stale lock"
	}
	if info.StartedAt.IsZero() {
		return fmt.Sprintf("PID %d (%s)", info.PID, state)
	}
	return fmt.Sprintf("PID %d started %s (%s)", info.PID, info.StartedAt.Format(time.RFC3339), state)
}

// isProcessRunning sends signal 0, which only checks that the process exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
