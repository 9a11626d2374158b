package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLockAcquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tempDir, LockFileName)
	if lock.Path() != lockPath {
		t.Errorf("Path() = %q, want %q", lock.Path(), lockPath)
	}
	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	info := parseInfo(string(content))
	if info.PID != os.Getpid() {
		t.Errorf("expected pid %d in lock file, got %d (%q)", os.Getpid(), info.PID, content)
	}
	if info.StartedAt.IsZero() {
		t.Errorf("expected start time in lock file: %q", content)
	}
}

func TestLockConflict(t *testing.T) {
	tempDir := t.TempDir()

	lock1, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(tempDir)
	if err == nil {
		lock2.Release()
		t.Fatalf("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got: %T", err)
	}
	if !strings.Contains(lockErr.Owner, "running") {
		t.Errorf("expected owner to be reported as running, got %q", lockErr.Owner)
	}
	msg := err.Error()
	if !strings.Contains(msg, "another Smart Inclusion instance") || !strings.Contains(msg, tempDir) {
		t.Errorf("unhelpful error message: %s", msg)
	}

	// The losing attempt must leave the owner's information intact.
	content, _ := os.ReadFile(lock1.Path())
	if parseInfo(string(content)).PID != os.Getpid() {
		t.Errorf("lock info was clobbered: %q", content)
	}
}

func TestLockRelease(t *testing.T) {
	tempDir := t.TempDir()
	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	lockPath := lock.Path()

	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %s", lockPath)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Multiple releases should be safe: %v", err)
	}
}

func TestLockReacquisition(t *testing.T) {
	tempDir := t.TempDir()
	lock1, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	lock1.Release()

	lock2, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	defer lock2.Release()
}

func TestStaleLockFileIsTakenOver(t *testing.T) {
	tempDir := t.TempDir()
	stale := "pid=999999\nstarted=2020-01-01T00:00:00Z\n"
	if err := os.WriteFile(filepath.Join(tempDir, LockFileName), []byte(stale), 0644); err != nil {
		t.Fatal(err)
	}
	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("stale file without flock should not block: %v", err)
	}
	defer lock.Release()
	content, _ := os.ReadFile(lock.Path())
	if strings.Contains(string(content), "999999") {
		t.Errorf("stale info should be replaced, got %q", content)
	}
}

func TestParseInfo(t *testing.T) {
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		content string
		want    Info
	}{
		{"full", "pid=12345\nstarted=2026-03-01T08:00:00Z\n", Info{PID: 12345, StartedAt: started}},
		{"pid only", "pid=67890\nother=info", Info{PID: 67890}},
		{"no pid", "other=info", Info{}},
		{"empty", "", Info{}},
		{"invalid pid", "pid=abc", Info{}},
		{"no equals", "pid12345", Info{}},
		{"bad time", "pid=1\nstarted=yesterday", Info{PID: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseInfo(tt.content)
			if got.PID != tt.want.PID || !got.StartedAt.Equal(tt.want.StartedAt) {
				t.Errorf("parseInfo(%q) = %+v, want %+v", tt.content, got, tt.want)
			}
		})
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Errorf("Our own process should be detected as running")
	}
}

func TestNonExistentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Should be able to create directory and acquire lock: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Directory should have been created: %v", err)
	}
}
