package lockfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestAcquireAndRelease(t *testing.T) {
	// Arrange
	dir := t.TempDir()

	// Act
	lock, err := Acquire(context.Background(), dir, "docs")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Assert: the lock file exists while held.
	lockPath := filepath.Join(dir, LockFileName("docs"))
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("lock file missing while held: %v", err)
	}

	// Act: release removes the file.
	lock.Release()
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release()")
	}

	// A double release must be a no-op.
	lock.Release()
}

func TestAcquireFailsFastWhenHeld(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	lock, err := Acquire(context.Background(), dir, "docs")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer lock.Release()

	// Act
	_, err = Acquire(context.Background(), dir, "docs")

	// Assert
	var active *ErrLockActive
	if !errors.As(err, &active) {
		t.Fatalf("second Acquire() error = %v, want *ErrLockActive", err)
	}
	if active.PID != int64(os.Getpid()) || active.ConfigName != "docs" {
		t.Errorf("ErrLockActive = %+v", active)
	}
}

func TestAcquireDifferentConfigsIndependent(t *testing.T) {
	dir := t.TempDir()

	docs, err := Acquire(context.Background(), dir, "docs")
	if err != nil {
		t.Fatalf("Acquire(docs) error = %v", err)
	}
	defer docs.Release()

	photos, err := Acquire(context.Background(), dir, "photos")
	if err != nil {
		t.Fatalf("Acquire(photos) error = %v, want success for other config", err)
	}
	photos.Release()
}

func TestStaleLockTakeover(t *testing.T) {
	// Arrange: shrink the timeouts so the test runs quickly.
	origHeartbeat, origStale := heartbeatInterval, staleTimeout
	heartbeatInterval = 20 * time.Millisecond
	staleTimeout = 60 * time.Millisecond
	defer func() {
		heartbeatInterval, staleTimeout = origHeartbeat, origStale
	}()

	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName("docs"))

	// Simulate a crashed holder: a lock file with an old timestamp and no
	// heartbeat refreshing it.
	stale := LockContent{
		PID:        99999,
		Hostname:   "crashed-host",
		ConfigName: "docs",
		LastUpdate: time.Now().UTC().Add(-time.Hour),
		Nonce:      "dead",
	}
	if err := updateLockFileAtomic(lockPath, stale); err != nil {
		t.Fatal(err)
	}

	// Act
	lock, err := Acquire(context.Background(), dir, "docs")

	// Assert
	if err != nil {
		t.Fatalf("Acquire() over stale lock error = %v", err)
	}
	defer lock.Release()
	content, err := readLockContentSafely(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	if content.PID != int64(os.Getpid()) {
		t.Errorf("lock PID = %d, want %d", content.PID, os.Getpid())
	}
}

func TestCorruptLockTreatedAsStale(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName("docs"))
	if err := os.WriteFile(lockPath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(context.Background(), dir, "docs")
	if err != nil {
		t.Fatalf("Acquire() over corrupt lock error = %v", err)
	}
	lock.Release()
}

func TestAcquireCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Acquire(ctx, t.TempDir(), "docs")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}
