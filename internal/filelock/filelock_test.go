package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewFileLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock := NewFileLock(lockPath)
	if lock == nil {
		t.Fatal("NewFileLock should not return nil")
	}
	if lock.Path() != lockPath {
		t.Errorf("Path() = %s, want %s", lock.Path(), lockPath)
	}
}

func TestTryLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock1 := NewFileLock(lockPath)
	lock2 := NewFileLock(lockPath)

	acquired, err := lock1.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !acquired {
		t.Fatal("First TryLock should succeed")
	}

	acquired, err = lock2.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if acquired {
		t.Error("Second TryLock should fail when lock is held")
	}

	if err := lock1.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	acquired, err = lock2.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !acquired {
		t.Error("TryLock should succeed after unlock")
	}
	lock2.Unlock()
}

func TestLockContextTimesOut(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	holder := NewFileLock(lockPath)
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewFileLock(lockPath).LockContext(ctx, 5*time.Millisecond)
	if err == nil {
		t.Fatal("LockContext should fail while another lock is held")
	}
}

func TestAppendLine(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "telemetry.log")

	if err := AppendLine(target, "first"); err != nil {
		t.Fatalf("AppendLine failed: %v", err)
	}
	if err := AppendLine(target, "second"); err != nil {
		t.Fatalf("AppendLine failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if got, want := string(data), "first\nsecond\n"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestAppendLinePreservesExistingContent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "alerts.log")
	if err := os.WriteFile(target, []byte("existing\n"), 0644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	if err := AppendLine(target, "new"); err != nil {
		t.Fatalf("AppendLine failed: %v", err)
	}

	data, _ := os.ReadFile(target)
	if got, want := string(data), "existing\nnew\n"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestLockAndAppendConcurrentWriters(t *testing.T) {
	target := filepath.Join(t.TempDir(), "telemetry.log")

	const writers = 5
	const linesPerWriter = 20

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < linesPerWriter; i++ {
				line := fmt.Sprintf("writer-%d line-%02d %s", w, i, strings.Repeat("x", 256))
				if err := LockAndAppend(context.Background(), target, line); err != nil {
					t.Errorf("LockAndAppend failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != writers*linesPerWriter {
		t.Fatalf("got %d lines, want %d", len(lines), writers*linesPerWriter)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "writer-") || len(line) < 256 {
			t.Errorf("interleaved or truncated line: %q", line)
		}
	}

	if _, err := os.Stat(target + ".lock"); err != nil {
		t.Errorf("expected lock file next to target: %v", err)
	}
}
