package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, dir string) *FSNotify {
	t.Helper()
	w, err := NewFSNotify(dir, WithDebounce(30*time.Millisecond))
	if err != nil {
		t.Fatalf("NewFSNotify failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	if _, err := w.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return w
}

// collect drains events until the watcher has been quiet for the given window
func collect(w *FSNotify, quiet time.Duration) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-w.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-time.After(quiet):
			return events
		}
	}
}

func find(events []Event, op Op, path string) int {
	n := 0
	for _, e := range events {
		if e.Op == op && e.Path == path {
			n++
		}
	}
	return n
}

// TestWatcherInitClose tests basic watcher lifecycle
func TestWatcherInitClose(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(tmpDir, "lib"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"main.ts", "lib/util.ts"} {
		if err := os.WriteFile(filepath.Join(tmpDir, f), []byte("export {}\n"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}

	w, err := NewFSNotify(tmpDir)
	if err != nil {
		t.Fatalf("NewFSNotify failed: %v", err)
	}

	files, err := w.Init(context.Background())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 tracked files, got %d", len(files))
	}
	if _, err := w.Init(context.Background()); err == nil {
		t.Error("Expected second Init to fail")
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	// idempotent, and the channel is closed
	_ = w.Close()
	if _, ok := <-w.Events(); ok {
		t.Error("Expected Events channel to be closed")
	}
}

// TestEventDetection tests that create, update and delete are reported
func TestEventDetection(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.ts")
	if err := os.WriteFile(testFile, []byte("export const a = 1\n"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	w := startWatcher(t, tmpDir)

	if err := os.WriteFile(testFile, []byte("export const a = 2\n"), 0644); err != nil {
		t.Fatalf("Failed to modify test file: %v", err)
	}
	newFile := filepath.Join(tmpDir, "new.ts")
	if err := os.WriteFile(newFile, []byte("export {}\n"), 0644); err != nil {
		t.Fatalf("Failed to create new file: %v", err)
	}

	events := collect(w, 500*time.Millisecond)
	if len(events) == 0 {
		t.Skip("fsnotify may not work reliably in temp directories on this platform")
	}
	if find(events, OpUpdate, "test.ts") == 0 {
		t.Error("Expected update event for test.ts")
	}
	if find(events, OpCreate, "new.ts") == 0 {
		t.Error("Expected create event for new.ts")
	}

	if err := os.Remove(newFile); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	events = collect(w, 500*time.Millisecond)
	if find(events, OpDelete, "new.ts") != 1 {
		t.Errorf("Expected one delete event for new.ts, got %+v", events)
	}
	for _, e := range events {
		if e.Op == OpDelete && e.Info != nil {
			t.Error("delete events carry no file info")
		}
	}
}

// TestDebounce tests that rapid events are coalesced
func TestDebounce(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "rapid.ts")
	if err := os.WriteFile(testFile, []byte("// rapid\n"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	w, err := NewFSNotify(tmpDir, WithDebounce(150*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, err := w.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Rapid fire writes (within debounce window)
	for i := 0; i < 5; i++ {
		content := []byte("// line " + string(rune('a'+i)) + "\n")
		if err := os.WriteFile(testFile, content, 0644); err != nil {
			t.Fatalf("Failed to modify file: %v", err)
		}
		time.Sleep(20 * time.Millisecond) // 20ms < 150ms debounce window
	}

	events := collect(w, 600*time.Millisecond)
	if len(events) == 0 {
		t.Skip("fsnotify may not work reliably in temp directories on this platform")
	}
	if n := find(events, OpUpdate, "rapid.ts"); n >= 5 {
		t.Errorf("Expected debounced events (< 5), got %d", n)
	}
}

// TestNewDirectory tests that files in a new directory are picked up
func TestNewDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	w := startWatcher(t, tmpDir)

	sub := filepath.Join(tmpDir, "sub", "deep")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a.ts"), []byte("export {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	events := collect(w, 500*time.Millisecond)
	if len(events) == 0 {
		t.Skip("fsnotify may not work reliably in temp directories on this platform")
	}
	if find(events, OpCreate, "sub/deep/a.ts") != 1 {
		t.Errorf("Expected one create for sub/deep/a.ts, got %+v", events)
	}

	if err := os.RemoveAll(filepath.Join(tmpDir, "sub")); err != nil {
		t.Fatal(err)
	}
	events = collect(w, 500*time.Millisecond)
	var dirDelete bool
	for _, e := range events {
		if e.Op == OpDelete && e.Path == "sub" && e.IsDir {
			dirDelete = true
		}
	}
	if !dirDelete && find(events, OpDelete, "sub/deep/a.ts") == 0 {
		t.Errorf("Expected the removal to be reported, got %+v", events)
	}
}

// TestIgnoredFiles tests that ignored paths are not reported
func TestIgnoredFiles(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("*.log\n"), 0644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, tmpDir)

	if err := os.MkdirAll(filepath.Join(tmpDir, "node_modules", "x"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "node_modules", "x", "index.js"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "debug.log"), []byte("log"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "kept.ts"), []byte("export {}"), 0644); err != nil {
		t.Fatal(err)
	}

	events := collect(w, 500*time.Millisecond)
	if len(events) == 0 {
		t.Skip("fsnotify may not work reliably in temp directories on this platform")
	}
	for _, e := range events {
		if e.Path == "debug.log" || filepath.Dir(e.Path) == "node_modules/x" || e.Path == "node_modules" {
			t.Errorf("Ignored path should not be reported: %s", e.Path)
		}
	}
	if find(events, OpCreate, "kept.ts") == 0 {
		t.Error("Expected create event for kept.ts")
	}
}

func TestStateRoundTrip(t *testing.T) {
	buildDir := t.TempDir()

	if ReadState(buildDir) != nil {
		t.Fatal("Expected nil state before anything was written")
	}

	events := make([]Event, MaxRecentEvents+10)
	for i := range events {
		events[i] = Event{Time: time.Now(), Op: OpUpdate, Path: "a.ts"}
	}
	state := &State{
		UpdatedAt:    time.Now(),
		PID:          os.Getpid(),
		FileCount:    3,
		Hubs:         []string{"/p/src/hub.ts"},
		Importers:    map[string][]string{"/p/src/hub.ts": {"/p/src/a.ts"}},
		RecentEvents: events,
	}
	if err := WriteState(buildDir, state); err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}

	got := ReadState(buildDir)
	if got == nil {
		t.Fatal("Expected state to be readable")
	}
	if got.FileCount != 3 || len(got.Hubs) != 1 {
		t.Errorf("Unexpected state: %+v", got)
	}
	if len(got.RecentEvents) != MaxRecentEvents {
		t.Errorf("Expected %d recent events, got %d", MaxRecentEvents, len(got.RecentEvents))
	}
	if !got.Fresh(time.Minute) {
		t.Error("Expected a just-written state to be fresh")
	}
	got.UpdatedAt = time.Now().Add(-time.Hour)
	if got.Fresh(time.Minute) {
		t.Error("Expected an hour-old state to be stale")
	}

	if err := os.WriteFile(StatePath(buildDir), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if ReadState(buildDir) != nil {
		t.Error("Expected nil state for a corrupt file")
	}
}

func TestPID(t *testing.T) {
	buildDir := t.TempDir()
	if IsRunning(buildDir) {
		t.Fatal("Expected no process without a PID file")
	}
	if err := WritePID(buildDir); err != nil {
		t.Fatalf("WritePID failed: %v", err)
	}
	pid, err := ReadPID(buildDir)
	if err != nil || pid != os.Getpid() {
		t.Errorf("ReadPID = %d, %v; want %d", pid, err, os.Getpid())
	}
	if !IsRunning(buildDir) {
		t.Error("Expected the current process to be reported running")
	}
	RemovePID(buildDir)
	if _, err := ReadPID(buildDir); err == nil {
		t.Error("Expected error after RemovePID")
	}
}
