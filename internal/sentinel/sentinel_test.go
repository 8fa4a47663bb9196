package sentinel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

func touch(t *testing.T, path string, when time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestClassifyNoneWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	w := &Watcher{
		RestartPath: filepath.Join(dir, "restart"),
		StopPath:    filepath.Join(dir, "stop"),
		StartTime:   time.Now(),
	}
	if got := w.Classify(); got != types.SentinelNone {
		t.Errorf("got %v, want none", got)
	}
}

func TestClassifyIgnoresStaleSentinel(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()
	restart := filepath.Join(dir, "restart")
	touch(t, restart, start.Add(-time.Hour))

	w := &Watcher{RestartPath: restart, StopPath: filepath.Join(dir, "stop"), StartTime: start}
	if got := w.Classify(); got != types.SentinelNone {
		t.Errorf("stale sentinel should have no effect, got %v", got)
	}
}

func TestClassifyRestartBeatsStop(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()
	restart := filepath.Join(dir, "restart")
	stop := filepath.Join(dir, "stop")
	touch(t, restart, start.Add(time.Minute))
	touch(t, stop, start.Add(time.Minute))

	w := &Watcher{RestartPath: restart, StopPath: stop, StartTime: start}
	if got := w.Classify(); got != types.SentinelRestart {
		t.Errorf("got %v, want restart to take precedence", got)
	}
}

func TestClassifyStopAlone(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()
	stop := filepath.Join(dir, "stop")
	touch(t, stop, start.Add(time.Minute))

	w := &Watcher{RestartPath: filepath.Join(dir, "restart"), StopPath: stop, StartTime: start}
	if got := w.Classify(); got != types.SentinelStop {
		t.Errorf("got %v, want stop", got)
	}
}
