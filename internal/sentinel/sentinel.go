// Package sentinel watches the two operator-intent files that tell a running
// dispatcher to restart or stop between loop iterations.
//
// Contract: only a sentinel file whose mtime is strictly after the
// dispatcher's start time has any effect. This lets an operator "arm" a
// sentinel before a dispatcher has even started without it immediately
// self-terminating on boot. Restart takes precedence over stop, since both
// may be armed simultaneously during an operator upgrade.
package sentinel

import (
	"os"
	"time"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

const (
	// DefaultRestartPath is the restart sentinel teuthology-style dispatchers
	// watch for.
	DefaultRestartPath = "/tmp/teuthology-restart-dispatcher"
	// DefaultStopPath is the stop sentinel.
	DefaultStopPath = "/tmp/teuthology-stop-dispatcher"
)

// Watcher classifies sentinel files against a fixed start time.
type Watcher struct {
	RestartPath string
	StopPath    string
	StartTime   time.Time
}

// New returns a Watcher anchored at the default sentinel paths and the
// current time. Call it once, at process start, before entering the loop.
func New() *Watcher {
	return &Watcher{
		RestartPath: DefaultRestartPath,
		StopPath:    DefaultStopPath,
		StartTime:   time.Now(),
	}
}

// Classify reports which sentinel, if any, is armed.
func (w *Watcher) Classify() types.SentinelKind {
	if armed(w.RestartPath, w.StartTime) {
		return types.SentinelRestart
	}
	if armed(w.StopPath, w.StartTime) {
		return types.SentinelStop
	}
	return types.SentinelNone
}

func armed(path string, startTime time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().After(startTime)
}
