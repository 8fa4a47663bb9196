package nuke

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

func TestLoggingNukeLogsAndReturnsNil(t *testing.T) {
	n := Logging{Log: slog.Default()}

	err := n.Nuke(context.Background(), types.JobConfig{
		JobID:   "job-1",
		Targets: map[string]string{"mon.a": "vpm001"},
	})
	if err != nil {
		t.Fatalf("Nuke returned error: %v", err)
	}
}

func TestLoggingNukeHandlesNilLogger(t *testing.T) {
	n := Logging{}

	err := n.Nuke(context.Background(), types.JobConfig{JobID: "job-2"})
	if err != nil {
		t.Fatalf("Nuke returned error: %v", err)
	}
}
