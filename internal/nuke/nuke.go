// Package nuke defines the seam the dispatcher calls into when a supervisor
// fails to spawn for a job that already has targets leased, so those
// machines are torn down instead of leaking.
//
// Actually nuking machines (reinstalling, killing orphan processes, clearing
// mounts) is a large external subsystem out of scope for this core; Nuker
// is deliberately narrow, grounded on the single call site in
// original_source/teuthology/dispatcher/__init__.py:main
// ("nuke(supervisor.create_fake_context(job_config), True)").
package nuke

import (
	"context"
	"log/slog"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// Nuker tears down whatever targets a failed job had already leased.
type Nuker interface {
	Nuke(ctx context.Context, cfg types.JobConfig) error
}

// Logging is a Nuker that only logs; it is the default so a dispatcher
// wired without a real teardown client degrades to a loud no-op instead of
// failing to spawn supervisors entirely.
type Logging struct {
	Log *slog.Logger
}

// Nuke logs the targets that would have been torn down.
func (n Logging) Nuke(_ context.Context, cfg types.JobConfig) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("no nuke backend configured, targets left in place",
		"job_id", cfg.JobID, "targets", cfg.Targets)
	return nil
}
