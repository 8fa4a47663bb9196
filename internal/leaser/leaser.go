// Package leaser defines the narrow seam the dispatcher uses to acquire
// machines for a job, and implements the exact "always report running
// before blocking" behavior the original dispatcher exhibits.
//
// Actually acquiring and reimaging machines is a large external subsystem
// (teuthology's lock service) that is out of scope for this core; Locker is
// deliberately narrow so a real implementation can be substituted without
// touching the dispatcher loop.
package leaser

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// ErrLockerNotConfigured is returned by the default Locker, so a dispatcher
// wired without a real lock-service client fails loudly the first time a
// job actually needs machines, rather than hanging.
var ErrLockerNotConfigured = errors.New("no machine locker configured")

// Locker blocks until count machines of machineType are leased, or returns a
// non-retryable error. Reimaging is never requested.
type Locker interface {
	Lease(ctx context.Context, machineType string, count int) (targets map[string]string, err error)
}

// Reporter is the narrow slice of queue.Backend the leaser needs, to avoid
// an import cycle back through internal/queue. ReportRunning must always
// reach the report-http side channel (directly for report-http, delegated
// for beanstalk, exactly like queue.Backend's Stats/Pause) rather than the
// backend's own Ack, whose meaning is backend-specific (report-http: POST
// status=running; beanstalk: delete the reserved job) and is wrong here.
type Reporter interface {
	ReportRunning(ctx context.Context, jobID string) error
}

// Unconfigured is a Locker that always fails; it is the default so that a
// dispatcher started without a real lock-service client errors clearly
// instead of blocking forever.
type Unconfigured struct{}

// Lease always returns ErrLockerNotConfigured.
func (Unconfigured) Lease(context.Context, string, int) (map[string]string, error) {
	return nil, ErrLockerNotConfigured
}

// Lock reports the job running (unconditionally, matching
// original_source/teuthology/dispatcher/__init__.py:lock_machines, which
// pushes status=running before blocking regardless of what the reserve path
// already reported — see DESIGN.md for why that duplicate report is kept),
// then blocks on locker.Lease and fills in cfg.Targets.
func Lock(ctx context.Context, locker Locker, reporter Reporter, cfg types.JobConfig) (types.JobConfig, error) {
	if err := reporter.ReportRunning(ctx, cfg.JobID); err != nil {
		return cfg, fmt.Errorf("report running status before lock: %w", err)
	}

	targets, err := locker.Lease(ctx, cfg.MachineType, cfg.RoleCount())
	if err != nil {
		return cfg, fmt.Errorf("lease %d machines of type %s: %w", cfg.RoleCount(), cfg.MachineType, err)
	}

	cfg.Targets = targets
	return cfg, nil
}
