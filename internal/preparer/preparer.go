// Package preparer turns a raw queue descriptor into a normalized JobConfig
// ready for leasing and archiving, or rejects it as unrunnable.
//
// Grounded on original_source/teuthology/dispatcher/__init__.py:clean_config
// and the prep_job call site in main(); the prep_job body itself was not
// retrieved, so required-key validation and supervisor-path resolution
// follow spec.md §4.3's contract rather than a transcribed implementation.
package preparer

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ChuLiYu/beaver-dispatch/internal/archive"
	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// ErrSkipJob signals that the descriptor is structurally unrunnable and
// should be dropped without being reported as failed or leased. The
// dispatcher loop continues to its next iteration on this error.
var ErrSkipJob = errors.New("job skipped during preparation")

// Config is the preparer's fixed inputs, set once at dispatcher startup.
type Config struct {
	// LogFilePath is the dispatcher's log file path
	// (<log_dir>/dispatcher.<machine_type>.<pid>), recorded on the
	// JobConfig's Extra bag under "worker_log".
	LogFilePath string
	// ArchiveBase is the directory ArchivePath is computed relative to.
	ArchiveBase string
	// SupervisorBinPath is a configured override for where the
	// teuthology-dispatcher binary invoked with --supervisor lives;
	// fetching it from a package index is out of scope.
	SupervisorBinPath string
}

// Prepare normalizes a raw descriptor into a JobConfig, returning the
// resolved supervisor binary path alongside it.
func Prepare(cfg Config, desc *types.JobDescriptor) (types.JobConfig, string, error) {
	if desc == nil {
		return types.JobConfig{}, "", fmt.Errorf("%w: nil descriptor", ErrSkipJob)
	}

	cleaned := cleanExtra(desc.Extra)

	if desc.JobID == "" {
		return types.JobConfig{}, "", fmt.Errorf("%w: missing job_id", ErrSkipJob)
	}
	if desc.Name == "" {
		return types.JobConfig{}, "", fmt.Errorf("%w: missing name for job %s", ErrSkipJob, desc.JobID)
	}
	if desc.MachineType == "" {
		return types.JobConfig{}, "", fmt.Errorf("%w: missing machine_type for job %s", ErrSkipJob, desc.JobID)
	}

	safeName := archive.Munge(desc.Name)
	archivePath := filepath.Join(cfg.ArchiveBase, safeName, desc.JobID)

	if cleaned == nil {
		cleaned = map[string]interface{}{}
	}
	if cfg.LogFilePath != "" {
		cleaned["worker_log"] = cfg.LogFilePath
	}

	jobConfig := types.JobConfig{
		JobID:       desc.JobID,
		Name:        desc.Name,
		MachineType: desc.MachineType,
		Roles:       desc.Roles,
		Targets:     desc.Targets,
		StopWorker:  desc.StopWorker,
		ArchivePath: archivePath,
		Extra:       cleaned,
	}

	if cfg.SupervisorBinPath == "" {
		return types.JobConfig{}, "", fmt.Errorf("%w: no supervisor binary path configured", ErrSkipJob)
	}

	return jobConfig, cfg.SupervisorBinPath, nil
}

// cleanExtra mirrors clean_config: drop a "status" key and any key whose
// value is nil, so a stale reporting-service status never leaks into the
// config a supervisor runs with.
func cleanExtra(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if k == "status" {
			continue
		}
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
