// Package types defines the core domain models shared across the dispatcher,
// its queue backends, the machine leaser, the archive writer, and the
// supervisor spawner.
//
// Design principles carried over from the teacher's pkg/types:
//  1. Domain-driven types instead of bare maps/strings where it matters.
//  2. Full YAML/JSON round-tripping, since JobConfig is persisted to disk
//     and re-read by the supervisor.
//  3. An opaque Extra bag preserves wire fields this core doesn't understand,
//     so nothing is silently dropped between reserve and spawn.
package types

import "time"

// JobDescriptor is the unit reserved from the queue, before preparation.
//
// Invariant: once reserved, a descriptor is either delivered to a supervisor
// (it becomes a JobConfig and a SupervisorHandle exists for it), or explicitly
// reported as failed with a reason, or identified as unrunnable via SkipJob.
// It is never silently dropped.
type JobDescriptor struct {
	JobID       string                 `yaml:"job_id" json:"job_id"`
	Name        string                 `yaml:"name" json:"name"`
	MachineType string                 `yaml:"machine_type,omitempty" json:"machine_type,omitempty"`
	Roles       [][]string             `yaml:"roles,omitempty" json:"roles,omitempty"`
	StopWorker  bool                   `yaml:"stop_worker,omitempty" json:"stop_worker,omitempty"`
	Status      string                 `yaml:"status,omitempty" json:"status,omitempty"`
	Targets     map[string]string      `yaml:"targets,omitempty" json:"targets,omitempty"`
	Extra       map[string]interface{} `yaml:",inline" json:"-"`

	// BeanstalkID is set by the beanstalk backend to the reserved job's
	// numeric ID, so Ack can delete the right job. Zero for report-http.
	BeanstalkID uint64 `yaml:"-" json:"-"`
}

// JobConfig is the prepared, normalized form of a JobDescriptor: it adds the
// computed archive path and, after leasing, concrete machine identifiers.
//
// Invariant: ArchivePath is inside the configured archive base, at
// <archive_base>/<Munge(Name)>/<JobID>.
type JobConfig struct {
	JobID       string                 `yaml:"job_id" json:"job_id"`
	Name        string                 `yaml:"name" json:"name"`
	MachineType string                 `yaml:"machine_type" json:"machine_type"`
	Roles       [][]string             `yaml:"roles,omitempty" json:"roles,omitempty"`
	Targets     map[string]string      `yaml:"targets,omitempty" json:"targets,omitempty"`
	StopWorker  bool                   `yaml:"stop_worker,omitempty" json:"stop_worker,omitempty"`
	ArchivePath string                 `yaml:"archive_path" json:"archive_path"`
	Extra       map[string]interface{} `yaml:",inline" json:"-"`
}

// RoleCount returns the number of individual roles across all role groups,
// i.e. the number of machines the leaser must acquire.
func (c JobConfig) RoleCount() int {
	n := 0
	for _, group := range c.Roles {
		n += len(group)
	}
	return n
}

// ArchivePaths names the two directories a job's artifacts live under.
type ArchivePaths struct {
	// RunDir is shared across sibling jobs of one run:
	// <archive_base>/<munge(run_name)>/
	RunDir string
	// JobDir is this job's own directory, equal to JobConfig.ArchivePath:
	// <archive_base>/<munge(run_name)>/<job_id>/
	JobDir string
}

// SupervisorHandle tracks a spawned supervisor child process.
//
// Lifetime: created on spawn, removed from the dispatcher's live set once
// the process has a non-nil return code.
type SupervisorHandle struct {
	JobID     string
	PID       int
	StartedAt time.Time

	// ExitCode is nil while the process is still running.
	ExitCode *int
}

// Exited reports whether the supervisor process has already terminated.
func (h *SupervisorHandle) Exited() bool {
	return h.ExitCode != nil
}

// DispatcherProcessInfo describes one dispatcher peer observed via a local
// process scan. It carries no registry-assigned identity; PID and machine
// class are derived purely from the process's command line.
type DispatcherProcessInfo struct {
	PID         int32
	MachineType string
	Supervisor  bool
}

// SentinelKind classifies the result of comparing the two sentinel files
// against the dispatcher's start time.
type SentinelKind int

const (
	// SentinelNone means neither sentinel file was touched after start.
	SentinelNone SentinelKind = iota
	// SentinelStop means the stop sentinel was touched after start.
	SentinelStop
	// SentinelRestart means the restart sentinel was touched after start;
	// it takes precedence over SentinelStop when both are armed.
	SentinelRestart
)

func (k SentinelKind) String() string {
	switch k {
	case SentinelRestart:
		return "restart"
	case SentinelStop:
		return "stop"
	default:
		return "none"
	}
}
