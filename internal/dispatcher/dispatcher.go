// Package dispatcher implements the single-threaded dispatch loop: reserve
// a job, prepare it, lease machines if it needs any, archive its config, and
// spawn a supervisor child to run it — one job per iteration, with the only
// parallelism coming from the OS processes it spawns.
//
// Grounded step-for-step on
// original_source/teuthology/dispatcher/__init__.py:main, and on
// internal/controller.go for the Config/stopCh/startTime/loopWg shape this
// package generalizes down to a single loop instead of four.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/ChuLiYu/beaver-dispatch/internal/archive"
	"github.com/ChuLiYu/beaver-dispatch/internal/leaser"
	"github.com/ChuLiYu/beaver-dispatch/internal/nuke"
	"github.com/ChuLiYu/beaver-dispatch/internal/preparer"
	"github.com/ChuLiYu/beaver-dispatch/internal/queue"
	"github.com/ChuLiYu/beaver-dispatch/internal/sentinel"
	"github.com/ChuLiYu/beaver-dispatch/internal/supervisor"
	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// Dispatcher owns one machine class's reserve-prepare-lease-spawn loop.
type Dispatcher struct {
	Config     *ConfigReloader
	Watcher    *sentinel.Watcher
	Backend    queue.Backend
	Locker     leaser.Locker
	Nuker      nuke.Nuker
	Pool       *supervisor.Pool
	Log        *slog.Logger
	Args       []string // original argv, for restart's re-exec
	Executable string   // resolved path to the current binary, for restart
}

// New wires a Dispatcher from its already-constructed collaborators.
func New(cfg *ConfigReloader, watcher *sentinel.Watcher, backend queue.Backend, locker leaser.Locker, nuker nuke.Nuker, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if locker == nil {
		locker = leaser.Unconfigured{}
	}
	if nuker == nil {
		nuker = nuke.Logging{Log: log}
	}
	return &Dispatcher{
		Config:  cfg,
		Watcher: watcher,
		Backend: backend,
		Locker:  locker,
		Nuker:   nuker,
		Pool:    supervisor.NewPool(),
		Log:     log,
		Args:    os.Args,
	}
}

// Run executes the dispatch loop until a stop/restart sentinel fires, the
// job's own stop_worker flag is set, or ctx is canceled. It returns the exit
// code the original process should exit with: the highest return code any
// spawned supervisor was ever observed to exit with, or 0 if none did.
func (d *Dispatcher) Run(ctx context.Context) (int, error) {
	keepRunning := true

	for keepRunning {
		select {
		case <-ctx.Done():
			keepRunning = false
			continue
		default:
		}

		d.Pool.Reap()

		switch d.Watcher.Classify() {
		case types.SentinelRestart:
			return d.restart()
		case types.SentinelStop:
			d.Log.Info("stop sentinel armed, stopping")
			return 0, nil
		}

		if err := d.Config.Reload(); err != nil {
			d.Log.Warn("failed to reload config, continuing with previous values", "error", err)
		}
		cfg := d.Config.Current()

		desc, err := d.Backend.Reserve(ctx, cfg.ReserveTimeout)
		if err != nil {
			d.Log.Error("reserve failed", "error", err)
			continue
		}
		if desc == nil {
			if cfg.ExitOnEmptyQueue {
				d.Log.Info("queue empty and exit-on-empty-queue set, stopping")
				keepRunning = false
			}
			continue
		}
		d.Log.Info("reserved job", "job_id", desc.JobID, "name", desc.Name)

		if desc.StopWorker {
			keepRunning = false
		}

		d.runOneJob(ctx, preparer.Config{
			LogFilePath:       filepath.Join(cfg.LogDir, fmt.Sprintf("dispatcher.%s.%d", cfg.MachineType, os.Getpid())),
			ArchiveBase:       cfg.ArchiveDir,
			SupervisorBinPath: cfg.SupervisorBinPath,
		}, cfg, desc)
	}

	return maxInt(d.Pool.ExitCodes()), nil
}

// runOneJob carries a single reserved descriptor through preparation,
// leasing, archiving and spawning. The reserved job is always acknowledged
// at the end (beanstalk: delete the buried job; report-http: push status
// running), whether or not the job made it to a supervisor — matching the
// original source's unconditional job.delete() after the spawn attempt.
func (d *Dispatcher) runOneJob(ctx context.Context, prepCfg preparer.Config, cfg Config, desc *types.JobDescriptor) {
	defer func() {
		if err := d.Backend.Ack(ctx, desc); err != nil {
			d.Log.Error("failed to ack reserved job", "job_id", desc.JobID, "error", err)
		}
	}()

	jobConfig, binPath, err := preparer.Prepare(prepCfg, desc)
	if err != nil {
		if errors.Is(err, preparer.ErrSkipJob) {
			d.Log.Info("skipping unrunnable job", "job_id", desc.JobID, "reason", err)
			return
		}
		d.Log.Error("failed to prepare job", "job_id", desc.JobID, "error", err)
		return
	}

	if jobConfig.RoleCount() > 0 {
		jobConfig, err = leaser.Lock(ctx, d.Locker, d.Backend, jobConfig)
		if err != nil {
			d.Log.Error("failed to lease machines", "job_id", desc.JobID, "error", err)
			d.reportFailure(ctx, desc, jobConfig, "failed to lease machines: "+err.Error())
			return
		}
	}

	if _, err := archive.Create(cfg.ArchiveDir, jobConfig.Name, jobConfig.JobID); err != nil {
		d.Log.Error("failed to create job archive", "job_id", desc.JobID, "error", err)
		d.reportFailure(ctx, desc, jobConfig, "failed to create job archive: "+err.Error())
		return
	}

	jobConfigPath, err := archive.WriteJobConfig(jobConfig)
	if err != nil {
		d.Log.Error("failed to write job config", "job_id", desc.JobID, "error", err)
		d.reportFailure(ctx, desc, jobConfig, "failed to write job config: "+err.Error())
		return
	}

	handle, err := d.Pool.Spawn(jobConfig.JobID, binaryPath(binPath), supervisor.Args{
		BinPath:       binPath,
		ArchiveDir:    cfg.ArchiveDir,
		JobConfigPath: jobConfigPath,
		// The supervisor child is always run verbose, matching the
		// hardcoded "-v" in original_source's run_args regardless of
		// this dispatcher's own --verbose setting.
		Verbose: true,
	})
	if err != nil {
		d.Log.Error("failed to spawn supervisor", "job_id", desc.JobID, "error", err)
		if len(jobConfig.Targets) > 0 {
			if nukeErr := d.Nuker.Nuke(ctx, jobConfig); nukeErr != nil {
				d.Log.Error("failed to nuke leased targets", "job_id", desc.JobID, "error", nukeErr)
			}
		}
		d.reportFailure(ctx, desc, jobConfig, "Saw error while trying to spawn supervisor.")
		return
	}

	d.Log.Info("spawned supervisor", "job_id", desc.JobID, "pid", handle.PID)
}

func (d *Dispatcher) reportFailure(ctx context.Context, desc *types.JobDescriptor, jobConfig types.JobConfig, reason string) {
	if err := d.Backend.Fail(ctx, desc, reason); err != nil {
		d.Log.Error("failed to report job failure", "job_id", jobConfig.JobID, "error", err)
	}
}

// restart re-execs the current process image with its original argv,
// mirroring original_source's os.execv(sys.executable, args). It only
// returns on failure to exec; on success the process image is replaced.
func (d *Dispatcher) restart() (int, error) {
	d.Log.Info("restart sentinel armed, restarting")
	exe := d.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return 1, fmt.Errorf("resolve executable path for restart: %w", err)
		}
	}
	if err := syscall.Exec(exe, d.Args, os.Environ()); err != nil {
		return 1, fmt.Errorf("exec restart: %w", err)
	}
	return 0, nil // unreachable: syscall.Exec replaces the process on success
}

func binaryPath(supervisorBinPath string) string {
	return supervisorBinPath + string(os.PathSeparator) + "teuthology-dispatcher"
}

func maxInt(values []int) int {
	max := 0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}
