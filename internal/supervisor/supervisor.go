// Package supervisor spawns the per-job teuthology-dispatcher --supervisor
// child process and tracks it until it exits.
//
// Grounded on the subprocess.Popen argv construction in
// original_source/teuthology/dispatcher/__init__.py:main, and on the
// process-tracking idiom (a struct owning *exec.Cmd plus a background
// goroutine that calls Wait and records the exit) shown by
// other_examples' provisr supervisor.go (waitAndHandleExit) and the teacher
// repository's internal/controller.go shutdown-ordering style.
package supervisor

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// Args are the inputs needed to build the supervisor child's argv, matching
// the flags original_source's main() passes to the re-invoked binary.
type Args struct {
	BinPath       string // directory containing teuthology-dispatcher
	ArchiveDir    string
	JobConfigPath string // <archive_path>/orig.config.yaml
	Verbose       bool
}

func buildArgv(a Args) []string {
	argv := []string{"--supervisor"}
	if a.Verbose {
		argv = append(argv, "-v")
	}
	return append(argv,
		"--bin-path", a.BinPath,
		"--archive-dir", a.ArchiveDir,
		"--job-config", a.JobConfigPath,
	)
}

// Pool tracks the supervisor processes spawned by one dispatcher loop.
type Pool struct {
	mu        sync.Mutex
	handles   map[string]*types.SupervisorHandle
	cmds      map[string]*exec.Cmd
	exitCodes map[int]struct{} // every code ever observed, kept past Reap
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{
		handles:   make(map[string]*types.SupervisorHandle),
		cmds:      make(map[string]*exec.Cmd),
		exitCodes: map[int]struct{}{0: {}},
	}
}

// Spawn starts the supervisor binary for jobID, detached into its own
// process group so a dispatcher restart (which re-execs the current
// process) does not take the job's supervisor down with it.
func (p *Pool) Spawn(jobID, binaryPath string, a Args) (*types.SupervisorHandle, error) {
	cmd := exec.Command(binaryPath, buildArgv(a)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn supervisor for job %s: %w", jobID, err)
	}

	handle := &types.SupervisorHandle{
		JobID:     jobID,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}

	p.mu.Lock()
	p.handles[jobID] = handle
	p.cmds[jobID] = cmd
	p.mu.Unlock()

	go p.wait(jobID, cmd, handle)

	return handle, nil
}

// wait blocks on the child and records its exit code once available, so a
// later Reap or Live call sees Exited() become true.
func (p *Pool) wait(jobID string, cmd *exec.Cmd, handle *types.SupervisorHandle) {
	err := cmd.Wait()

	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	p.mu.Lock()
	handle.ExitCode = &code
	p.exitCodes[code] = struct{}{}
	p.mu.Unlock()

	_ = jobID // retained for clarity at call sites reading goroutine dumps
}

// Reap removes and returns the handles of supervisors that have already
// exited, so the dispatcher loop's live set only tracks running children.
func (p *Pool) Reap() []*types.SupervisorHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	var exited []*types.SupervisorHandle
	for jobID, h := range p.handles {
		if h.Exited() {
			exited = append(exited, h)
			delete(p.handles, jobID)
			delete(p.cmds, jobID)
		}
	}
	return exited
}

// Live returns a snapshot of the still-running supervisor handles.
func (p *Pool) Live() []*types.SupervisorHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := make([]*types.SupervisorHandle, 0, len(p.handles))
	for _, h := range p.handles {
		if !h.Exited() {
			live = append(live, h)
		}
	}
	return live
}

// ExitCodes returns the distinct return codes observed from every
// supervisor this pool has ever spawned, always including 0 so an idle
// dispatcher's loop exit code is well-defined. Codes survive Reap.
func (p *Pool) ExitCodes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	codes := make([]int, 0, len(p.exitCodes))
	for c := range p.exitCodes {
		codes = append(codes, c)
	}
	return codes
}
