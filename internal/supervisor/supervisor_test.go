package supervisor

import (
	"testing"
	"time"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition was never satisfied")
}

func TestBuildArgvIncludesRequiredFlags(t *testing.T) {
	argv := buildArgv(Args{
		BinPath:       "/usr/bin",
		ArchiveDir:    "/archive",
		JobConfigPath: "/archive/run/job-1/orig.config.yaml",
		Verbose:       true,
	})

	want := []string{
		"--supervisor",
		"-v",
		"--bin-path", "/usr/bin",
		"--archive-dir", "/archive",
		"--job-config", "/archive/run/job-1/orig.config.yaml",
	}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, argv[i], want[i])
		}
	}
}

func TestSpawnTracksExitCode(t *testing.T) {
	p := NewPool()

	handle, err := p.Spawn("job-1", "/bin/false", Args{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if handle.PID == 0 {
		t.Fatal("expected a nonzero PID")
	}

	waitUntil(t, time.Second, handle.Exited)

	if *handle.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", *handle.ExitCode)
	}

	exited := p.Reap()
	if len(exited) != 1 || exited[0].JobID != "job-1" {
		t.Errorf("Reap() = %+v, want job-1", exited)
	}
	if len(p.Live()) != 0 {
		t.Errorf("Live() should be empty after reap")
	}

	codes := p.ExitCodes()
	found := false
	for _, c := range codes {
		if c == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("ExitCodes() = %v, want to include 1", codes)
	}
}

func TestSpawnUnknownBinaryErrors(t *testing.T) {
	p := NewPool()
	if _, err := p.Spawn("job-1", "/no/such/binary", Args{}); err == nil {
		t.Fatal("expected an error for a missing binary")
	}
}
