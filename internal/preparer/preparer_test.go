package preparer

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

func baseConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		LogFilePath:       "/var/log/dispatcher.smithi.1",
		ArchiveBase:       t.TempDir(),
		SupervisorBinPath: "/usr/bin",
	}
}

func TestPrepareFillsArchivePath(t *testing.T) {
	cfg := baseConfig(t)
	desc := &types.JobDescriptor{
		JobID:       "job-1",
		Name:        "rados/basic",
		MachineType: "smithi",
	}

	got, binPath, err := Prepare(cfg, desc)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if binPath != cfg.SupervisorBinPath {
		t.Errorf("binPath = %q, want %q", binPath, cfg.SupervisorBinPath)
	}
	want := filepath.Join(cfg.ArchiveBase, "rados_basic", "job-1")
	if got.ArchivePath != want {
		t.Errorf("ArchivePath = %q, want %q", got.ArchivePath, want)
	}
	if got.Extra["worker_log"] != cfg.LogFilePath {
		t.Errorf("Extra[worker_log] = %v, want %v", got.Extra["worker_log"], cfg.LogFilePath)
	}
}

func TestPrepareCleansStatusAndNilKeys(t *testing.T) {
	cfg := baseConfig(t)
	desc := &types.JobDescriptor{
		JobID:       "job-1",
		Name:        "rados/basic",
		MachineType: "smithi",
		Status:      "queued",
		Extra: map[string]interface{}{
			"status":      "queued",
			"description": nil,
			"priority":    5,
		},
	}

	got, _, err := Prepare(cfg, desc)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, ok := got.Extra["status"]; ok {
		t.Errorf("status key should have been dropped")
	}
	if _, ok := got.Extra["description"]; ok {
		t.Errorf("nil-valued key should have been dropped")
	}
	if got.Extra["priority"] != 5 {
		t.Errorf("priority = %v, want 5", got.Extra["priority"])
	}
}

func TestPrepareSkipsOnMissingRequiredKeys(t *testing.T) {
	cfg := baseConfig(t)
	cases := []*types.JobDescriptor{
		nil,
		{Name: "rados/basic", MachineType: "smithi"},
		{JobID: "job-1", MachineType: "smithi"},
		{JobID: "job-1", Name: "rados/basic"},
	}
	for _, desc := range cases {
		_, _, err := Prepare(cfg, desc)
		if !errors.Is(err, ErrSkipJob) {
			t.Errorf("Prepare(%+v) error = %v, want ErrSkipJob", desc, err)
		}
	}
}

func TestPrepareSkipsWithoutSupervisorBinPath(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SupervisorBinPath = ""
	desc := &types.JobDescriptor{JobID: "job-1", Name: "rados/basic", MachineType: "smithi"}

	_, _, err := Prepare(cfg, desc)
	if !errors.Is(err, ErrSkipJob) {
		t.Errorf("error = %v, want ErrSkipJob", err)
	}
}
