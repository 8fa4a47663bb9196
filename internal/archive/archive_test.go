package archive

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

func TestMungeReplacesSeparators(t *testing.T) {
	cases := map[string]string{
		"rados/basic":     "rados_basic",
		"../etc/passwd":   "_etc_passwd",
		".hidden":         "hidden",
		"plain-run-name1": "plain-run-name1",
	}
	for in, want := range cases {
		if got := Munge(in); got != want {
			t.Errorf("Munge(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMungeNeverEmpty(t *testing.T) {
	if got := Munge("..."); got == "" {
		t.Errorf("Munge produced an empty path component")
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	base := t.TempDir()

	paths, err := Create(base, "rados/basic", "job-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if paths.RunDir != filepath.Join(base, "rados_basic") {
		t.Errorf("RunDir = %q", paths.RunDir)
	}
	if paths.JobDir != filepath.Join(paths.RunDir, "job-1") {
		t.Errorf("JobDir = %q", paths.JobDir)
	}

	if _, err := Create(base, "rados/basic", "job-1"); err != nil {
		t.Fatalf("second Create should be idempotent, got: %v", err)
	}

	paths2, err := Create(base, "rados/basic", "job-2")
	if err != nil {
		t.Fatalf("Create sibling job: %v", err)
	}
	if paths2.RunDir != paths.RunDir {
		t.Errorf("sibling jobs should share a run dir, got %q and %q", paths.RunDir, paths2.RunDir)
	}
}

func TestWriteJobConfigIsReadableAndAtomic(t *testing.T) {
	base := t.TempDir()
	paths, err := Create(base, "rados/basic", "job-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cfg := types.JobConfig{
		JobID:       "job-1",
		Name:        "rados/basic",
		MachineType: "smithi",
		ArchivePath: paths.JobDir,
	}

	finalPath, err := WriteJobConfig(cfg)
	if err != nil {
		t.Fatalf("WriteJobConfig: %v", err)
	}
	if finalPath != filepath.Join(paths.JobDir, "orig.config.yaml") {
		t.Errorf("finalPath = %q", finalPath)
	}

	if _, err := os.Stat(finalPath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not survive a successful write")
	}

	raw, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	var got types.JobConfig
	if err := yaml.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal written config: %v", err)
	}
	if got.JobID != cfg.JobID || got.MachineType != cfg.MachineType {
		t.Errorf("round-tripped config = %+v, want %+v", got, cfg)
	}
}
