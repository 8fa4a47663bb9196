// Package archive creates the per-run and per-job directories a dispatched
// job's artifacts live under, and persists the job's prepared config there.
//
// Grounded on original_source/teuthology/dispatcher/__init__.py:
// create_job_archive for the directory layout and on
// internal/snapshot/snapshot_manager.go's temp-file-then-rename write for
// atomicity.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// dirMode matches the permissions teuthology archives are historically
// created with: group-readable, not world-writable.
const dirMode = 0o755

// Munge collapses name into a single safe path component: path separators
// become underscores, and all leading dots are stripped (an empty result
// becomes "_") so the result can never resolve to "." or ".." or an absolute
// path when joined under archiveBase.
//
// This is the Go equivalent of original_source's safepath.munge, whose body
// was not retrieved; the contract (never let a run name escape the archive
// base) is preserved exactly.
func Munge(name string) string {
	replaced := strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, name)
	replaced = strings.TrimLeft(replaced, ".")
	if replaced == "" {
		replaced = "_"
	}
	return replaced
}

// Create makes the run directory (shared by all jobs in runName) and this
// job's own directory under it, both idempotently. jobID is not munged: it
// is generated by the reporting service and never operator-supplied.
func Create(archiveBase, runName, jobID string) (types.ArchivePaths, error) {
	runDir := filepath.Join(archiveBase, Munge(runName))
	jobDir := filepath.Join(runDir, jobID)

	if err := os.MkdirAll(runDir, dirMode); err != nil {
		return types.ArchivePaths{}, fmt.Errorf("create run archive dir %s: %w", runDir, err)
	}
	if err := os.MkdirAll(jobDir, dirMode); err != nil {
		return types.ArchivePaths{}, fmt.Errorf("create job archive dir %s: %w", jobDir, err)
	}

	return types.ArchivePaths{RunDir: runDir, JobDir: jobDir}, nil
}

// WriteJobConfig serializes cfg as block-style YAML to
// <cfg.ArchivePath>/orig.config.yaml, atomically: a temp file in the same
// directory is written and fsynced, then renamed over the final name so a
// crash mid-write never leaves a truncated config for the supervisor to read.
func WriteJobConfig(cfg types.JobConfig) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal job config for %s: %w", cfg.JobID, err)
	}

	finalPath := filepath.Join(cfg.ArchivePath, "orig.config.yaml")
	tmpPath := finalPath + ".tmp"

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open temp config file %s: %w", tmpPath, err)
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp config file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("sync temp config file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp config file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename %s to %s: %w", tmpPath, finalPath, err)
	}

	return finalPath, nil
}
