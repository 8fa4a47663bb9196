package dispatcher

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/beaver-dispatch/internal/queue"
)

// Config is the dispatcher's full set of tunables, loadable from a YAML
// file and re-read once per loop iteration via ConfigReloader.
//
// Grounded on the flat-flag surface of
// original_source/teuthology/dispatcher/__init__.py:main (--machine-type,
// --log-dir, --archive-dir, --exit-on-empty-queue, --queue-backend) and on
// the teacher repository's nested yaml-tagged internal/cli Config struct
// pattern.
type Config struct {
	MachineType      string `yaml:"machine_type"`
	LogDir           string `yaml:"log_dir"`
	ArchiveDir       string `yaml:"archive_dir"`
	ExitOnEmptyQueue bool   `yaml:"exit_on_empty_queue"`
	Verbose          bool   `yaml:"verbose"`

	QueueBackend  queue.Kind    `yaml:"queue_backend"`
	BeanstalkAddr string        `yaml:"beanstalk_addr"`
	ReportBaseURL string        `yaml:"report_base_url"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`

	SupervisorBinPath string        `yaml:"supervisor_bin_path"`
	ReserveTimeout    time.Duration `yaml:"reserve_timeout"`
}

// LoadConfig reads and parses a dispatcher config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if cfg.ReserveTimeout <= 0 {
		cfg.ReserveTimeout = 60 * time.Second
	}
	return cfg, nil
}

// ConfigReloader guards a Config value behind a RWMutex so the dispatcher
// loop can re-read the backing file once per iteration without a reader
// ever observing a torn struct, and without every field access taking a
// lock. The critical section is the assignment of the new value only, kept
// deliberately short: callers take Current()'s returned copy and read it
// lock-free.
type ConfigReloader struct {
	path string
	mu   sync.RWMutex
	cur  Config
}

// NewConfigReloader returns a reloader anchored on path, holding initial
// until the first successful Reload; it does not read path itself. An empty
// path means "no file to reload from": Current always returns the initial
// value passed to it.
func NewConfigReloader(path string, initial Config) *ConfigReloader {
	return &ConfigReloader{path: path, cur: initial}
}

// Current returns the most recently loaded Config.
func (r *ConfigReloader) Current() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur
}

// Reload re-reads the backing file, if one was configured, and swaps in the
// parsed result. A parse error leaves the previous config in place; the
// dispatcher loop logs and keeps running rather than crashing on a bad edit.
func (r *ConfigReloader) Reload() error {
	if r.path == "" {
		return nil
	}
	cfg, err := LoadConfig(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cur = cfg
	r.mu.Unlock()
	return nil
}
