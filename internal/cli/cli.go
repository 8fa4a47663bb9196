// Package cli wires the two dispatcher-fleet binaries' command-line
// surfaces with Cobra: teuthology-dispatcher and teuthology-exporter, each
// a single flat-flag root command rather than a verb/subcommand tree,
// mirroring the original argparse-style interface described by
// original_source/teuthology/dispatcher/__init__.py's args dict
// ("--supervisor", "--verbose", "--machine-type", ...) and
// teuthology/exporter.py's args["--interval"].
//
// Structurally grounded on the teacher repository's BuildCLI (PersistentFlags,
// RunE closures, signal.Notify-based graceful shutdown) generalized from a
// multi-command tree down to one command per binary.
package cli

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/beaver-dispatch/internal/dispatcher"
	"github.com/ChuLiYu/beaver-dispatch/internal/leaser"
	"github.com/ChuLiYu/beaver-dispatch/internal/metrics"
	"github.com/ChuLiYu/beaver-dispatch/internal/nuke"
	"github.com/ChuLiYu/beaver-dispatch/internal/queue"
	"github.com/ChuLiYu/beaver-dispatch/internal/sentinel"
)

// dispatcherFlags holds the flag destinations for the dispatcher binary.
type dispatcherFlags struct {
	supervisorMode   bool
	verbose          bool
	machineType      string
	logDir           string
	archiveDir       string
	exitOnEmptyQueue bool
	queueBackend     string
	beanstalkAddr    string
	reportBaseURL    string
	configFile       string

	// supervisor-mode-only flags, forwarded by the parent dispatcher's spawn
	binPath       string
	jobConfigPath string
}

// BuildDispatcherCLI returns the root command for the teuthology-dispatcher binary.
func BuildDispatcherCLI() *cobra.Command {
	var f dispatcherFlags

	cmd := &cobra.Command{
		Use:     "teuthology-dispatcher",
		Short:   "Reserve, prepare, lease, and spawn supervisors for queued jobs",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.supervisorMode {
				return runSupervisorMode(f)
			}
			return runDispatcher(f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.supervisorMode, "supervisor", false, "run in job-supervisor mode instead of the dispatch loop")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	fl.StringVar(&f.machineType, "machine-type", "", "machine class this dispatcher serves")
	fl.StringVar(&f.logDir, "log-dir", "/var/log/teuthology", "directory of the dispatcher log file path passed to supervisors as worker_log (the dispatcher itself logs to stderr)")
	fl.StringVar(&f.archiveDir, "archive-dir", "", "base directory job archives are written under")
	fl.BoolVar(&f.exitOnEmptyQueue, "exit-on-empty-queue", false, "stop the loop instead of blocking when the queue is empty")
	fl.StringVar(&f.queueBackend, "queue-backend", "beanstalk", "queue backend: beanstalk or report-http")
	fl.StringVar(&f.beanstalkAddr, "beanstalk-addr", "localhost:11300", "beanstalkd address")
	fl.StringVar(&f.reportBaseURL, "report-base-url", "", "base URL of the reporting service")
	fl.StringVarP(&f.configFile, "config", "c", "", "optional YAML config file, re-read once per loop iteration")
	fl.StringVar(&f.binPath, "bin-path", "", "supervisor-mode: directory containing the teuthology binaries")
	fl.StringVar(&f.jobConfigPath, "job-config", "", "supervisor-mode: path to this job's orig.config.yaml")

	return cmd
}

func runDispatcher(f dispatcherFlags) error {
	if f.machineType == "" {
		return fmt.Errorf("--machine-type is required")
	}

	loglevel := slog.LevelInfo
	if f.verbose {
		loglevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: loglevel}))

	cfg := dispatcher.Config{
		MachineType:       f.machineType,
		LogDir:            f.logDir,
		ArchiveDir:        f.archiveDir,
		ExitOnEmptyQueue:  f.exitOnEmptyQueue,
		Verbose:           f.verbose,
		QueueBackend:      queue.Kind(f.queueBackend),
		BeanstalkAddr:     f.beanstalkAddr,
		ReportBaseURL:     f.reportBaseURL,
		SupervisorBinPath: f.binPath,
		ReserveTimeout:    60 * time.Second,
	}

	if f.configFile != "" {
		loaded, err := dispatcher.LoadConfig(f.configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	backend, err := queue.New(queue.Config{
		Kind:          cfg.QueueBackend,
		MachineType:   cfg.MachineType,
		BeanstalkAddr: cfg.BeanstalkAddr,
		ReportBaseURL: cfg.ReportBaseURL,
		HTTPTimeout:   cfg.HTTPTimeout,
	})
	if err != nil {
		return fmt.Errorf("construct queue backend: %w", err)
	}
	defer backend.Close()

	reloader := dispatcher.NewConfigReloader(f.configFile, cfg)
	watcher := sentinel.New()

	d := dispatcher.New(reloader, watcher, backend, leaser.Unconfigured{}, nuke.Logging{Log: logger}, logger)
	d.Executable, _ = os.Executable()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	code, err := d.Run(ctx)
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// runSupervisorMode is the entry point a spawned child hits when invoked
// with --supervisor; actually running the job's tasks against leased
// targets is the out-of-scope orchestra/test_run layer, so this only wires
// the seam: read the job config, log that it would be run, and exit 0.
func runSupervisorMode(f dispatcherFlags) error {
	logger := log.New(os.Stderr, "teuthology-dispatcher[supervisor]: ", log.LstdFlags)
	if f.jobConfigPath == "" {
		return fmt.Errorf("--job-config is required in supervisor mode")
	}
	logger.Printf("running job config %s (bin-path=%s archive-dir=%s)", f.jobConfigPath, f.binPath, f.archiveDir)
	return nil
}

// exporterFlags holds the flag destinations for the exporter binary.
type exporterFlags struct {
	interval      int
	reportBaseURL string
	machineTypes  []string
}

// BuildExporterCLI returns the root command for the teuthology-exporter binary.
func BuildExporterCLI() *cobra.Command {
	var f exporterFlags

	cmd := &cobra.Command{
		Use:     "teuthology-exporter",
		Short:   "Publish dispatcher-fleet and queue metrics for Prometheus",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExporter(f)
		},
	}

	cmd.Flags().IntVar(&f.interval, "interval", 60, "seconds between metric publications")
	cmd.Flags().StringVar(&f.reportBaseURL, "report-base-url", "", "base URL of the reporting service, for queue stats")

	return cmd
}

func runExporter(f exporterFlags) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	collector := metrics.NewCollector()

	var statsFetcher metrics.StatsFetcher
	if f.reportBaseURL != "" {
		backend, err := queue.NewReportHTTPBackend(f.reportBaseURL, "", 0)
		if err != nil {
			return fmt.Errorf("construct report-http client: %w", err)
		}
		statsFetcher = backend
	}

	exporter := metrics.NewExporter(collector, statsFetcher, secondsToDuration(f.interval), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go exporter.Loop(ctx)

	logger.Info("starting metrics HTTP server", "port", metrics.Port)
	errCh := make(chan error, 1)
	go func() { errCh <- metrics.StartServer(metrics.Port) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
