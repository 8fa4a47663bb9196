// Command teuthology-dispatcher reserves queued jobs for one machine class,
// prepares and leases them, and spawns a supervisor child per job.
//
// Build-time version injection via ldflags, and panic recovery at the top
// level, follow the teacher repository's cmd/queue/main.go.
package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/beaver-dispatch/internal/cli"
)

var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildDispatcherCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
