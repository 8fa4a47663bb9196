// Package fleet scans local OS processes to discover peer dispatchers, so
// the metrics exporter can report a dispatcher count per machine class
// without a service registry.
//
// Grounded on original_source/teuthology/exporter.py's
// find_dispatcher_processes, which walks psutil.process_iter() and matches
// each process's cmdline tokens. goputil is the Go analogue used across
// other_examples' process-management repos (e.g. loykin-provisr).
package fleet

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

// entryPoint is the dispatcher binary name matched against argv[0], per
// SPEC_FULL.md §4.8 condition (a): "its command invokes the dispatcher
// entry point." Matched against the basename so an absolute install path
// (e.g. /usr/bin/teuthology-dispatcher) still counts.
const entryPoint = "teuthology-dispatcher"

// Scan enumerates local processes and returns the dispatchers found,
// grouped by machine class. A process is a dispatcher if it invokes the
// dispatcher entry point and its command line carries
// "--machine-type <class>"; it is a job supervisor, not a fleet dispatcher,
// if it also carries "--supervisor".
//
// Per-process errors (a PID that exits mid-scan, permission denied reading
// another user's cmdline) are skipped rather than failing the whole scan,
// since the fleet is inherently a best-effort snapshot.
func Scan() (map[string][]types.DispatcherProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	byClass := make(map[string][]types.DispatcherProcessInfo)
	for _, p := range procs {
		cmdline, err := p.CmdlineSlice()
		if err != nil || len(cmdline) == 0 {
			continue
		}

		if !isDispatcherEntryPoint(cmdline[0]) {
			continue
		}

		machineType, ok := machineTypeArg(cmdline)
		if !ok {
			continue
		}

		info := types.DispatcherProcessInfo{
			PID:         p.Pid,
			MachineType: machineType,
			Supervisor:  hasFlag(cmdline, "--supervisor"),
		}
		byClass[machineType] = append(byClass[machineType], info)
	}

	return byClass, nil
}

// isDispatcherEntryPoint reports whether argv0 invokes the dispatcher
// binary, by basename so an absolute or relative install path still
// matches. This rejects unrelated host processes whose argv happens to
// contain "--machine-type <x>" without "--supervisor" by coincidence.
func isDispatcherEntryPoint(argv0 string) bool {
	return filepath.Base(argv0) == entryPoint
}

func machineTypeArg(argv []string) (string, bool) {
	for i, tok := range argv {
		if tok == "--machine-type" && i+1 < len(argv) {
			return argv[i+1], true
		}
	}
	return "", false
}

func hasFlag(argv []string, flag string) bool {
	for _, tok := range argv {
		if tok == flag {
			return true
		}
	}
	return false
}

// CountDispatchers reports, per machine class, how many processes matched
// are plain dispatchers (Supervisor == false) — the population the
// exporter publishes as dispatcher_count.
func CountDispatchers(byClass map[string][]types.DispatcherProcessInfo) map[string]int {
	counts := make(map[string]int, len(byClass))
	for machineType, procs := range byClass {
		n := 0
		for _, p := range procs {
			if !p.Supervisor {
				n++
			}
		}
		counts[machineType] = n
	}
	return counts
}
