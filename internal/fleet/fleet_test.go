package fleet

import (
	"testing"

	"github.com/ChuLiYu/beaver-dispatch/pkg/types"
)

func TestMachineTypeArg(t *testing.T) {
	argv := []string{"teuthology-dispatcher", "--machine-type", "smithi", "-v"}
	got, ok := machineTypeArg(argv)
	if !ok || got != "smithi" {
		t.Errorf("got (%q, %v), want (smithi, true)", got, ok)
	}
}

func TestMachineTypeArgMissing(t *testing.T) {
	if _, ok := machineTypeArg([]string{"teuthology-dispatcher", "-v"}); ok {
		t.Error("expected ok=false for a command line with no --machine-type")
	}
}

func TestMachineTypeArgTrailingFlagWithNoValue(t *testing.T) {
	if _, ok := machineTypeArg([]string{"teuthology-dispatcher", "--machine-type"}); ok {
		t.Error("expected ok=false when --machine-type has no following token")
	}
}

func TestIsDispatcherEntryPoint(t *testing.T) {
	cases := []struct {
		argv0 string
		want  bool
	}{
		{"teuthology-dispatcher", true},
		{"/usr/bin/teuthology-dispatcher", true},
		{"./teuthology-dispatcher", true},
		{"some-other-daemon", false},
		{"teuthology-dispatcher-helper", false},
	}
	for _, c := range cases {
		if got := isDispatcherEntryPoint(c.argv0); got != c.want {
			t.Errorf("isDispatcherEntryPoint(%q) = %v, want %v", c.argv0, got, c.want)
		}
	}
}

func TestHasFlag(t *testing.T) {
	argv := []string{"teuthology-dispatcher", "--supervisor", "-v"}
	if !hasFlag(argv, "--supervisor") {
		t.Error("expected --supervisor to be found")
	}
	if hasFlag(argv, "--machine-type") {
		t.Error("did not expect --machine-type to be found")
	}
}

func TestCountDispatchersExcludesSupervisors(t *testing.T) {
	byClass := map[string][]types.DispatcherProcessInfo{
		"smithi": {
			{PID: 1, MachineType: "smithi", Supervisor: false},
			{PID: 2, MachineType: "smithi", Supervisor: true},
			{PID: 3, MachineType: "smithi", Supervisor: false},
		},
		"mira": {
			{PID: 4, MachineType: "mira", Supervisor: true},
		},
	}

	counts := CountDispatchers(byClass)
	if counts["smithi"] != 2 {
		t.Errorf("smithi count = %d, want 2", counts["smithi"])
	}
	if counts["mira"] != 0 {
		t.Errorf("mira count = %d, want 0", counts["mira"])
	}
}
