package evidence

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/scope"
)

// ProcessInfo is one live process as seen by a lister.
type ProcessInfo struct {
	PID     int32
	Cmdline string
}

// ProcessLister enumerates live processes. Tests inject a fake; the real
// implementation uses gopsutil.
type ProcessLister interface {
	Processes(ctx context.Context) ([]ProcessInfo, error)
}

// GopsutilLister lists processes through the gopsutil process table.
type GopsutilLister struct{}

// Processes returns the PID and command line of every visible process.
// Processes that exit mid-enumeration are skipped, not errors.
func (GopsutilLister) Processes(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		infos = append(infos, ProcessInfo{PID: p.Pid, Cmdline: cmdline})
	}
	return infos, nil
}

// ProcessProvider matches live process command lines against the indicator
// pattern. Zero processes present is a clean Absent, never a failure.
type ProcessProvider struct {
	Lister ProcessLister
}

// Query returns Present with the matching PIDs when at least one process
// command line matches the pattern.
func (p *ProcessProvider) Query(ctx context.Context, def indicator.Definition, sc scope.Context) Evidence {
	re, err := regexp.Compile(def.Pattern)
	if err != nil {
		// The registry validates patterns at load; this guards direct use.
		return Failed("pattern: %v", err)
	}

	procs, err := p.Lister.Processes(ctx)
	if err != nil {
		return Failed("process list: %v", err)
	}

	var ev Evidence
	for _, proc := range procs {
		if !re.MatchString(proc.Cmdline) {
			continue
		}
		if !ev.Present {
			ev.Present = true
			ev.Value = proc.Cmdline
		}
		ev.Values = append(ev.Values, strconv.Itoa(int(proc.PID)))
		ev.Procs = append(ev.Procs, proc)
		ev.Count++
	}
	return ev
}
