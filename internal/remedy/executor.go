package remedy

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/remedian/remedian/internal/evidence"
	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/scope"
)

// Executor applies fix actions to violated indicators. It is invoked only for
// Violated verdicts; every action is idempotent and a failure never aborts
// the rest of the run.
type Executor struct {
	Guard  PolicyGuard
	Killer ProcessKiller
	Prefs  evidence.PrefStore
	Locker FileLocker
	DryRun bool
	Log    zerolog.Logger
}

// NewExecutor wires the real OS-backed actions with default-allow policy.
func NewExecutor(prefs evidence.PrefStore, dryRun bool, log zerolog.Logger) *Executor {
	return &Executor{
		Guard:  AllowAll{},
		Killer: GopsutilKiller{},
		Prefs:  prefs,
		Locker: ChflagsLocker{},
		DryRun: dryRun,
		Log:    log,
	}
}

// Apply runs the indicator's configured remediation against the violation
// described by ev. Every target the action will touch is cleared with the
// policy guard before anything executes; one veto skips the whole action.
// In dry-run the same decision path executes but the state-mutating step is
// replaced by a WouldApply outcome.
func (e *Executor) Apply(ctx context.Context, def indicator.Definition, sc scope.Context, ev evidence.Evidence) Outcome {
	targets, err := actionTargets(def, sc, ev)
	if err != nil {
		return failed(err)
	}

	guard := e.Guard
	if guard == nil {
		guard = AllowAll{}
	}
	for _, target := range targets {
		if ok, reason := guard.Allow(def.Fix.Kind, target); !ok {
			e.Log.Warn().Str("indicator", def.ID).Str("target", target).Str("reason", reason).
				Msg("remediation vetoed by policy")
			return skipped(reason)
		}
	}

	if e.DryRun {
		return wouldApply()
	}

	var out Outcome
	switch def.Fix.Kind {
	case indicator.ActionKill:
		out = e.kill(ctx, ev)
	case indicator.ActionDelete:
		out = e.delete(targets)
	case indicator.ActionResetPreference:
		out = e.resetPreference(ctx, def, sc)
	case indicator.ActionLock:
		out = e.lock(ctx, targets)
	case indicator.ActionRestorePermissions:
		out = e.restorePermissions(def, targets)
	default:
		out = failedf("no executor for action %s", def.Fix.Kind)
	}

	e.Log.Info().Str("indicator", def.ID).Str("scope", sc.String()).
		Str("action", def.Fix.Kind.String()).Str("outcome", out.Kind.String()).
		Msg("remediation")
	return out
}

// actionTargets names everything the action will touch, for policy checks and
// the file actions' work list. Kill targets are process command lines; file
// actions resolve their full match set up front so the guard sees every path,
// not just the first.
func actionTargets(def indicator.Definition, sc scope.Context, ev evidence.Evidence) ([]string, error) {
	switch def.Fix.Kind {
	case indicator.ActionKill:
		if len(ev.Procs) > 0 {
			targets := make([]string, len(ev.Procs))
			for i, p := range ev.Procs {
				targets[i] = p.Cmdline
			}
			return targets, nil
		}
		if ev.Value != "" {
			return []string{ev.Value}, nil
		}
		return nil, nil

	case indicator.ActionResetPreference:
		return []string{def.Domain + "/" + def.Key}, nil

	case indicator.ActionLock:
		if def.Provider == indicator.ProviderPreferenceKey {
			return []string{evidence.DomainPath(def.Domain, sc)}, nil
		}
		return []string{sc.ExpandPath(def.Path)}, nil

	case indicator.ActionDelete, indicator.ActionRestorePermissions:
		if len(ev.Values) > 0 {
			return ev.Values, nil
		}
		// Re-resolve in case the caller passed no matches; absent is success.
		matches, err := filepath.Glob(sc.ExpandPath(def.Path))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 && def.Fix.Kind == indicator.ActionRestorePermissions {
			return []string{sc.ExpandPath(def.Path)}, nil
		}
		return matches, nil

	default:
		return nil, nil
	}
}

func (e *Executor) kill(ctx context.Context, ev evidence.Evidence) Outcome {
	if len(ev.Values) == 0 {
		// Nothing left to kill: trivially done.
		return applied()
	}
	for _, pidStr := range ev.Values {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			return failedf("bad pid %q", pidStr)
		}
		if err := e.Killer.Kill(ctx, int32(pid)); err != nil {
			return failed(err)
		}
	}
	return applied()
}

func (e *Executor) delete(paths []string) Outcome {
	if err := removePaths(paths); err != nil {
		return failed(err)
	}
	return applied()
}

func (e *Executor) resetPreference(ctx context.Context, def indicator.Definition, sc scope.Context) Outcome {
	if err := e.Prefs.Write(ctx, def.Domain, def.Key, def.Fix.Value, sc); err != nil {
		return failed(err)
	}
	return applied()
}

func (e *Executor) lock(ctx context.Context, paths []string) Outcome {
	for _, path := range paths {
		if err := e.Locker.Lock(ctx, path); err != nil {
			return failed(err)
		}
	}
	return applied()
}

func (e *Executor) restorePermissions(def indicator.Definition, paths []string) Outcome {
	mode, err := indicator.ParseMode(def.Fix.Mode)
	if err != nil {
		return failed(err)
	}
	if err := chmodPaths(paths, os.FileMode(mode)); err != nil {
		return failed(err)
	}
	return applied()
}
