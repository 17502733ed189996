// Package engine coordinates one scan-and-remediate run: scope enumeration,
// evidence gathering, verdict evaluation, remediation, and report assembly.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/remedian/remedian/internal/config"
	"github.com/remedian/remedian/internal/evidence"
	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/remedy"
	"github.com/remedian/remedian/internal/report"
	"github.com/remedian/remedian/internal/rule"
	"github.com/remedian/remedian/internal/scope"
	"github.com/remedian/remedian/internal/sigma"
)

// State tracks run progress. Transitions are forward-only; a completed engine
// cannot run again.
type State int

const (
	StateInit State = iota
	StateEnumeratingScopes
	StateEvaluating
	StateCompleted
)

// ScopeFilter restricts which scopes a run evaluates.
type ScopeFilter string

const (
	ScopeAll        ScopeFilter = "all"
	ScopeSystemOnly ScopeFilter = "system"
	ScopeUserOnly   ScopeFilter = "user"
)

// Options holds per-run settings from the CLI.
type Options struct {
	// Only restricts the run to the named indicator ids.
	Only []string
	// Filter restricts the run to one scope kind.
	Filter ScopeFilter
	// DryRun computes remediation decisions without applying them.
	DryRun bool
}

// Engine drives one run over a loaded registry.
type Engine struct {
	cfg       *config.Config
	reg       *indicator.Registry
	providers *evidence.Set
	executor  *remedy.Executor
	accounts  scope.AccountLookup
	matcher   *sigma.Engine
	sinks     []report.Sink
	opts      Options
	log       zerolog.Logger

	state State
}

// New builds an engine with OS-backed providers and executors.
func New(cfg *config.Config, reg *indicator.Registry, opts Options, log zerolog.Logger) *Engine {
	prefs := evidence.NewDefaultsStore()
	executor := remedy.NewExecutor(prefs, opts.DryRun, log)
	if !cfg.Policy.DefaultAllow {
		executor.Guard = remedy.CriticalTargetGuard{Protected: cfg.Policy.Protected}
	}

	matcher, err := sigma.NewDefault()
	if err != nil {
		// Sigma matching is supplemental; a bad rule bundle degrades to none.
		log.Warn().Err(err).Msg("sigma engine init failed")
		matcher = nil
	}

	return &Engine{
		cfg:       cfg,
		reg:       reg,
		providers: evidence.NewDefaultSet(cfg.ProviderTimeout(), log),
		executor:  executor,
		accounts:  scope.OSAccounts{},
		matcher:   matcher,
		opts:      opts,
		log:       log,
	}
}

// SetProviders overrides the provider set (used in tests).
func (e *Engine) SetProviders(s *evidence.Set) { e.providers = s }

// SetExecutor overrides the remediation executor (used in tests).
func (e *Engine) SetExecutor(x *remedy.Executor) { e.executor = x }

// SetAccounts overrides account lookup (used in tests).
func (e *Engine) SetAccounts(a scope.AccountLookup) { e.accounts = a }

// SetMatcher overrides or disables the sigma matcher (used in tests).
func (e *Engine) SetMatcher(m *sigma.Engine) { e.matcher = m }

// AddSink registers a report consumer.
func (e *Engine) AddSink(s report.Sink) { e.sinks = append(e.sinks, s) }

// advance moves the run state forward. Backward transitions are bugs.
func (e *Engine) advance(to State) error {
	if to <= e.state {
		return fmt.Errorf("invalid state transition %d -> %d", e.state, to)
	}
	e.state = to
	return nil
}

// Run executes one full scan-and-remediate pass. The returned report always
// holds one record per evaluated (indicator, scope) pair: no single
// indicator's failure can abort the rest of the run.
func (e *Engine) Run(ctx context.Context) (*report.RunReport, error) {
	if err := e.advance(StateEnumeratingScopes); err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	rep := report.New(hostname, e.opts.DryRun)

	denylist := append(append([]string{}, scope.DefaultDenylist...), e.cfg.Scopes.Denylist...)
	userScopes := scope.EnumerateUsers(e.cfg.Scopes.UserRoot, denylist, e.accounts)
	e.log.Info().Int("user_scopes", len(userScopes)).Msg("scopes enumerated")

	if err := e.advance(StateEvaluating); err != nil {
		return nil, err
	}

	defs := e.reg.Filter(e.opts.Only)
	var pairs []pair
	if e.opts.Filter != ScopeUserOnly {
		for _, def := range indicator.FilterScope(defs, indicator.ScopeSystem) {
			pairs = append(pairs, pair{def: def, sc: scope.System()})
		}
	}
	if e.opts.Filter != ScopeSystemOnly {
		for _, def := range indicator.FilterScope(defs, indicator.ScopeUser) {
			for _, sc := range userScopes {
				pairs = append(pairs, pair{def: def, sc: sc})
			}
		}
	}

	for _, p := range pairs {
		rec, verdict, outcome, events := e.evaluateOne(ctx, p.def, p.sc)
		rep.Append(rec, verdict, outcome)

		if e.matcher != nil && len(events) > 0 {
			for _, hit := range e.matcher.MatchEvents(ctx, p.def.ID, events) {
				rep.SigmaHits = append(rep.SigmaHits, report.SigmaHit{
					IndicatorID: hit.IndicatorID,
					RuleTitle:   hit.RuleTitle,
					RuleID:      hit.RuleID,
					Level:       hit.Level,
				})
			}
		}
	}

	if err := e.advance(StateCompleted); err != nil {
		return nil, err
	}
	rep.Complete()

	for _, sink := range e.sinks {
		if err := sink.Consume(rep); err != nil {
			e.log.Warn().Err(err).Msg("report sink failed")
		}
	}

	return rep, nil
}

type pair struct {
	def indicator.Definition
	sc  scope.Context
}

// evaluateOne runs query → evaluate → maybe remediate for one pair. A panic
// anywhere inside maps to an Unknown record so the run keeps its
// one-record-per-pair contract.
func (e *Engine) evaluateOne(ctx context.Context, def indicator.Definition, sc scope.Context) (rec report.Record, verdict rule.Status, outcome *remedy.Outcome, events []map[string]any) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("indicator", def.ID).Any("panic", r).Msg("indicator evaluation panicked")
			verdict = rule.Unknown
			outcome = nil
			rec = report.Record{
				IndicatorID: def.ID,
				Scope:       sc.String(),
				Verdict:     rule.Unknown.String(),
				Reason:      fmt.Sprintf("evaluation panicked: %v", r),
				Duration:    time.Since(start),
			}
		}
	}()

	ev := e.providers.Query(ctx, def, sc)
	events = ev.Events

	v := rule.Evaluate(def, ev)
	verdict = v.Status

	rec = report.Record{
		IndicatorID: def.ID,
		Scope:       sc.String(),
		Verdict:     v.Status.String(),
		Observed:    v.Observed,
		Reason:      v.Reason,
	}

	if v.Status == rule.Violated && def.Fix.Kind != indicator.ActionNone {
		out := e.executor.Apply(ctx, def, sc, ev)
		outcome = &out
		rec.Outcome = out.Kind.String()
		rec.OutcomeNote = out.Reason
	}

	rec.Duration = time.Since(start)
	return rec, verdict, outcome, events
}

// ExitCode maps a completed report to the process exit status.
// 0 means nothing is left to act on; 2 means violations, failures, or
// inconclusive verdicts remain.
func ExitCode(rep *report.RunReport) int {
	if rep.Unresolved() {
		return 2
	}
	return 0
}
