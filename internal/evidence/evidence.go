// Package evidence implements the read-only providers that answer indicator
// queries about current system state. Providers never mutate anything and
// never decide pass/fail; that is the evaluator's job.
package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/scope"
)

// Evidence is the result of querying a provider for one (indicator, scope)
// pair. QueryFailed distinguishes "confirmed absent" from "could not
// determine" — the evaluator maps the latter to Unknown, never to a verdict.
type Evidence struct {
	// Present reports whether the queried artifact was observed.
	Present bool
	// Value is the primary observed value (cmdline, path, key value, sample).
	Value string
	// Values carries multi-valued observations: matching PIDs, glob matches,
	// array-typed preference members.
	Values []string
	// Procs carries the matched processes for process_pattern evidence so
	// policy checks and kill can name every target, not just the first.
	Procs []ProcessInfo
	// Count is the number of matches for countable providers.
	Count int
	// Events holds raw matched log events for downstream rule matching.
	// Only the log provider sets it.
	Events []map[string]any
	// QueryFailed marks inconclusive evidence (permission denied, subsystem
	// unavailable, timeout).
	QueryFailed bool
	// FailReason explains a failed query.
	FailReason string
}

// Failed builds inconclusive evidence with a reason.
func Failed(format string, args ...any) Evidence {
	return Evidence{QueryFailed: true, FailReason: fmt.Sprintf(format, args...)}
}

// Absent is the confirmed-absent evidence value.
func Absent() Evidence { return Evidence{} }

// Provider answers queries for one indicator provider kind.
type Provider interface {
	Query(ctx context.Context, def indicator.Definition, sc scope.Context) Evidence
}

// Set dispatches queries to the provider registered for each kind, wrapping
// every call in a bounded timeout. A timeout is inconclusive evidence, not a
// run failure.
type Set struct {
	providers map[indicator.ProviderKind]Provider
	timeout   time.Duration
	log       zerolog.Logger
}

// NewSet builds a provider set with the given per-call timeout.
func NewSet(timeout time.Duration, log zerolog.Logger) *Set {
	return &Set{
		providers: make(map[indicator.ProviderKind]Provider),
		timeout:   timeout,
		log:       log,
	}
}

// NewDefaultSet wires the real OS-backed providers.
func NewDefaultSet(timeout time.Duration, log zerolog.Logger) *Set {
	s := NewSet(timeout, log)
	prefs := NewDefaultsStore()
	s.Register(indicator.ProviderProcessPattern, &ProcessProvider{Lister: GopsutilLister{}})
	s.Register(indicator.ProviderFileExists, &FileProvider{})
	s.Register(indicator.ProviderFileContent, &ContentProvider{})
	s.Register(indicator.ProviderPreferenceKey, &PreferenceProvider{Store: prefs})
	s.Register(indicator.ProviderLogPattern, &LogProvider{Querier: UnifiedLogQuerier{}})
	return s
}

// Register installs a provider for a kind, replacing any previous one.
func (s *Set) Register(kind indicator.ProviderKind, p Provider) {
	s.providers[kind] = p
}

// Query runs the provider for def's kind under the set's timeout.
func (s *Set) Query(ctx context.Context, def indicator.Definition, sc scope.Context) Evidence {
	p, ok := s.providers[def.Provider]
	if !ok {
		return Failed("no provider registered for %s", def.Provider)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	ev := p.Query(ctx, def, sc)
	if ctx.Err() == context.DeadlineExceeded && !ev.QueryFailed {
		ev = Failed("provider %s timed out after %s", def.Provider, s.timeout)
	}
	s.log.Debug().
		Str("indicator", def.ID).
		Str("scope", sc.String()).
		Bool("present", ev.Present).
		Bool("query_failed", ev.QueryFailed).
		Dur("took", time.Since(start)).
		Msg("evidence query")
	return ev
}
