// Package remedy applies configured fix actions to violated indicators,
// honoring policy vetoes, idempotence, and dry-run.
package remedy

import "fmt"

// OutcomeKind classifies what happened to one remediation attempt.
type OutcomeKind int

const (
	// OutcomeApplied means the fix ran (or was already in effect).
	OutcomeApplied OutcomeKind = iota
	// OutcomeWouldApply means dry-run decided the fix would run.
	OutcomeWouldApply
	// OutcomeSkipped means policy vetoed the action. Not an error.
	OutcomeSkipped
	// OutcomeFailed means the fix errored. Isolated to this indicator.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeApplied:
		return "applied"
	case OutcomeWouldApply:
		return "would_apply"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one remediation attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func applied() Outcome                 { return Outcome{Kind: OutcomeApplied} }
func wouldApply() Outcome              { return Outcome{Kind: OutcomeWouldApply} }
func skipped(reason string) Outcome    { return Outcome{Kind: OutcomeSkipped, Reason: reason} }
func failed(err error) Outcome         { return Outcome{Kind: OutcomeFailed, Reason: err.Error()} }
func failedf(f string, a ...any) Outcome { return Outcome{Kind: OutcomeFailed, Reason: fmt.Sprintf(f, a...)} }
