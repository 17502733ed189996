// Package report defines the run report handed to sinks when a run completes.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/remedian/remedian/internal/remedy"
	"github.com/remedian/remedian/internal/rule"
)

// Record is one (indicator, scope) evaluation result, in evaluation order.
type Record struct {
	IndicatorID string        `json:"indicator_id"`
	Scope       string        `json:"scope"`
	Verdict     string        `json:"verdict"`
	Observed    string        `json:"observed,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Outcome     string        `json:"outcome,omitempty"`
	OutcomeNote string        `json:"outcome_note,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// SigmaHit is one detection-rule match over collected log events.
type SigmaHit struct {
	IndicatorID string `json:"indicator_id"`
	RuleTitle   string `json:"rule_title"`
	RuleID      string `json:"rule_id"`
	Level       string `json:"level"`
}

// RunReport is the complete, ordered result of one invocation. It is owned by
// the orchestrator while the run is in flight and immutable once completed.
type RunReport struct {
	RunID       string    `json:"run_id"`
	Hostname    string    `json:"hostname"`
	DryRun      bool      `json:"dry_run"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Records     []Record  `json:"records"`
	SigmaHits   []SigmaHit `json:"sigma_hits,omitempty"`

	Clean      int `json:"clean"`
	Violated   int `json:"violated"`
	Remediated int `json:"remediated"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Unknown    int `json:"unknown"`
}

// New starts a report for a fresh run.
func New(hostname string, dryRun bool) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Hostname:  hostname,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
}

// Append adds one evaluation record and updates the counters.
func (r *RunReport) Append(rec Record, verdict rule.Status, outcome *remedy.Outcome) {
	r.Records = append(r.Records, rec)

	switch verdict {
	case rule.Clean:
		r.Clean++
	case rule.Unknown:
		r.Unknown++
	case rule.Violated:
		r.Violated++
		if outcome == nil {
			return
		}
		switch outcome.Kind {
		case remedy.OutcomeApplied, remedy.OutcomeWouldApply:
			r.Remediated++
		case remedy.OutcomeSkipped:
			r.Skipped++
		case remedy.OutcomeFailed:
			r.Failed++
		}
	}
}

// Complete stamps the completion time.
func (r *RunReport) Complete() {
	r.CompletedAt = time.Now().UTC()
}

// Unresolved reports whether the run left anything that needs attention:
// Failed or Unknown outcomes, or violations with no remediation configured.
func (r *RunReport) Unresolved() bool {
	if r.Failed > 0 || r.Unknown > 0 {
		return true
	}
	return r.Violated > r.Remediated+r.Skipped+r.Failed
}

// Sink consumes one completed run report. Persistence and delivery format are
// the sink's concern, not the engine's.
type Sink interface {
	Consume(report *RunReport) error
}
