// Package sigma evaluates Sigma detection rules against log events gathered
// by log_pattern indicators, surfacing hits the declarative expectations
// alone would miss.
package sigma

import (
	"context"
	"embed"
	"io/fs"
	"path/filepath"

	sigmalib "github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"
)

//go:embed rules
var embeddedRules embed.FS

// Engine evaluates Sigma rules against gathered log events.
type Engine struct {
	rules []evaluator.RuleEvaluator
}

// NewDefault creates an Engine loaded with the built-in embedded Sigma rules.
func NewDefault() (*Engine, error) {
	sub, err := fs.Sub(embeddedRules, "rules")
	if err != nil {
		return nil, err
	}
	return New(sub)
}

// New creates an Engine by loading Sigma rules from the given FS.
// All .yml/.yaml files are parsed as Sigma rules.
func New(rulesFS fs.FS) (*Engine, error) {
	var rules []evaluator.RuleEvaluator

	err := fs.WalkDir(rulesFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}
		data, err := fs.ReadFile(rulesFS, path)
		if err != nil {
			return err
		}
		rule, err := sigmalib.ParseRule(data)
		if err != nil {
			return err
		}
		rules = append(rules, *evaluator.ForRule(rule))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Engine{rules: rules}, nil
}

// MatchEvents evaluates all rules against the log events gathered for one
// indicator. Rules are scoped by logsource.category (must match the
// indicator id) when set; an empty category matches every indicator.
func (e *Engine) MatchEvents(ctx context.Context, indicatorID string, events []map[string]interface{}) []Match {
	if len(events) == 0 {
		return nil
	}

	var matches []Match
	for _, ev := range e.rules {
		cat := ev.Rule.Logsource.Category
		if cat != "" && cat != indicatorID {
			continue
		}

		for _, event := range events {
			res, err := ev.Matches(ctx, event)
			if err != nil || !res.Match {
				continue
			}
			matches = append(matches, Match{
				IndicatorID: indicatorID,
				RuleTitle:   ev.Rule.Title,
				RuleID:      ev.Rule.ID,
				Level:       ev.Rule.Level,
				Event:       event,
			})
			break // one match per rule per indicator is sufficient
		}
	}
	return matches
}
