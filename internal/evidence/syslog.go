package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/scope"
)

// LogResult is the outcome of a bounded event-log query.
type LogResult struct {
	Count  int
	Sample string
	Events []map[string]any
}

// LogQuerier runs a bounded time-window predicate query against the system
// event log. The log subsystem is the least reliable provider; implementations
// return errors rather than crash, and the provider maps them to inconclusive
// evidence.
type LogQuerier interface {
	Query(ctx context.Context, predicate string, window time.Duration) (LogResult, error)
}

// UnifiedLogQuerier queries the unified log through log(1) with JSON output.
type UnifiedLogQuerier struct{}

// Query runs `log show` for the window and predicate and parses the matches.
func (UnifiedLogQuerier) Query(ctx context.Context, predicate string, window time.Duration) (LogResult, error) {
	last := lastArg(window)
	cmd := exec.CommandContext(ctx, "log", "show",
		"--style", "json",
		"--last", last,
		"--predicate", predicate,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return LogResult{}, fmt.Errorf("log query timed out after %s", window)
		}
		return LogResult{}, fmt.Errorf("log show: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	var events []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &events); err != nil {
		return LogResult{}, fmt.Errorf("parse log output: %w", err)
	}

	result := LogResult{Count: len(events), Events: events}
	if len(events) > 0 {
		if msg, ok := events[0]["eventMessage"].(string); ok {
			result.Sample = msg
		}
	}
	return result, nil
}

// lastArg formats the --last argument for log(1). Windows under a minute
// clamp to 1m: log(1) rejects "0m".
func lastArg(window time.Duration) string {
	minutes := int(window.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%dm", minutes)
}

// LogProvider answers log_pattern indicators. Query failures and timeouts
// degrade to inconclusive evidence so a flaky log subsystem never aborts a run.
type LogProvider struct {
	Querier LogQuerier
}

// Query returns Present with the match count and a sample event message when
// at least one event in the window matches the predicate.
func (p *LogProvider) Query(ctx context.Context, def indicator.Definition, sc scope.Context) Evidence {
	result, err := p.Querier.Query(ctx, def.Predicate, def.Window)
	if err != nil {
		return Failed("log query: %v", err)
	}
	if result.Count == 0 {
		return Absent()
	}
	return Evidence{
		Present: true,
		Value:   result.Sample,
		Count:   result.Count,
		Events:  result.Events,
	}
}
