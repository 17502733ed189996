// Package rule turns provider evidence into verdicts. It is pure logic over
// in-memory values; all environment access stays behind the evidence layer.
package rule

import (
	"fmt"
	"strings"

	"github.com/remedian/remedian/internal/evidence"
	"github.com/remedian/remedian/internal/indicator"
)

// Status is the outcome class of evaluating one indicator.
type Status int

const (
	// Clean means the expectation holds.
	Clean Status = iota
	// Violated means the expectation does not hold and remediation applies.
	Violated
	// Unknown means the evidence was inconclusive. The engine must not
	// remediate, nor report cleanliness, on Unknown.
	Unknown
)

func (s Status) String() string {
	switch s {
	case Clean:
		return "clean"
	case Violated:
		return "violated"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Verdict is the evaluation result for one (indicator, scope) pair.
type Verdict struct {
	Status Status
	// Observed carries the offending value for Violated verdicts.
	Observed string
	// Reason explains Unknown verdicts.
	Reason string
}

// Evaluate combines evidence with the indicator's expectation.
// Inconclusive evidence always yields Unknown regardless of expectation.
func Evaluate(def indicator.Definition, ev evidence.Evidence) Verdict {
	if ev.QueryFailed {
		return Verdict{Status: Unknown, Reason: ev.FailReason}
	}

	switch def.Expect.Kind {
	case indicator.MustNotExist:
		if ev.Present {
			return Verdict{Status: Violated, Observed: ev.Value}
		}
		return Verdict{Status: Clean}

	case indicator.MustEqual:
		// A missing value is a violation: "no value" is not "expected value".
		if !ev.Present {
			return Verdict{Status: Violated, Observed: "(absent)"}
		}
		if observedEquals(ev, def.Expect.Value) {
			return Verdict{Status: Clean}
		}
		return Verdict{Status: Violated, Observed: ev.Value}

	case indicator.MustContainAll:
		if !ev.Present {
			return Verdict{Status: Violated, Observed: "(absent)"}
		}
		if missing := missingMembers(ev.Values, def.Expect.Values); len(missing) > 0 {
			return Verdict{
				Status:   Violated,
				Observed: fmt.Sprintf("missing %s in %v", strings.Join(missing, ","), ev.Values),
			}
		}
		return Verdict{Status: Clean}

	default:
		return Verdict{Status: Unknown, Reason: fmt.Sprintf("unknown expectation %v", def.Expect.Kind)}
	}
}

// observedEquals compares the observed value to the expected scalar.
// Array-typed observations match when the expected value is among the
// members, so cosmetic reordering never produces a false violation.
func observedEquals(ev evidence.Evidence, want string) bool {
	if len(ev.Values) > 0 && ev.Value != want {
		for _, member := range ev.Values {
			if member == want {
				return len(ev.Values) == 1
			}
		}
		return false
	}
	return ev.Value == want
}

// missingMembers returns required members absent from observed, order-independent.
func missingMembers(observed, required []string) []string {
	set := make(map[string]bool, len(observed))
	for _, v := range observed {
		set[v] = true
	}
	var missing []string
	for _, want := range required {
		if !set[want] {
			missing = append(missing, want)
		}
	}
	return missing
}
