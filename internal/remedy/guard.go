package remedy

import (
	"regexp"
	"strings"

	"github.com/remedian/remedian/internal/indicator"
)

// PolicyGuard models host-level restrictions on remediation actions. A veto
// yields a Skipped outcome, never a run failure. The engine treats it as an
// injected capability check, default-allow when absent.
type PolicyGuard interface {
	Allow(action indicator.ActionKind, target string) (bool, string)
}

// AllowAll is the default guard: every action is permitted.
type AllowAll struct{}

func (AllowAll) Allow(indicator.ActionKind, string) (bool, string) { return true, "" }

// systemCriticalPatterns name processes and paths the engine refuses to touch
// regardless of what a pack says. Killing these destabilizes the host.
var systemCriticalPatterns = []string{
	"/sbin/launchd",
	"/usr/libexec/",
	"/System/",
	"kernel_task",
}

// CriticalTargetGuard vetoes kill and delete actions against system-critical
// targets and honors an operator-supplied protected list on top.
type CriticalTargetGuard struct {
	// Protected are extra operator-configured substrings or regexps.
	Protected []string
}

// Allow vetoes destructive actions whose target matches a protected pattern.
func (g CriticalTargetGuard) Allow(action indicator.ActionKind, target string) (bool, string) {
	switch action {
	case indicator.ActionKill, indicator.ActionDelete:
	default:
		return true, ""
	}

	for _, pattern := range append(append([]string{}, systemCriticalPatterns...), g.Protected...) {
		if strings.Contains(target, pattern) {
			return false, "protected target: " + pattern
		}
		if re, err := regexp.Compile(pattern); err == nil && re.MatchString(target) {
			return false, "protected target: " + pattern
		}
	}
	return true, ""
}
