// Package indicator defines the declarative indicator-of-compromise model and
// the registry that loads it from configuration packs.
package indicator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Scope declares where an indicator is evaluated.
type Scope int

const (
	// ScopeSystem evaluates once, system-wide.
	ScopeSystem Scope = iota
	// ScopeUser evaluates once per discovered user home directory.
	ScopeUser
)

// String returns the pack-file spelling of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeSystem:
		return "system"
	case ScopeUser:
		return "user"
	default:
		return "unknown"
	}
}

// ParseScope converts a pack-file scope string to a Scope.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(s) {
	case "system", "system_wide", "":
		return ScopeSystem, nil
	case "user", "per_user":
		return ScopeUser, nil
	default:
		return 0, fmt.Errorf("unknown scope %q", s)
	}
}

// ProviderKind identifies which evidence provider answers an indicator.
type ProviderKind int

const (
	ProviderProcessPattern ProviderKind = iota
	ProviderFileExists
	ProviderFileContent
	ProviderPreferenceKey
	ProviderLogPattern
)

func (k ProviderKind) String() string {
	switch k {
	case ProviderProcessPattern:
		return "process_pattern"
	case ProviderFileExists:
		return "file_exists"
	case ProviderFileContent:
		return "file_content"
	case ProviderPreferenceKey:
		return "preference_key"
	case ProviderLogPattern:
		return "log_pattern"
	default:
		return "unknown"
	}
}

// ParseProviderKind converts a pack-file provider string to a ProviderKind.
func ParseProviderKind(s string) (ProviderKind, error) {
	switch strings.ToLower(s) {
	case "process_pattern":
		return ProviderProcessPattern, nil
	case "file_exists":
		return ProviderFileExists, nil
	case "file_content":
		return ProviderFileContent, nil
	case "preference_key":
		return ProviderPreferenceKey, nil
	case "log_pattern":
		return ProviderLogPattern, nil
	default:
		return 0, fmt.Errorf("unknown provider %q", s)
	}
}

// ExpectationKind classifies what state the indicator expects.
type ExpectationKind int

const (
	MustNotExist ExpectationKind = iota
	MustEqual
	MustContainAll
)

func (k ExpectationKind) String() string {
	switch k {
	case MustNotExist:
		return "must_not_exist"
	case MustEqual:
		return "must_equal"
	case MustContainAll:
		return "must_contain_all"
	default:
		return "unknown"
	}
}

// ParseExpectationKind converts a pack-file expectation string.
func ParseExpectationKind(s string) (ExpectationKind, error) {
	switch strings.ToLower(s) {
	case "must_not_exist", "":
		return MustNotExist, nil
	case "must_equal":
		return MustEqual, nil
	case "must_contain_all":
		return MustContainAll, nil
	default:
		return 0, fmt.Errorf("unknown expectation %q", s)
	}
}

// Expectation is the pass/fail predicate attached to an indicator.
type Expectation struct {
	Kind ExpectationKind
	// Value is the expected scalar for MustEqual.
	Value string
	// Values are the required members for MustContainAll.
	Values []string
}

// ActionKind identifies the remediation applied to a violated indicator.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionKill
	ActionDelete
	ActionResetPreference
	ActionLock
	ActionRestorePermissions
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionKill:
		return "kill"
	case ActionDelete:
		return "delete"
	case ActionResetPreference:
		return "reset_preference"
	case ActionLock:
		return "lock"
	case ActionRestorePermissions:
		return "restore_permissions"
	default:
		return "unknown"
	}
}

// ParseActionKind converts a pack-file remediation string.
func ParseActionKind(s string) (ActionKind, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return ActionNone, nil
	case "kill":
		return ActionKill, nil
	case "delete":
		return ActionDelete, nil
	case "reset_preference":
		return ActionResetPreference, nil
	case "lock":
		return ActionLock, nil
	case "restore_permissions":
		return ActionRestorePermissions, nil
	default:
		return 0, fmt.Errorf("unknown remediation %q", s)
	}
}

// Remediation is the corrective action configured for an indicator.
type Remediation struct {
	Kind ActionKind
	// Value is the value written by ActionResetPreference.
	Value string
	// Mode is the octal permission string applied by ActionRestorePermissions.
	Mode string
}

// Definition is one immutable indicator-of-compromise definition.
// The set is loaded once at startup and never mutated.
type Definition struct {
	// ID is the stable unique key within the registry.
	ID string
	// Description explains what compromise this indicator detects.
	Description string
	// Scope selects system-wide or per-user evaluation.
	Scope Scope
	// Provider selects the evidence provider that answers this indicator.
	Provider ProviderKind
	// Pattern is the regular expression for process_pattern, file_content
	// and log sample matching.
	Pattern string
	// Path is the (possibly glob) filesystem path for file_exists,
	// file_content and restore_permissions targets. A leading "~/" resolves
	// against the scope's home directory.
	Path string
	// Domain and Key name the preference read by preference_key.
	Domain string
	Key    string
	// Predicate is the event-log query string for log_pattern.
	Predicate string
	// Window bounds the log_pattern query (default set by the registry).
	Window time.Duration
	// Expect is the expected-state predicate.
	Expect Expectation
	// Fix is the remediation applied when the expectation is violated.
	Fix Remediation
}

// compatibleActions maps each provider kind to the remediations whose target
// its evidence can name. Kill needs a process, delete needs a path, and the
// preference actions need a domain/key.
var compatibleActions = map[ProviderKind][]ActionKind{
	ProviderProcessPattern: {ActionNone, ActionKill},
	ProviderFileExists:     {ActionNone, ActionDelete, ActionRestorePermissions, ActionLock},
	ProviderFileContent:    {ActionNone, ActionDelete},
	ProviderPreferenceKey:  {ActionNone, ActionResetPreference, ActionLock},
	ProviderLogPattern:     {ActionNone},
}

// Validate checks internal consistency of a single definition.
// Called eagerly at registry load so a bad pack fails at startup, not mid-run.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("indicator has no id")
	}

	switch d.Provider {
	case ProviderProcessPattern:
		if d.Pattern == "" {
			return fmt.Errorf("indicator %s: process_pattern requires pattern", d.ID)
		}
	case ProviderFileExists:
		if d.Path == "" {
			return fmt.Errorf("indicator %s: file_exists requires path", d.ID)
		}
	case ProviderFileContent:
		if d.Path == "" || d.Pattern == "" {
			return fmt.Errorf("indicator %s: file_content requires path and pattern", d.ID)
		}
	case ProviderPreferenceKey:
		if d.Domain == "" || d.Key == "" {
			return fmt.Errorf("indicator %s: preference_key requires domain and key", d.ID)
		}
	case ProviderLogPattern:
		if d.Predicate == "" {
			return fmt.Errorf("indicator %s: log_pattern requires predicate", d.ID)
		}
	}

	if d.Pattern != "" {
		if _, err := regexp.Compile(d.Pattern); err != nil {
			return fmt.Errorf("indicator %s: pattern: %w", d.ID, err)
		}
	}

	switch d.Expect.Kind {
	case MustEqual:
		if d.Expect.Value == "" {
			return fmt.Errorf("indicator %s: must_equal requires value", d.ID)
		}
	case MustContainAll:
		if len(d.Expect.Values) == 0 {
			return fmt.Errorf("indicator %s: must_contain_all requires values", d.ID)
		}
	}

	if !actionAllowed(d.Provider, d.Fix.Kind) {
		return fmt.Errorf("indicator %s: remediation %s is incompatible with provider %s",
			d.ID, d.Fix.Kind, d.Provider)
	}

	switch d.Fix.Kind {
	case ActionResetPreference:
		if d.Fix.Value == "" {
			return fmt.Errorf("indicator %s: reset_preference requires remediation value", d.ID)
		}
	case ActionRestorePermissions:
		if _, err := ParseMode(d.Fix.Mode); err != nil {
			return fmt.Errorf("indicator %s: %w", d.ID, err)
		}
	}

	return nil
}

func actionAllowed(p ProviderKind, a ActionKind) bool {
	for _, allowed := range compatibleActions[p] {
		if a == allowed {
			return true
		}
	}
	return false
}

// ParseMode converts an octal permission string like "0644" to a file mode.
func ParseMode(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("restore_permissions requires mode")
	}
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", s, err)
	}
	return uint32(mode), nil
}
