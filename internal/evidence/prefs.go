package evidence

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/scope"
)

// PrefValue is one preference key read from a domain. Array-typed values
// carry their members so comparisons can treat them as sets.
type PrefValue struct {
	Raw     string
	Members []string
	IsArray bool
}

// PrefStore is the port to the OS preference store. Read never mutates;
// Write and Delete are used by remediation only. Tests inject an in-memory
// fake.
type PrefStore interface {
	Read(ctx context.Context, domain, key string, sc scope.Context) (PrefValue, bool, error)
	Write(ctx context.Context, domain, key, value string, sc scope.Context) error
}

// DomainPath resolves the on-disk plist backing a preference domain within a
// scope. Lock remediation targets this file.
func DomainPath(domain string, sc scope.Context) string {
	if sc.Kind == indicator.ScopeUser {
		return filepath.Join(sc.Home, "Library", "Preferences", domain+".plist")
	}
	return filepath.Join("/Library", "Preferences", domain+".plist")
}

// DefaultsStore reads and writes preferences by shelling out to the
// defaults(1) utility, addressing domains by their backing plist path so
// per-user scopes resolve correctly even when run as root.
type DefaultsStore struct{}

// NewDefaultsStore returns the exec-backed preference store.
func NewDefaultsStore() DefaultsStore { return DefaultsStore{} }

// Read returns the current value of domain/key within the scope.
// A missing key or domain is (zero, false, nil); other failures are errors.
func (DefaultsStore) Read(ctx context.Context, domain, key string, sc scope.Context) (PrefValue, bool, error) {
	cmd := exec.CommandContext(ctx, "defaults", "read", DomainPath(domain, sc), key)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if strings.Contains(msg, "does not exist") {
			return PrefValue{}, false, nil
		}
		return PrefValue{}, false, fmt.Errorf("defaults read %s %s: %v: %s", domain, key, err, strings.TrimSpace(msg))
	}

	return parseDefaultsOutput(stdout.String()), true, nil
}

// Write sets domain/key to value within the scope.
func (DefaultsStore) Write(ctx context.Context, domain, key, value string, sc scope.Context) error {
	cmd := exec.CommandContext(ctx, "defaults", "write", DomainPath(domain, sc), key, value)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("defaults write %s %s: %v: %s", domain, key, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// parseDefaultsOutput converts defaults(1) output into a PrefValue.
// Arrays print one member per line between a "(" and ")" line; a
// parenthesized value on a single line is a scalar, not an array, and a
// member's own commas survive because splitting happens on line boundaries.
func parseDefaultsOutput(out string) PrefValue {
	trimmed := strings.TrimSpace(out)
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != "(" || strings.TrimSpace(lines[len(lines)-1]) != ")" {
		return PrefValue{Raw: trimmed}
	}

	var members []string
	for _, line := range lines[1 : len(lines)-1] {
		member := strings.TrimSuffix(strings.TrimSpace(line), ",")
		member = strings.Trim(member, `"`)
		if member != "" {
			members = append(members, member)
		}
	}
	return PrefValue{Raw: trimmed, Members: members, IsArray: true}
}

// PreferenceProvider answers preference_key indicators through a PrefStore.
type PreferenceProvider struct {
	Store PrefStore
}

// Query returns Present with the current value when the key is defined.
// An undefined key is Absent; a store failure is inconclusive.
func (p *PreferenceProvider) Query(ctx context.Context, def indicator.Definition, sc scope.Context) Evidence {
	val, found, err := p.Store.Read(ctx, def.Domain, def.Key, sc)
	if err != nil {
		return Failed("preference %s/%s: %v", def.Domain, def.Key, err)
	}
	if !found {
		return Absent()
	}
	return Evidence{
		Present: true,
		Value:   val.Raw,
		Values:  val.Members,
		Count:   1,
	}
}
