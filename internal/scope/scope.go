// Package scope resolves the evaluation contexts a run iterates over: the
// single system-wide context plus one context per discovered user account.
package scope

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/remedian/remedian/internal/indicator"
)

// DefaultUserRoot is where user home directories live on the target OS.
const DefaultUserRoot = "/Users"

// DefaultDenylist names shared or service home directories that never map to
// a personal account and must not be scanned.
var DefaultDenylist = []string{"Shared", "Guest", ".localized"}

// Context is one resolved evaluation context. Built fresh per run, never
// persisted.
type Context struct {
	Kind indicator.Scope
	// Username and Home are set for per-user contexts only.
	Username string
	Home     string
}

// System returns the single system-wide context.
func System() Context {
	return Context{Kind: indicator.ScopeSystem}
}

// String labels the context for report records.
func (c Context) String() string {
	if c.Kind == indicator.ScopeUser {
		return "user:" + c.Username
	}
	return "system"
}

// AccountLookup answers whether a real local account exists for a name.
// The OS implementation uses the account database; tests inject a fake.
type AccountLookup interface {
	Exists(username string) bool
}

// OSAccounts resolves accounts through the local user database.
type OSAccounts struct{}

// Exists reports whether the local account database knows username.
func (OSAccounts) Exists(username string) bool {
	_, err := user.Lookup(username)
	return err == nil
}

// EnumerateUsers discovers per-user contexts by listing home directories under
// root. A directory yields a context only when its name is not denylisted AND
// a real account exists for it — residual directories with no matching account
// are skipped entirely so no indicator ever runs against them.
func EnumerateUsers(root string, denylist []string, accounts AccountLookup) []Context {
	entries, err := os.ReadDir(root)
	if err != nil {
		// No user root (or unreadable) means no per-user contexts, not a
		// run failure.
		return nil
	}

	denied := make(map[string]bool, len(denylist))
	for _, name := range denylist {
		denied[strings.ToLower(name)] = true
	}

	var contexts []Context
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || denied[strings.ToLower(name)] {
			continue
		}
		if !accounts.Exists(name) {
			continue
		}
		contexts = append(contexts, Context{
			Kind:     indicator.ScopeUser,
			Username: name,
			Home:     filepath.Join(root, name),
		})
	}
	return contexts
}

// ExpandPath resolves a leading "~/" in path against the context home.
// System-scope paths are returned unchanged.
func (c Context) ExpandPath(path string) string {
	if c.Kind == indicator.ScopeUser && strings.HasPrefix(path, "~/") {
		return filepath.Join(c.Home, path[2:])
	}
	return path
}
