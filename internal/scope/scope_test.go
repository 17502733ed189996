package scope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/remedian/remedian/internal/indicator"
)

// fakeAccounts answers Exists from a fixed set.
type fakeAccounts map[string]bool

func (f fakeAccounts) Exists(name string) bool { return f[name] }

func makeHomes(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, n := range names {
		if err := os.Mkdir(filepath.Join(root, n), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestEnumerateUsers(t *testing.T) {
	root := makeHomes(t, "alice", "bob", "Shared")
	accounts := fakeAccounts{"alice": true, "bob": true}

	contexts := EnumerateUsers(root, DefaultDenylist, accounts)
	if len(contexts) != 2 {
		t.Fatalf("got %d contexts, want 2", len(contexts))
	}
	for _, c := range contexts {
		if c.Kind != indicator.ScopeUser {
			t.Errorf("kind = %v, want user", c.Kind)
		}
		if c.Home != filepath.Join(root, c.Username) {
			t.Errorf("home = %q, want under %q", c.Home, root)
		}
	}
}

func TestEnumerateUsers_SkipsOrphanedHome(t *testing.T) {
	// Directory exists but no account does: must yield nothing.
	root := makeHomes(t, "ghost", "alice")
	accounts := fakeAccounts{"alice": true}

	contexts := EnumerateUsers(root, DefaultDenylist, accounts)
	if len(contexts) != 1 {
		t.Fatalf("got %d contexts, want 1", len(contexts))
	}
	if contexts[0].Username != "alice" {
		t.Errorf("username = %q, want alice", contexts[0].Username)
	}
}

func TestEnumerateUsers_Denylist(t *testing.T) {
	root := makeHomes(t, "Shared", "Guest", "backup_svc")
	// Even a real account is skipped when denylisted.
	accounts := fakeAccounts{"Shared": true, "Guest": true, "backup_svc": true}

	contexts := EnumerateUsers(root, []string{"Shared", "Guest", "backup_svc"}, accounts)
	if len(contexts) != 0 {
		t.Fatalf("got %d contexts, want 0", len(contexts))
	}
}

func TestEnumerateUsers_MissingRoot(t *testing.T) {
	contexts := EnumerateUsers("/nonexistent/users", DefaultDenylist, fakeAccounts{})
	if contexts != nil {
		t.Errorf("expected nil for missing root, got %v", contexts)
	}
}

func TestEnumerateUsers_HiddenDirectories(t *testing.T) {
	root := makeHomes(t, ".hidden", "alice")
	accounts := fakeAccounts{".hidden": true, "alice": true}

	contexts := EnumerateUsers(root, nil, accounts)
	if len(contexts) != 1 || contexts[0].Username != "alice" {
		t.Fatalf("got %v, want only alice", contexts)
	}
}

func TestExpandPath(t *testing.T) {
	userCtx := Context{Kind: indicator.ScopeUser, Username: "alice", Home: "/Users/alice"}
	sysCtx := System()

	tests := []struct {
		ctx  Context
		in   string
		want string
	}{
		{userCtx, "~/Library/LaunchAgents/x.plist", "/Users/alice/Library/LaunchAgents/x.plist"},
		{userCtx, "/private/tmp/p", "/private/tmp/p"},
		{sysCtx, "~/Library/x", "~/Library/x"},
	}
	for _, tt := range tests {
		if got := tt.ctx.ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContextString(t *testing.T) {
	if got := System().String(); got != "system" {
		t.Errorf("system context = %q", got)
	}
	c := Context{Kind: indicator.ScopeUser, Username: "alice"}
	if got := c.String(); got != "user:alice" {
		t.Errorf("user context = %q", got)
	}
}
