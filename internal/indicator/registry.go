package indicator

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed packs
var embeddedPacks embed.FS

// DefaultLogWindow bounds log_pattern queries when a pack omits the window.
const DefaultLogWindow = 24 * time.Hour

// ConfigError is the fatal error class for pack problems. It aborts startup
// before any scope is touched.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("indicator pack %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NotFoundError reports a Lookup for an id the registry does not hold.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("indicator %q not found", e.ID)
}

// Registry holds the validated, read-only indicator set for a process lifetime.
type Registry struct {
	defs []Definition
	byID map[string]int
}

// rawDefinition is the pack-file shape shared by the TOML and YAML decoders.
type rawDefinition struct {
	ID          string   `toml:"id" yaml:"id"`
	Description string   `toml:"description" yaml:"description"`
	Scope       string   `toml:"scope" yaml:"scope"`
	Provider    string   `toml:"provider" yaml:"provider"`
	Pattern     string   `toml:"pattern" yaml:"pattern"`
	Path        string   `toml:"path" yaml:"path"`
	Domain      string   `toml:"domain" yaml:"domain"`
	Key         string   `toml:"key" yaml:"key"`
	Predicate   string   `toml:"predicate" yaml:"predicate"`
	Window      string   `toml:"window" yaml:"window"`
	Expect      string   `toml:"expect" yaml:"expect"`
	Value       string   `toml:"value" yaml:"value"`
	Values      []string `toml:"values" yaml:"values"`
	Remediation string   `toml:"remediation" yaml:"remediation"`
	FixValue    string   `toml:"remediation_value" yaml:"remediation_value"`
	FixMode     string   `toml:"mode" yaml:"mode"`
}

type rawPack struct {
	Indicators []rawDefinition `toml:"indicator" yaml:"indicators"`
}

// Load reads one pack file or every pack file in a directory and returns a
// validated registry. Any schema error is a *ConfigError.
func Load(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, &ConfigError{Source: path, Err: err}
		}
		for _, e := range entries {
			if e.IsDir() || !isPackFile(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(path, e.Name()))
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, &ConfigError{Source: path, Err: fmt.Errorf("no pack files (.toml/.yaml) in directory")}
		}
	} else {
		files = []string{path}
	}

	r := &Registry{byID: make(map[string]int)}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, &ConfigError{Source: f, Err: err}
		}
		if err := r.addPack(f, data); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadDefault returns a registry built from the packs embedded in the binary.
func LoadDefault() (*Registry, error) {
	r := &Registry{byID: make(map[string]int)}
	err := fs.WalkDir(embeddedPacks, "packs", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isPackFile(path) {
			return err
		}
		data, err := embeddedPacks.ReadFile(path)
		if err != nil {
			return err
		}
		return r.addPack(path, data)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Merge returns a registry holding this registry's definitions plus other's.
// Duplicate ids are a ConfigError, same as within a single pack.
func (r *Registry) Merge(other *Registry) (*Registry, error) {
	merged := &Registry{byID: make(map[string]int)}
	for _, d := range append(append([]Definition{}, r.defs...), other.defs...) {
		if _, dup := merged.byID[d.ID]; dup {
			return nil, &ConfigError{Source: d.ID, Err: fmt.Errorf("duplicate indicator id")}
		}
		merged.byID[d.ID] = len(merged.defs)
		merged.defs = append(merged.defs, d)
	}
	return merged, nil
}

func isPackFile(name string) bool {
	switch filepath.Ext(name) {
	case ".toml", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func (r *Registry) addPack(source string, data []byte) error {
	var pack rawPack
	var err error
	switch filepath.Ext(source) {
	case ".toml":
		err = toml.Unmarshal(data, &pack)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &pack)
	default:
		err = fmt.Errorf("unsupported pack format %q", filepath.Ext(source))
	}
	if err != nil {
		return &ConfigError{Source: source, Err: err}
	}

	for _, raw := range pack.Indicators {
		def, err := raw.toDefinition()
		if err != nil {
			return &ConfigError{Source: source, Err: err}
		}
		if err := def.Validate(); err != nil {
			return &ConfigError{Source: source, Err: err}
		}
		if _, dup := r.byID[def.ID]; dup {
			return &ConfigError{Source: source, Err: fmt.Errorf("duplicate indicator id %q", def.ID)}
		}
		r.byID[def.ID] = len(r.defs)
		r.defs = append(r.defs, def)
	}
	return nil
}

func (raw rawDefinition) toDefinition() (Definition, error) {
	var def Definition
	var err error

	def.ID = raw.ID
	def.Description = raw.Description
	if def.Scope, err = ParseScope(raw.Scope); err != nil {
		return def, fmt.Errorf("indicator %s: %w", raw.ID, err)
	}
	if def.Provider, err = ParseProviderKind(raw.Provider); err != nil {
		return def, fmt.Errorf("indicator %s: %w", raw.ID, err)
	}
	def.Pattern = raw.Pattern
	def.Path = raw.Path
	def.Domain = raw.Domain
	def.Key = raw.Key
	def.Predicate = raw.Predicate

	def.Window = DefaultLogWindow
	if raw.Window != "" {
		if def.Window, err = time.ParseDuration(raw.Window); err != nil {
			return def, fmt.Errorf("indicator %s: window: %w", raw.ID, err)
		}
	}

	var expectKind ExpectationKind
	if expectKind, err = ParseExpectationKind(raw.Expect); err != nil {
		return def, fmt.Errorf("indicator %s: %w", raw.ID, err)
	}
	def.Expect = Expectation{Kind: expectKind, Value: raw.Value, Values: raw.Values}

	var actionKind ActionKind
	if actionKind, err = ParseActionKind(raw.Remediation); err != nil {
		return def, fmt.Errorf("indicator %s: %w", raw.ID, err)
	}
	def.Fix = Remediation{Kind: actionKind, Value: raw.FixValue, Mode: raw.FixMode}

	return def, nil
}

// All returns the definitions in pack order.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Len returns the number of definitions held.
func (r *Registry) Len() int { return len(r.defs) }

// Lookup returns the definition for id, or a *NotFoundError.
func (r *Registry) Lookup(id string) (Definition, error) {
	idx, ok := r.byID[id]
	if !ok {
		return Definition{}, &NotFoundError{ID: id}
	}
	return r.defs[idx], nil
}

// Filter returns only definitions whose IDs are in the allowed list.
// If allowed is empty, all definitions are returned.
func (r *Registry) Filter(allowed []string) []Definition {
	if len(allowed) == 0 {
		return r.All()
	}
	set := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	var filtered []Definition
	for _, d := range r.defs {
		if set[d.ID] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// FilterScope returns only definitions evaluated at the given scope.
func FilterScope(defs []Definition, scope Scope) []Definition {
	var filtered []Definition
	for _, d := range defs {
		if d.Scope == scope {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
