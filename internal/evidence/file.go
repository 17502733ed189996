package evidence

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/scope"
)

// FileProvider answers file_exists indicators. The path may be a glob and a
// leading "~/" resolves against the scope home. A missing parent directory is
// a confirmed Absent, not a failure.
type FileProvider struct{}

// Query returns Present with the matched paths when the (possibly glob)
// path resolves to at least one existing file.
func (FileProvider) Query(ctx context.Context, def indicator.Definition, sc scope.Context) Evidence {
	matches, err := expandGlob(sc.ExpandPath(def.Path))
	if err != nil {
		return Failed("glob %s: %v", def.Path, err)
	}

	if len(matches) == 0 {
		return Absent()
	}
	return Evidence{
		Present: true,
		Value:   matches[0],
		Values:  matches,
		Count:   len(matches),
	}
}

// ContentProvider answers file_content indicators: the named pattern is
// searched inside the resolved file. An unreadable file is inconclusive.
type ContentProvider struct{}

// Query returns Present with the matched snippet when the pattern is found
// inside the file. A missing file is Absent; a read error is QueryFailed.
func (ContentProvider) Query(ctx context.Context, def indicator.Definition, sc scope.Context) Evidence {
	matches, err := expandGlob(sc.ExpandPath(def.Path))
	if err != nil {
		return Failed("glob %s: %v", def.Path, err)
	}
	if len(matches) == 0 {
		return Absent()
	}

	re, err := regexp.Compile(def.Pattern)
	if err != nil {
		return Failed("pattern: %v", err)
	}

	var ev Evidence
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return Failed("read %s: %v", path, err)
		}
		snippet := re.Find(data)
		if snippet == nil {
			continue
		}
		if !ev.Present {
			ev.Present = true
			ev.Value = string(snippet)
		}
		ev.Values = append(ev.Values, path)
		ev.Count++
	}
	return ev
}

// expandGlob resolves a path that may contain glob metacharacters to the
// existing files it names. A literal path that does not exist yields nil.
func expandGlob(path string) ([]string, error) {
	matches, err := filepath.Glob(path)
	if err != nil {
		return nil, err
	}
	// Glob only returns existing entries, including for literal paths.
	return matches, nil
}
