package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DirSink writes the run report to a timestamped directory as JSON, plus a
// SHA-256 manifest so the artifact can be integrity-checked later.
type DirSink struct {
	baseDir string
}

// NewDirSink creates a sink rooted at baseDir.
func NewDirSink(baseDir string) *DirSink {
	return &DirSink{baseDir: baseDir}
}

// FileHash records the SHA-256 hash of a written artifact.
type FileHash struct {
	File   string `json:"file"`
	SHA256 string `json:"sha256"`
	Size   int    `json:"size"`
}

// Manifest records artifact hashes for integrity verification.
type Manifest struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Hostname    string     `json:"hostname"`
	RunID       string     `json:"run_id"`
	Files       []FileHash `json:"files"`
}

// Consume writes report.json and manifest.json under a per-run directory.
func (s *DirSink) Consume(r *RunReport) error {
	outDir := filepath.Join(s.baseDir, r.StartedAt.Format("2006-01-02T15-04-05"))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	reportPath := filepath.Join(outDir, "report.json")
	if err := os.WriteFile(reportPath, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	manifest := Manifest{
		GeneratedAt: time.Now().UTC(),
		Hostname:    r.Hostname,
		RunID:       r.RunID,
		Files: []FileHash{{
			File:   "report.json",
			SHA256: sha256Hex(data),
			Size:   len(data),
		}},
	}
	mdata, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "manifest.json"), mdata, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
