package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

// RecordDir is ./reports/<target>_<started_at> for rec, the directory SaveResult writes into.
// A record without a start time is keyed by its id instead, so repeated calls agree.
func RecordDir(rec schema.ScanRecord, outputDir string) string {
	name := safeName(rec.Target)
	id := safeName(rec.ID)
	if name == "" {
		name = id
	}
	switch {
	case rec.StartedAt != nil:
		name += "_" + rec.StartedAt.UTC().Format("20060102_150405")
	case id != "" && id != name:
		name += "_" + id
	case name == "":
		name = "scan"
	}
	return filepath.Join(outputDir, name)
}

// SaveResult writes a record snapshot into a JSON file inside RecordDir
func SaveResult(rec schema.ScanRecord, outputDir string) (string, error) {
	dir := RecordDir(rec, outputDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	file := filepath.Join(dir, schema.RecordFile)
	fh, err := os.Create(file)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", schema.RecordFile, err)
	}
	defer fh.Close()

	enc := json.NewEncoder(fh)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}

	return file, nil
}

// safeName replaces characters not safe for file paths
func safeName(s string) string {
	invalid := []rune{'/', '\\', ':', '*', '?', '"', '<', '>', '|', ' '}
	rs := []rune(s)
	for i, r := range rs {
		for _, bad := range invalid {
			if r == bad {
				rs[i] = '_'
			}
		}
	}
	return string(rs)
}
