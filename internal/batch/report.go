package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kikiluvv/crestcut/pkg/util"
)

// Summary totals a batch.
type Summary struct {
	Jobs            int `json:"jobs"`
	Completed       int `json:"completed"`
	Failed          int `json:"failed"`
	HighlightsFound int `json:"highlights_found"`
	ClipsGenerated  int `json:"clips_generated"`
	ClipsFailed     int `json:"clips_failed"`
}

// Summarize adds up results.
func Summarize(results map[string]JobResult) Summary {
	var s Summary
	for _, r := range results {
		s.Jobs++
		if r.Status == StatusCompleted {
			s.Completed++
		} else {
			s.Failed++
		}
		s.HighlightsFound += r.HighlightsFound
		s.ClipsGenerated += r.ClipsGenerated
		s.ClipsFailed += r.ClipsFailed
	}
	return s
}

// Sorted returns results ordered by source path, for stable output.
func Sorted(results map[string]JobResult) []JobResult {
	out := make([]JobResult, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b JobResult) int {
		if c := strings.Compare(a.SourcePath, b.SourcePath); c != 0 {
			return c
		}
		return strings.Compare(a.JobID, b.JobID)
	})
	return out
}

type reportDoc struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Summary     Summary              `json:"summary"`
	Jobs        map[string]JobResult `json:"jobs"`
}

// WriteReport writes the batch results as JSON keyed by job ID.
func WriteReport(path string, results map[string]JobResult) error {
	doc := reportDoc{
		GeneratedAt: time.Now().UTC(),
		Summary:     Summarize(results),
		Jobs:        results,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (map[string]JobResult, Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("read report: %w", err)
	}
	var doc reportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, Summary{}, fmt.Errorf("parse report: %w", err)
	}
	return doc.Jobs, doc.Summary, nil
}
