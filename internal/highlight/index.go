package highlight

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/kikiluvv/crestcut/pkg/util"
)

// IndexFileName is the per-run index written next to the clips.
const IndexFileName = "index.json"

type indexEntry struct {
	Start    *int    `json:"start,omitempty"` // seconds, ranges only
	End      *int    `json:"end,omitempty"`
	Position string  `json:"position"`
	Decibel  float64 `json:"decibel"`
	Tier     Tier    `json:"tier,omitempty"`
}

// SaveIndex writes events as a JSON object keyed by position in seconds. The
// file is replaced atomically.
func SaveIndex(path string, events []Event) error {
	doc := make(map[string]indexEntry, len(events))
	for _, e := range events {
		entry := indexEntry{
			Position: e.Clock(),
			Decibel:  e.Decibel,
			Tier:     e.Tier,
		}
		if e.IsRange() {
			start, end := e.Position, e.End
			entry.Start, entry.End = &start, &end
		}
		doc[strconv.Itoa(e.Position)] = entry
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	tmp := util.PartialPath(path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		util.CleanupFiles(tmp)
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// LoadIndex reads an index written by SaveIndex and returns its events sorted
// by position. Entries without a tier load as sustained points, or as ranges
// when they carry an end.
func LoadIndex(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var doc map[string]indexEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}

	events := make([]Event, 0, len(doc))
	for key, entry := range doc {
		pos, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("index key %q is not a position in seconds", key)
		}

		if entry.Position != "" {
			clock, err := util.ParseClock(entry.Position)
			if err != nil {
				return nil, fmt.Errorf("index entry %s: bad position: %w", key, err)
			}
			if clock != pos {
				return nil, fmt.Errorf("index entry %s: position %s does not match its key", key, entry.Position)
			}
		}

		e := Event{Position: pos, Decibel: entry.Decibel, Tier: entry.Tier}
		if entry.End != nil {
			e.End = *entry.End
			if e.Tier == "" {
				e.Tier = TierRange
			}
		}
		if e.Tier == "" {
			e.Tier = TierSustained
		}
		if _, err := ParseTier(string(e.Tier)); err != nil {
			return nil, fmt.Errorf("index entry %s: %w", key, err)
		}
		events = append(events, e)
	}

	slices.SortFunc(events, func(a, b Event) int { return a.Position - b.Position })
	return events, nil
}
