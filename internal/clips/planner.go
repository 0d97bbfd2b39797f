package clips

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/kikiluvv/crestcut/internal/highlight"
)

// DefaultClipLength is the total clip length in seconds.
const DefaultClipLength = 30

const defaultExt = ".mp4"

// ErrEmptyRange means clamping left nothing to cut.
var ErrEmptyRange = errors.New("clip range is empty after clamping")

// namespace scopes clip suffixes so they never collide with other UUIDv5 users.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/kikiluvv/crestcut/clips"))

// SplitLength divides a total clip length into padding before and after the
// event. Odd totals put the extra second after.
func SplitLength(total int) (before, after int) {
	before = total / 2
	return before, total - before
}

// Planner maps events of one source onto clip specs.
type Planner struct {
	PadBefore  int
	PadAfter   int
	Duration   float64
	OutputDir  string
	SourcePath string
	Ext        string
}

// NewPlanner splits clipLength around each event and clamps to mediaDuration.
// Clips keep the source extension.
func NewPlanner(clipLength int, mediaDuration float64, outputDir, sourcePath string) *Planner {
	before, after := SplitLength(clipLength)
	ext := filepath.Ext(sourcePath)
	if ext == "" {
		ext = defaultExt
	}
	return &Planner{
		PadBefore:  before,
		PadAfter:   after,
		Duration:   mediaDuration,
		OutputDir:  outputDir,
		SourcePath: sourcePath,
		Ext:        ext,
	}
}

// Plan builds the spec for e. Range events are centred on their start like
// point events.
func (p *Planner) Plan(e highlight.Event) (Spec, error) {
	pos := float64(e.Position)
	start := math.Max(0, pos-float64(p.PadBefore))
	end := math.Min(p.Duration, pos+float64(p.PadAfter))
	if start >= end {
		return Spec{}, fmt.Errorf("%w: event at %s, media ends at %.3fs", ErrEmptyRange, e.Clock(), p.Duration)
	}

	return Spec{
		SourcePath: p.SourcePath,
		Start:      start,
		End:        end,
		OutputPath: filepath.Join(p.OutputDir, p.FileName(e)),
		Event:      e,
	}, nil
}

// Skipped is an event that could not be planned.
type Skipped struct {
	Event  highlight.Event
	Reason error
}

// PlanAll plans every event in order.
func (p *Planner) PlanAll(events []highlight.Event) ([]Spec, []Skipped) {
	specs := make([]Spec, 0, len(events))
	var skipped []Skipped
	for _, e := range events {
		spec, err := p.Plan(e)
		if err != nil {
			skipped = append(skipped, Skipped{Event: e, Reason: err})
			continue
		}
		specs = append(specs, spec)
	}
	return specs, skipped
}

// FileName is HH-MM-SS_<±dd.d>dB_<suffix><ext>. The suffix is derived from
// the source path and position, so it is stable across runs and distinct per
// event.
func (p *Planner) FileName(e highlight.Event) string {
	h := e.Position / 3600
	m := (e.Position % 3600) / 60
	s := e.Position % 60
	return fmt.Sprintf("%02d-%02d-%02d_%+05.1fdB_%s%s", h, m, s, e.Decibel, Suffix(p.SourcePath, e.Position), p.Ext)
}

// Suffix is the first 8 hex digits of a UUIDv5 over source and position.
func Suffix(sourcePath string, position int) string {
	id := uuid.NewSHA1(namespace, []byte(sourcePath+"\x00"+strconv.Itoa(position)))
	return id.String()[:8]
}
