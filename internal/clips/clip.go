// Package clips turns highlight events into concrete cut ranges.
package clips

import (
	"encoding/json"
	"time"

	"github.com/kikiluvv/crestcut/internal/highlight"
)

// Spec is one cut: [Start, End) seconds of SourcePath written to OutputPath.
// Start is never negative and End never passes the media duration.
type Spec struct {
	SourcePath string          `json:"source"`
	Start      float64         `json:"start"`
	End        float64         `json:"end"`
	OutputPath string          `json:"output"`
	Event      highlight.Event `json:"-"`
}

// Duration is the clip length in seconds.
func (s Spec) Duration() float64 {
	return s.End - s.Start
}

// Outcome is the terminal state of one extraction.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// MarshalJSON writes the outcome by name.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Result records what happened to one Spec. It is never modified once built.
type Result struct {
	Spec    Spec          `json:"spec"`
	Outcome Outcome       `json:"outcome"`
	Err     string        `json:"error,omitempty"`
	Bytes   int64         `json:"bytes,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// OK reports whether the clip was written.
func (r Result) OK() bool {
	return r.Outcome == Succeeded
}
