// Package highlight finds loud moments in a loudness timeline.
package highlight

import (
	"errors"
	"fmt"
)

// Defaults for the crest detector.
const (
	DefaultSustainedDuration = 3
	DefaultSpikeMargin       = 3.0
	DefaultDynamicMargin     = 6.0
	DefaultWindow            = 5

	// MinGapFloor is the smallest spacing between two events, in seconds.
	MinGapFloor = 30

	// dynamicMinHistory is how many window entries the Dynamic tier needs.
	dynamicMinHistory = 3
)

// Params tune a detector. They are fixed for one run.
type Params struct {
	Threshold         float64
	SustainedDuration int
	SpikeMargin       float64
	DynamicMargin     float64
	Window            int
	PadBefore         int
	PadAfter          int
}

// DefaultParams returns the stock tuning at the given threshold.
func DefaultParams(threshold float64) Params {
	return Params{
		Threshold:         threshold,
		SustainedDuration: DefaultSustainedDuration,
		SpikeMargin:       DefaultSpikeMargin,
		DynamicMargin:     DefaultDynamicMargin,
		Window:            DefaultWindow,
		PadBefore:         15,
		PadAfter:          15,
	}
}

// MinGap is the minimum distance between events: the clip length, but never
// under MinGapFloor.
func (p Params) MinGap() int {
	return max(MinGapFloor, p.PadBefore+p.PadAfter)
}

// Validate reports every out-of-range field.
func (p Params) Validate() error {
	var errs []error
	if p.Threshold > 0 || p.Threshold < -120 {
		errs = append(errs, fmt.Errorf("threshold %.1f dB outside [-120, 0]", p.Threshold))
	}
	if p.Window < 1 {
		errs = append(errs, fmt.Errorf("window must be >= 1, got %d", p.Window))
	}
	if p.SustainedDuration < 1 {
		errs = append(errs, fmt.Errorf("sustained duration must be >= 1, got %d", p.SustainedDuration))
	} else if p.SustainedDuration > p.Window {
		errs = append(errs, fmt.Errorf("sustained duration %d exceeds window %d", p.SustainedDuration, p.Window))
	}
	if p.SpikeMargin < 0 {
		errs = append(errs, fmt.Errorf("spike margin must be >= 0, got %.1f", p.SpikeMargin))
	}
	if p.DynamicMargin < 0 {
		errs = append(errs, fmt.Errorf("dynamic margin must be >= 0, got %.1f", p.DynamicMargin))
	}
	if p.PadBefore < 0 || p.PadAfter < 0 {
		errs = append(errs, fmt.Errorf("padding must be >= 0, got %d/%d", p.PadBefore, p.PadAfter))
	}
	return errors.Join(errs...)
}
