package highlight

import (
	"fmt"
	"math"
	"slices"

	"github.com/kikiluvv/crestcut/internal/loudness"
)

// Strategy selects a detector implementation.
type Strategy string

const (
	StrategyCrest Strategy = "crest"
	StrategyRange Strategy = "range"
)

// ParseStrategy accepts "crest" and "range"; empty means crest.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyCrest:
		return StrategyCrest, nil
	case StrategyRange:
		return StrategyRange, nil
	}
	return "", fmt.Errorf("unknown detection strategy %q (want crest or range)", s)
}

// Detector consumes samples in timestamp order.
type Detector interface {
	// Observe feeds one sample and returns the event it produced, if any.
	Observe(s loudness.Sample) (Event, bool)
	// Events returns everything emitted so far, in emission order.
	Events() []Event
}

// NewDetector validates p and builds the detector for strategy.
func NewDetector(strategy Strategy, p Params) (Detector, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector params: %w", err)
	}
	switch strategy {
	case "", StrategyCrest:
		return newCrestDetector(p), nil
	case StrategyRange:
		return newRangeDetector(p), nil
	}
	return nil, fmt.Errorf("unknown detection strategy %q", strategy)
}

// Detect runs a fresh detector over samples.
func Detect(strategy Strategy, p Params, samples []loudness.Sample) ([]Event, error) {
	d, err := NewDetector(strategy, p)
	if err != nil {
		return nil, err
	}
	for _, s := range samples {
		d.Observe(s)
	}
	return d.Events(), nil
}

// base holds what both strategies share.
type base struct {
	params Params
	gaps   *gapTracker
	events []Event
}

func newBase(p Params) base {
	return base{params: p, gaps: newGapTracker(p.MinGap())}
}

func (b *base) record(e Event) Event {
	b.gaps.add(e.Position)
	b.events = append(b.events, e)
	return e
}

func (b *base) Events() []Event {
	return slices.Clone(b.events)
}

func position(s loudness.Sample) int {
	return int(math.Floor(s.Timestamp))
}

// crestDetector classifies loud seconds against a short rolling window.
type crestDetector struct {
	base
	window []loudness.Sample
}

func newCrestDetector(p Params) *crestDetector {
	return &crestDetector{
		base:   newBase(p),
		window: make([]loudness.Sample, 0, p.Window),
	}
}

func (d *crestDetector) Observe(s loudness.Sample) (Event, bool) {
	d.push(s)

	p := d.params
	if s.MaxDb < p.Threshold {
		return Event{}, false
	}

	pos := position(s)
	if !d.gaps.clear(pos) {
		return Event{}, false
	}

	var tier Tier
	switch {
	case d.sustained():
		tier = TierSustained
	case s.MaxDb >= p.Threshold+p.SpikeMargin:
		tier = TierSpike
	case len(d.window) >= dynamicMinHistory && s.MaxDb >= d.meanAvg()+p.DynamicMargin:
		tier = TierDynamic
	default:
		return Event{}, false
	}

	return d.record(Event{Position: pos, Decibel: s.MaxDb, Tier: tier}), true
}

func (d *crestDetector) push(s loudness.Sample) {
	if len(d.window) == d.params.Window {
		copy(d.window, d.window[1:])
		d.window = d.window[:len(d.window)-1]
	}
	d.window = append(d.window, s)
}

// sustained reports whether the newest SustainedDuration entries are all at
// or above threshold.
func (d *crestDetector) sustained() bool {
	n := d.params.SustainedDuration
	if len(d.window) < n {
		return false
	}
	for _, w := range d.window[len(d.window)-n:] {
		if w.MaxDb < d.params.Threshold {
			return false
		}
	}
	return true
}

func (d *crestDetector) meanAvg() float64 {
	sum := 0.0
	for _, w := range d.window {
		sum += w.AvgDb
	}
	return sum / float64(len(d.window))
}

// rangeDetector pairs loud seconds into spans: the first opens one, the next
// closes it. A span still open when the input ends is discarded.
type rangeDetector struct {
	base
	open  bool
	start int
	peak  float64
}

func newRangeDetector(p Params) *rangeDetector {
	return &rangeDetector{base: newBase(p)}
}

func (d *rangeDetector) Observe(s loudness.Sample) (Event, bool) {
	if s.MaxDb < d.params.Threshold {
		return Event{}, false
	}

	pos := position(s)
	if !d.open {
		d.open = true
		d.start = pos
		d.peak = s.MaxDb
		return Event{}, false
	}

	d.open = false
	peak := max(d.peak, s.MaxDb)
	if !d.gaps.clear(d.start) {
		return Event{}, false
	}
	return d.record(Event{Position: d.start, End: pos, Decibel: peak, Tier: TierRange}), true
}
