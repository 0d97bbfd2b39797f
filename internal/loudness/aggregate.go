package loudness

import "math"

// Aggregate reduces a stream of samples to whole-file figures without keeping
// the samples.
type Aggregate struct {
	count int
	max   float64
	sum   float64
}

// Add folds one sample in.
func (a *Aggregate) Add(s Sample) {
	if a.count == 0 || s.MaxDb > a.max {
		a.max = s.MaxDb
	}
	a.sum += s.AvgDb
	a.count++
}

// Count is the number of samples seen.
func (a *Aggregate) Count() int { return a.count }

// MaxDb is the loudest segment seen, or SilenceFloor before any sample.
func (a *Aggregate) MaxDb() float64 {
	if a.count == 0 {
		return SilenceFloor
	}
	return a.max
}

// AvgDb is the mean of per-second averages, or SilenceFloor before any sample.
func (a *Aggregate) AvgDb() float64 {
	if a.count == 0 {
		return SilenceFloor
	}
	return a.sum / float64(a.count)
}

// Reference summarises a track for threshold tuning.
type Reference struct {
	Seconds      int     `json:"seconds" yaml:"seconds"`
	AvgDb        float64 `json:"avg_db" yaml:"avg_db"`
	MaxDb        float64 `json:"max_db" yaml:"max_db"`
	DynamicRange float64 `json:"dynamic_range" yaml:"dynamic_range"`

	// Suggested thresholds, loosest last.
	Conservative float64 `json:"conservative" yaml:"conservative"`
	Balanced     float64 `json:"balanced" yaml:"balanced"`
	Aggressive   float64 `json:"aggressive" yaml:"aggressive"`
}

// Reference derives threshold suggestions from the aggregate.
func (a *Aggregate) Reference() Reference {
	avg, peak := a.AvgDb(), a.MaxDb()
	span := peak - avg
	return Reference{
		Seconds:      a.count,
		AvgDb:        round1(avg),
		MaxDb:        round1(peak),
		DynamicRange: round1(span),
		Conservative: round1(peak - 2),
		Balanced:     round1(avg + 0.6*span),
		Aggressive:   round1(avg + 0.4*span),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
