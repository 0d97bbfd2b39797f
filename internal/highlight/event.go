package highlight

import (
	"fmt"

	"github.com/kikiluvv/crestcut/pkg/util"
)

// Tier classifies why an event fired.
type Tier string

const (
	// TierSustained: loud for several consecutive seconds.
	TierSustained Tier = "sustained"
	// TierSpike: one very loud second.
	TierSpike Tier = "spike"
	// TierDynamic: loud relative to the recent average.
	TierDynamic Tier = "dynamic"
	// TierRange: a span from the range strategy.
	TierRange Tier = "range"
)

// ParseTier accepts the lowercase tier names.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierSustained, TierSpike, TierDynamic, TierRange:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Event is one detected highlight, keyed by Position in whole seconds.
type Event struct {
	Position int
	Decibel  float64
	Tier     Tier
	End      int // range events only
}

// IsRange reports whether the event spans [Position, End].
func (e Event) IsRange() bool {
	return e.Tier == TierRange
}

// Clock renders the position as H:MM:SS.
func (e Event) Clock() string {
	return util.FormatClock(e.Position)
}

func (e Event) String() string {
	if e.IsRange() {
		return fmt.Sprintf("%s-%s %.1fdB (%s)", e.Clock(), util.FormatClock(e.End), e.Decibel, e.Tier)
	}
	return fmt.Sprintf("%s %.1fdB (%s)", e.Clock(), e.Decibel, e.Tier)
}
