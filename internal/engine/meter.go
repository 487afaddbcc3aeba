package engine

import "time"

// Meter is the injected compute-budget counter. Units reports work consumed
// since some fixed origin; the generation loop samples it at iteration
// boundaries and compares deltas against the call ceiling.
type Meter interface {
	Units() uint64
}

// DefaultBudgetCeiling bounds the compute units one generation call may
// consume before the loop soft-stops with partial output.
const DefaultBudgetCeiling uint64 = 30_000_000_000

// ClockMeter maps wall-clock time to compute units at a fixed rate. It stands
// in for the host's instruction counter when none is available.
type ClockMeter struct {
	start         time.Time
	unitsPerMilli uint64
}

// NewClockMeter returns a meter advancing unitsPerMilli units per millisecond.
func NewClockMeter(unitsPerMilli uint64) *ClockMeter {
	if unitsPerMilli == 0 {
		unitsPerMilli = 1_000_000
	}
	return &ClockMeter{start: time.Now(), unitsPerMilli: unitsPerMilli}
}

func (m *ClockMeter) Units() uint64 {
	return uint64(time.Since(m.start).Milliseconds()) * m.unitsPerMilli
}
