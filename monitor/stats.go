package monitor

import (
	"math"
	"time"
)

// Snapshot is a data point computed from the samples of a Window.
// All RTT values are in milliseconds. AvgRTT and MaxRTT are only
// meaningful when HasRTT is set (at least one successful sample);
// Jitter requires HasJitter (at least two adjacent successes).
type Snapshot struct {
	Samples  int
	Failures int

	AvgRTT    float64
	MaxRTT    float64
	Jitter    float64
	LossRate  float64
	HasRTT    bool
	HasJitter bool
}

// Compute aggregates a window view into a Snapshot. It is a pure
// function of its input: computing the same view twice yields identical
// values. An empty view yields nil, which consumers treat as "no data"
// (distinct from a snapshot with zero-valued metrics).
func Compute(view []Sample) *Snapshot {
	n := len(view)
	if n == 0 {
		return nil
	}

	s := &Snapshot{Samples: n}

	var total, prev float64
	var jitterSum float64
	jitterPairs := 0
	havePrev := false

	for i := range view {
		smp := &view[i]
		if smp.Lost {
			s.Failures++
			// a failure breaks adjacency; pairs spanning it are skipped
			havePrev = false
			continue
		}

		rtt := float64(smp.RTT) / float64(time.Millisecond)
		total += rtt
		if !s.HasRTT || rtt > s.MaxRTT {
			s.MaxRTT = rtt
		}
		s.HasRTT = true

		if havePrev {
			jitterSum += math.Abs(rtt - prev)
			jitterPairs++
		}
		prev = rtt
		havePrev = true
	}

	s.LossRate = float64(s.Failures) / float64(n)
	if s.HasRTT {
		s.AvgRTT = total / float64(n-s.Failures)
	}
	if jitterPairs > 0 {
		s.Jitter = jitterSum / float64(jitterPairs)
		s.HasJitter = true
	}

	return s
}
