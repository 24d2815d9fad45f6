package probe

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/probelab/latmon/monitor"
)

const minSimRTTMs = 0.1

// Simulator is a synthetic probe source producing Gaussian base latency
// with occasional microbursts, plus accumulating interface counters.
// It is selected explicitly (never mixed into the real probe path), so
// production latency accounting stays trustworthy.
type Simulator struct {
	BaseRTTMs   float64 // mean of the base latency distribution
	StdDevMs    float64
	BurstChance float64 // probability of a microburst per probe
	BurstMinMs  float64
	BurstMaxMs  float64
	FailureRate float64 // probability of a lost probe

	rng    *rand.Rand
	drops  uint64
	errors uint64
}

// NewSimulator creates a simulator with the default profile: 10ms +/-
// 2ms base latency, 5% microburst chance adding 5-15ms, 2% loss.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		BaseRTTMs:   10,
		StdDevMs:    2,
		BurstChance: 0.05,
		BurstMinMs:  5,
		BurstMaxMs:  15,
		FailureRate: 0.02,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Probe returns a synthetic outcome. It never blocks.
func (s *Simulator) Probe(ctx context.Context) monitor.Outcome {
	s.advanceCounters()
	side := monitor.SideChannel{Drops: s.drops, Errors: s.errors}

	if s.rng.Float64() < s.FailureRate {
		return monitor.Outcome{Lost: true, Side: side}
	}

	rtt := s.rng.NormFloat64()*s.StdDevMs + s.BaseRTTMs
	if s.rng.Float64() < s.BurstChance {
		rtt += s.BurstMinMs + s.rng.Float64()*(s.BurstMaxMs-s.BurstMinMs)
	}
	if rtt < minSimRTTMs {
		rtt = minSimRTTMs
	}

	return monitor.Outcome{
		RTT:  time.Duration(rtt * float64(time.Millisecond)),
		Side: side,
	}
}

// advanceCounters accumulates Poisson-distributed drops and errors,
// with an occasional reset simulating an interface reset or counter
// rollover.
func (s *Simulator) advanceCounters() {
	s.drops += s.poisson(0.1)
	s.errors += s.poisson(0.05)

	if s.rng.Float64() < 0.01 {
		s.drops, s.errors = 0, 0
	}
}

// poisson draws from a Poisson distribution via Knuth's method; the
// rates used here are far too small for overflow to be a concern.
func (s *Simulator) poisson(lambda float64) uint64 {
	limit := math.Exp(-lambda)
	var k uint64
	p := 1.0
	for {
		p *= s.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
