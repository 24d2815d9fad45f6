package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimulatorRTTIsPositive(t *testing.T) {
	sim := NewSimulator(1)

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		out := sim.Probe(ctx)
		if out.Lost {
			continue
		}
		assert.Greater(t, out.RTT, time.Duration(0))
	}
}

func TestSimulatorFailureRate(t *testing.T) {
	sim := NewSimulator(42)
	sim.FailureRate = 0.5

	ctx := context.Background()
	lost := 0
	const n = 2000
	for i := 0; i < n; i++ {
		if sim.Probe(ctx).Lost {
			lost++
		}
	}

	rate := float64(lost) / n
	assert.InDelta(t, 0.5, rate, 0.05)
}

func TestSimulatorNeverFails(t *testing.T) {
	sim := NewSimulator(7)
	sim.FailureRate = 0

	ctx := context.Background()
	for i := 0; i < 500; i++ {
		assert.False(t, sim.Probe(ctx).Lost)
	}
}

func TestSimulatorCountersAccumulate(t *testing.T) {
	sim := NewSimulator(3)

	ctx := context.Background()
	var prev uint64
	grew := false
	for i := 0; i < 1000; i++ {
		side := sim.Probe(ctx).Side
		if side.Drops > prev {
			grew = true
		}
		// counters only move forward or reset to zero
		if side.Drops < prev {
			assert.Zero(t, side.Drops)
		}
		prev = side.Drops
	}
	assert.True(t, grew, "drop counter never advanced")
}

func TestSimulatorDeterministicForSeed(t *testing.T) {
	a := NewSimulator(99)
	b := NewSimulator(99)

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Probe(ctx), b.Probe(ctx))
	}
}
