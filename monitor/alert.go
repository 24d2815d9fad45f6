package monitor

import (
	"fmt"
	"time"
)

// State is the alert level of a monitored target.
type State int

const (
	StateNominal State = iota
	StateWarning
	StateCritical
)

func (s State) String() string {
	switch s {
	case StateNominal:
		return "nominal"
	case StateWarning:
		return "warning"
	case StateCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Thresholds configures the alert evaluator. Average RTT at or above
// WarningMs raises the level to warning, at or above CriticalMs to
// critical. Hysteresis is the number of consecutive agreeing
// evaluations required before a state change takes effect.
type Thresholds struct {
	WarningMs  float64
	CriticalMs float64
	Hysteresis int
}

// Validate reports configuration errors. It is called at construction;
// the evaluator never fails at runtime.
func (t Thresholds) Validate() error {
	if t.WarningMs <= 0 {
		return fmt.Errorf("warning threshold must be positive, got %g", t.WarningMs)
	}
	if t.CriticalMs <= t.WarningMs {
		return fmt.Errorf("critical threshold (%g) must be greater than warning threshold (%g)", t.CriticalMs, t.WarningMs)
	}
	if t.Hysteresis < 1 {
		return fmt.Errorf("hysteresis must be at least 1, got %d", t.Hysteresis)
	}
	return nil
}

// Transition is emitted once for each confirmed alert state change.
type Transition struct {
	From     State
	To       State
	Snapshot *Snapshot
	Time     time.Time
}

// Evaluator is a hysteresis state machine over metric snapshots. A state
// change (in either direction) requires Hysteresis consecutive snapshots
// agreeing on the same candidate level, so a single outlier never flips
// the state and transient recoveries do not cause flapping.
type Evaluator struct {
	thresholds Thresholds
	state      State
	candidate  State
	streak     int
}

// NewEvaluator creates an evaluator in the nominal state.
func NewEvaluator(t Thresholds) (*Evaluator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{thresholds: t}, nil
}

// State returns the current confirmed alert state.
func (e *Evaluator) State() State {
	return e.state
}

// level maps a snapshot to its alert level. A nil snapshot or one
// without RTT data maps to nominal: there is not enough information to
// alert on.
func (e *Evaluator) level(s *Snapshot) State {
	if s == nil || !s.HasRTT {
		return StateNominal
	}
	switch {
	case s.AvgRTT >= e.thresholds.CriticalMs:
		return StateCritical
	case s.AvgRTT >= e.thresholds.WarningMs:
		return StateWarning
	default:
		return StateNominal
	}
}

// Evaluate feeds one snapshot into the state machine. It returns a
// Transition when the state change is confirmed, nil otherwise.
func (e *Evaluator) Evaluate(s *Snapshot, now time.Time) *Transition {
	lvl := e.level(s)

	if lvl == e.state {
		// agreeing with the confirmed state clears any pending candidate
		e.candidate = lvl
		e.streak = 0
		return nil
	}

	if lvl != e.candidate {
		e.candidate = lvl
		e.streak = 0
	}
	e.streak++

	if e.streak < e.thresholds.Hysteresis {
		return nil
	}

	tr := &Transition{From: e.state, To: lvl, Snapshot: s, Time: now}
	e.state = lvl
	e.streak = 0
	return tr
}
