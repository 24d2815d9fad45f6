package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Source yields one probe outcome per call. Implementations own their
// timeout policy; Probe blocks until an outcome is available or ctx is
// canceled. A lost probe is a valid outcome, not an error.
type Source interface {
	Probe(ctx context.Context) Outcome
}

// Entry is one append-only log record, preserving all sample fields
// plus the loss rate and alert state at that instant.
type Entry struct {
	Seq       uint64
	Timestamp time.Time
	Target    string
	RTT       time.Duration
	Lost      bool
	Side      SideChannel
	LossRate  float64
	State     State
}

// Recorder is the log sink. Record failures are logged and do not stop
// the sampling loop.
type Recorder interface {
	Record(Entry) error
}

// Feed receives the latest snapshot for rendering. Latest-value
// semantics: consumers may coalesce, publications may be overwritten.
type Feed interface {
	Publish(target string, snap *Snapshot, state State, when time.Time)
}

// Notifier receives confirmed alert transitions. Unlike the Feed,
// implementations must not silently drop them.
type Notifier interface {
	Notify(target string, tr Transition)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(target string, tr Transition) {
	for _, n := range m {
		n.Notify(target, tr)
	}
}

// MultiNotifier fans a transition out to all given notifiers in order.
func MultiNotifier(notifiers ...Notifier) Notifier {
	return multiNotifier(notifiers)
}

// Config carries the per-target settings for a Monitor. Recorder, Feed
// and Notifier may be nil, in which case the corresponding output is
// skipped. Clock defaults to the real clock.
type Config struct {
	WindowCapacity int
	Interval       time.Duration
	Thresholds     Thresholds
	Clock          clockwork.Clock
	Recorder       Recorder
	Feed           Feed
	Notifier       Notifier
}

// Monitor is the sampling loop for a single target. It owns the window,
// the evaluator and the sequence counter; none of that state is shared
// between targets.
type Monitor struct {
	target   string
	source   Source
	window   *Window
	eval     *Evaluator
	interval time.Duration
	clock    clockwork.Clock
	recorder Recorder
	feed     Feed
	notifier Notifier
	seq      uint64
}

// New validates cfg and creates a monitor for the given target.
func New(target string, source Source, cfg Config) (*Monitor, error) {
	if source == nil {
		return nil, fmt.Errorf("%s: probe source must not be nil", target)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%s: sampling interval must be positive, got %v", target, cfg.Interval)
	}
	window, err := NewWindow(cfg.WindowCapacity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", target, err)
	}
	eval, err := NewEvaluator(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", target, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Monitor{
		target:   target,
		source:   source,
		window:   window,
		eval:     eval,
		interval: cfg.Interval,
		clock:    clock,
		recorder: cfg.Recorder,
		feed:     cfg.Feed,
		notifier: cfg.Notifier,
	}, nil
}

// Target returns the monitored target name.
func (m *Monitor) Target() string {
	return m.target
}

// Run probes the target once immediately and then at every interval
// tick until ctx is canceled. Probes are issued serially; probe latency
// bounds the achievable cadence.
func (m *Monitor) Run(ctx context.Context) {
	log.Infof("%s: starting monitor (interval=%v, window=%d)", m.target, m.interval, m.window.Cap())

	m.iterate(ctx)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("%s: stopping monitor", m.target)
			return
		case <-ticker.Chan():
			m.iterate(ctx)
		}
	}
}

func (m *Monitor) iterate(ctx context.Context) {
	outcome := m.source.Probe(ctx)
	if ctx.Err() != nil {
		// probe abandoned mid-flight: no sample, no partial snapshot
		return
	}

	now := m.clock.Now()
	sample := Sample{
		Seq:       m.seq,
		Timestamp: now,
		RTT:       outcome.RTT,
		Lost:      outcome.Lost,
		Side:      outcome.Side,
	}
	m.seq++

	m.window.Push(sample)
	snap := Compute(m.window.View())

	if tr := m.eval.Evaluate(snap, now); tr != nil {
		log.Infof("%s: alert state %s -> %s (avg=%.2fms)", m.target, tr.From, tr.To, snap.AvgRTT)
		if m.notifier != nil {
			m.notifier.Notify(m.target, *tr)
		}
	}
	state := m.eval.State()

	if m.recorder != nil {
		entry := Entry{
			Seq:       sample.Seq,
			Timestamp: sample.Timestamp,
			Target:    m.target,
			RTT:       sample.RTT,
			Lost:      sample.Lost,
			Side:      sample.Side,
			LossRate:  snap.LossRate,
			State:     state,
		}
		if err := m.recorder.Record(entry); err != nil {
			// best-effort downstream: losing a record must not stop sampling
			log.Errorf("%s: could not record sample %d: %v", m.target, sample.Seq, err)
		}
	}

	if m.feed != nil {
		m.feed.Publish(m.target, snap, state, now)
	}
}
