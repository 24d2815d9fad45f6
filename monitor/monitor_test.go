package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays a fixed list of outcomes, repeating the last
// one once the script is exhausted.
type scriptedSource struct {
	mtx      sync.Mutex
	outcomes []Outcome
	pos      int
}

func (s *scriptedSource) Probe(ctx context.Context) Outcome {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.pos < len(s.outcomes)-1 {
		s.pos++
		return s.outcomes[s.pos-1]
	}
	return s.outcomes[len(s.outcomes)-1]
}

// blockingSource blocks until the context is canceled, like a probe
// abandoned mid-flight.
type blockingSource struct{}

func (blockingSource) Probe(ctx context.Context) Outcome {
	<-ctx.Done()
	return Outcome{Lost: true}
}

type captureRecorder struct {
	entries chan Entry
	err     error
}

func (r *captureRecorder) Record(e Entry) error {
	r.entries <- e
	return r.err
}

type captureFeed struct {
	mtx   sync.Mutex
	snap  *Snapshot
	state State
	count int
}

func (f *captureFeed) Publish(target string, snap *Snapshot, state State, when time.Time) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.snap, f.state = snap, state
	f.count++
}

func (f *captureFeed) last() (*Snapshot, State, int) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.snap, f.state, f.count
}

type captureNotifier struct {
	transitions chan Transition
}

func (n *captureNotifier) Notify(target string, tr Transition) {
	n.transitions <- tr
}

func ok(rtt float64) Outcome {
	return Outcome{RTT: time.Duration(rtt * float64(time.Millisecond))}
}

func lost() Outcome {
	return Outcome{Lost: true}
}

func testConfig(clock clockwork.Clock) Config {
	return Config{
		WindowCapacity: 10,
		Interval:       time.Second,
		Thresholds:     testThresholds(),
		Clock:          clock,
	}
}

func TestNewValidatesConfig(t *testing.T) {
	src := &scriptedSource{outcomes: []Outcome{ok(1)}}

	_, err := New("t", nil, testConfig(nil))
	assert.Error(t, err)

	cfg := testConfig(nil)
	cfg.WindowCapacity = 0
	_, err = New("t", src, cfg)
	assert.Error(t, err)

	cfg = testConfig(nil)
	cfg.Interval = 0
	_, err = New("t", src, cfg)
	assert.Error(t, err)

	cfg = testConfig(nil)
	cfg.Thresholds.CriticalMs = cfg.Thresholds.WarningMs
	_, err = New("t", src, cfg)
	assert.Error(t, err)

	_, err = New("t", src, testConfig(nil))
	assert.NoError(t, err)
}

// startMonitor runs m in the background and returns a stop function that
// cancels it and waits for the loop to exit.
func startMonitor(t *testing.T, m *Monitor) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("monitor did not stop")
		}
	}
}

func TestMonitorAssignsSequenceInOrder(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := &captureRecorder{entries: make(chan Entry, 16)}
	src := &scriptedSource{outcomes: []Outcome{ok(5), ok(7), ok(6)}}

	cfg := testConfig(fc)
	cfg.Recorder = rec
	m, err := New("example.com", src, cfg)
	require.NoError(t, err)

	stop := startMonitor(t, m)
	defer stop()

	first := <-rec.entries
	assert.EqualValues(t, 0, first.Seq)
	assert.Equal(t, "example.com", first.Target)

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	second := <-rec.entries
	assert.EqualValues(t, 1, second.Seq)
	assert.False(t, second.Timestamp.Before(first.Timestamp))

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	third := <-rec.entries
	assert.EqualValues(t, 2, third.Seq)
}

func TestMonitorFailureIsASample(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := &captureRecorder{entries: make(chan Entry, 16)}
	src := &scriptedSource{outcomes: []Outcome{lost(), ok(5)}}

	cfg := testConfig(fc)
	cfg.Recorder = rec
	m, err := New("t", src, cfg)
	require.NoError(t, err)

	stop := startMonitor(t, m)
	defer stop()

	first := <-rec.entries
	assert.True(t, first.Lost)
	assert.Equal(t, 1.0, first.LossRate)

	// the loop keeps sampling, a lost probe is not an error
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	second := <-rec.entries
	assert.False(t, second.Lost)
	assert.Equal(t, 0.5, second.LossRate)
}

func TestMonitorContinuesOnRecorderError(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := &captureRecorder{entries: make(chan Entry, 16), err: assert.AnError}
	src := &scriptedSource{outcomes: []Outcome{ok(5)}}

	cfg := testConfig(fc)
	cfg.Recorder = rec
	m, err := New("t", src, cfg)
	require.NoError(t, err)

	stop := startMonitor(t, m)
	defer stop()

	<-rec.entries
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	<-rec.entries
}

func TestMonitorAbandonedProbeLeavesNoTrace(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := &captureRecorder{entries: make(chan Entry, 16)}
	feed := &captureFeed{}

	cfg := testConfig(fc)
	cfg.Recorder = rec
	cfg.Feed = feed
	m, err := New("t", blockingSource{}, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}

	// the in-flight probe was abandoned: no sample, no partial snapshot
	assert.Empty(t, rec.entries)
	_, _, published := feed.last()
	assert.Zero(t, published)
}

func TestMonitorNotifiesConfirmedTransitionOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := &captureRecorder{entries: make(chan Entry, 16)}
	notif := &captureNotifier{transitions: make(chan Transition, 16)}
	src := &scriptedSource{outcomes: []Outcome{ok(250)}}

	cfg := testConfig(fc)
	cfg.Recorder = rec
	cfg.Notifier = notif
	m, err := New("t", src, cfg)
	require.NoError(t, err)

	stop := startMonitor(t, m)
	defer stop()

	// hysteresis is 3: the first two evaluations confirm nothing
	<-rec.entries
	assert.Empty(t, notif.transitions)

	for i := 0; i < 2; i++ {
		fc.BlockUntil(1)
		fc.Advance(time.Second)
		<-rec.entries
	}

	tr := <-notif.transitions
	assert.Equal(t, StateNominal, tr.From)
	assert.Equal(t, StateCritical, tr.To)
	require.NotNil(t, tr.Snapshot)

	// staying critical must not re-notify
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	<-rec.entries
	assert.Empty(t, notif.transitions)
}

func TestMonitorEndToEnd(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := &captureRecorder{entries: make(chan Entry, 16)}
	feed := &captureFeed{}
	notif := &captureNotifier{transitions: make(chan Transition, 16)}
	src := &scriptedSource{outcomes: []Outcome{ok(5), ok(7), lost(), ok(6), ok(8)}}

	cfg := testConfig(fc)
	cfg.Recorder = rec
	cfg.Feed = feed
	cfg.Notifier = notif
	m, err := New("t", src, cfg)
	require.NoError(t, err)

	stop := startMonitor(t, m)
	defer stop()

	entries := make([]Entry, 0, 5)
	entries = append(entries, <-rec.entries)
	for i := 0; i < 4; i++ {
		fc.BlockUntil(1)
		fc.Advance(time.Second)
		entries = append(entries, <-rec.entries)
	}

	for i, e := range entries {
		assert.EqualValues(t, i, e.Seq)
		assert.Equal(t, StateNominal, e.State)
	}
	assert.True(t, entries[2].Lost)

	snap, state, published := feed.last()
	require.NotNil(t, snap)
	assert.Equal(t, 5, published)
	assert.Equal(t, StateNominal, state)
	assert.InDelta(t, 6.5, snap.AvgRTT, 1e-9)
	assert.Equal(t, 8.0, snap.MaxRTT)
	assert.InDelta(t, 0.2, snap.LossRate, 1e-9)
	require.True(t, snap.HasJitter)
	assert.InDelta(t, 2.0, snap.Jitter, 1e-9)

	assert.Empty(t, notif.transitions)
}

func TestMultiNotifier(t *testing.T) {
	a := &captureNotifier{transitions: make(chan Transition, 1)}
	b := &captureNotifier{transitions: make(chan Transition, 1)}

	n := MultiNotifier(a, b)
	n.Notify("t", Transition{From: StateNominal, To: StateWarning})

	assert.Len(t, a.transitions, 1)
	assert.Len(t, b.transitions, 1)
}
