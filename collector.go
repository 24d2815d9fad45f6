package main

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/probelab/latmon/config"
	"github.com/probelab/latmon/monitor"
)

const prefix = "latmon_"

func newDesc(name, help string, variableLabels []string, constLabels prometheus.Labels) *prometheus.Desc {
	return prometheus.NewDesc(prefix+name, help, variableLabels, constLabels)
}

// targetFeed is the per-target latest published value. The renderer
// scrapes whenever it likes; intermediate snapshots are coalesced.
type targetFeed struct {
	customLabels []string
	snapshot     *monitor.Snapshot
	state        monitor.State
	when         time.Time
	transitions  uint64
}

// latencyCollector is the visualization feed: monitors publish their
// latest snapshot and alert state into it, Prometheus scrapes it. It
// also counts confirmed alert transitions per target.
type latencyCollector struct {
	rttDesc         scaledMetrics
	lossDesc        *prometheus.Desc
	stateDesc       *prometheus.Desc
	transitionsDesc *prometheus.Desc
	samplesDesc     *prometheus.Desc
	failuresDesc    *prometheus.Desc

	labels       *customLabelSet
	customLabels map[string][]string

	mtx     sync.Mutex
	targets map[string]*targetFeed
}

func newLatencyCollector(targets []config.TargetConfig, scale rttUnit) *latencyCollector {
	cl := newCustomLabelSet(targets)
	labelNames := append([]string{"target"}, cl.labelNames()...)

	customLabels := make(map[string][]string, len(targets))
	for _, t := range targets {
		customLabels[t.Addr] = cl.labelValues(t)
	}

	return &latencyCollector{
		labels:          cl,
		rttDesc:         newScaledDesc("rtt", "Round trip time", scale, append(labelNames, "type")),
		lossDesc:        newDesc("loss_ratio", "Packet loss over the sample window", labelNames, nil),
		stateDesc:       newDesc("alert_state", "Alert state (0=nominal, 1=warning, 2=critical)", labelNames, nil),
		transitionsDesc: newDesc("alert_transitions_total", "Number of confirmed alert state transitions", labelNames, nil),
		samplesDesc:     newDesc("window_samples", "Number of samples in the window", labelNames, nil),
		failuresDesc:    newDesc("window_failures", "Number of lost probes in the window", labelNames, nil),
		customLabels:    customLabels,
		targets:         make(map[string]*targetFeed),
	}
}

func (c *latencyCollector) feed(target string) *targetFeed {
	f, ok := c.targets[target]
	if !ok {
		labels, known := c.customLabels[target]
		if !known {
			labels = make([]string, len(c.labels.labelNames()))
		}
		f = &targetFeed{customLabels: labels}
		c.targets[target] = f
	}
	return f
}

// configure adjusts the target set after a configuration reload. Label
// names are fixed at startup; values for new targets are taken from the
// known names, feeds for removed targets are dropped.
func (c *latencyCollector) configure(targets []config.TargetConfig) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	keep := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		keep[t.Addr] = struct{}{}
		c.customLabels[t.Addr] = c.labels.labelValues(t)
	}

	for addr := range c.targets {
		if _, ok := keep[addr]; !ok {
			delete(c.targets, addr)
			delete(c.customLabels, addr)
		}
	}
}

// Publish implements monitor.Feed with latest-value semantics.
func (c *latencyCollector) Publish(target string, snap *monitor.Snapshot, state monitor.State, when time.Time) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	f := c.feed(target)
	f.snapshot = snap
	f.state = state
	f.when = when
}

// Notify implements monitor.Notifier by counting confirmed transitions.
func (c *latencyCollector) Notify(target string, tr monitor.Transition) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.feed(target).transitions++
}

func (c *latencyCollector) Describe(ch chan<- *prometheus.Desc) {
	c.rttDesc.Describe(ch)
	ch <- c.lossDesc
	ch <- c.stateDesc
	ch <- c.transitionsDesc
	ch <- c.samplesDesc
	ch <- c.failuresDesc
}

func (c *latencyCollector) Collect(ch chan<- prometheus.Metric) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	for target, f := range c.targets {
		l := append([]string{target}, f.customLabels...)

		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, float64(f.state), l...)
		ch <- prometheus.MustNewConstMetric(c.transitionsDesc, prometheus.CounterValue, float64(f.transitions), l...)

		snap := f.snapshot
		if snap == nil {
			// no data yet: metrics derived from the window are omitted
			// rather than reported as zero
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.samplesDesc, prometheus.GaugeValue, float64(snap.Samples), l...)
		ch <- prometheus.MustNewConstMetric(c.failuresDesc, prometheus.GaugeValue, float64(snap.Failures), l...)
		ch <- prometheus.MustNewConstMetric(c.lossDesc, prometheus.GaugeValue, snap.LossRate, l...)

		if snap.HasRTT {
			c.rttDesc.Collect(ch, snap.AvgRTT, append(l, "avg")...)
			c.rttDesc.Collect(ch, snap.MaxRTT, append(l, "max")...)
		}
		if snap.HasJitter {
			c.rttDesc.Collect(ch, snap.Jitter, append(l, "jitter")...)
		}
	}
}
