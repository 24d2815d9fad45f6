package main

import "github.com/probelab/latmon/config"

// customLabelSet is the union of custom label names across the configured
// targets. The set is fixed at collector construction so every metric Desc
// carries the same label dimensions; targets added by a later reload can
// only supply values for the names known at startup.
type customLabelSet struct {
	names []string
	seen  map[string]struct{}
}

func newCustomLabelSet(targets []config.TargetConfig) *customLabelSet {
	cl := &customLabelSet{seen: make(map[string]struct{})}
	for _, t := range targets {
		for name := range t.Labels {
			cl.add(name)
		}
	}
	return cl
}

func (cl *customLabelSet) add(name string) {
	if _, ok := cl.seen[name]; ok {
		return
	}
	cl.names = append(cl.names, name)
	cl.seen[name] = struct{}{}
}

// labelNames returns the label names in first-seen order.
func (cl *customLabelSet) labelNames() []string {
	return cl.names
}

// labelValues returns t's values for the known label names, with an empty
// string for every name the target does not set.
func (cl *customLabelSet) labelValues(t config.TargetConfig) []string {
	values := make([]string, len(cl.names))
	for i, name := range cl.names {
		values[i] = t.Labels[name]
	}
	return values
}
