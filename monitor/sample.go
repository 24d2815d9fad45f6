package monitor

import "time"

// SideChannel carries interface-level counters captured alongside a probe.
// The values are passed through to the log sink untouched; the monitor
// never interprets them.
type SideChannel struct {
	Drops  uint64
	Errors uint64
}

// Sample records the outcome of a single probe attempt. RTT is only
// meaningful when Lost is false; a lost probe never contributes a
// numeric round-trip time.
type Sample struct {
	Seq       uint64
	Timestamp time.Time
	RTT       time.Duration
	Lost      bool
	Side      SideChannel
}

// Outcome is what a probe source reports for one attempt, before the
// sampling loop assigns a sequence number and timestamp.
type Outcome struct {
	RTT  time.Duration
	Lost bool
	Side SideChannel
}
