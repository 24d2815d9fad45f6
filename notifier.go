package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/probelab/latmon/monitor"
)

// logNotifier writes confirmed alert transitions to the application
// log. Transitions are rare by construction (hysteresis), so logging
// them synchronously is fine.
type logNotifier struct{}

func (logNotifier) Notify(target string, tr monitor.Transition) {
	fields := log.Fields{
		"target": target,
		"from":   tr.From.String(),
		"to":     tr.To.String(),
	}
	if tr.Snapshot != nil && tr.Snapshot.HasRTT {
		fields["avg_rtt_ms"] = tr.Snapshot.AvgRTT
		fields["loss_rate"] = tr.Snapshot.LossRate
	}

	entry := log.WithFields(fields)
	switch tr.To {
	case monitor.StateCritical:
		entry.Error("alert state changed")
	case monitor.StateWarning:
		entry.Warn("alert state changed")
	default:
		entry.Info("alert state changed")
	}
}
