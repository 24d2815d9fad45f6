package probe

import (
	"fmt"

	"github.com/prometheus/procfs"
	log "github.com/sirupsen/logrus"

	"github.com/probelab/latmon/monitor"
)

// IfaceCounters reads drop and error counters for a network interface
// from /proc/net/dev. The values are reported as an opaque side channel
// alongside each probe; the monitor passes them through to the log sink
// without interpreting them.
type IfaceCounters struct {
	fs    procfs.FS
	iface string
}

// NewIfaceCounters verifies that the interface exists and returns a
// reader for its counters.
func NewIfaceCounters(iface string) (*IfaceCounters, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("cannot open procfs: %w", err)
	}

	netDev, err := fs.NetDev()
	if err != nil {
		return nil, fmt.Errorf("cannot read interface statistics: %w", err)
	}
	if _, ok := netDev[iface]; !ok {
		return nil, fmt.Errorf("unknown interface %q", iface)
	}

	return &IfaceCounters{fs: fs, iface: iface}, nil
}

// Read returns the current counters. Read errors yield zero values; the
// side channel is best effort and never fails a probe.
func (c *IfaceCounters) Read() monitor.SideChannel {
	netDev, err := c.fs.NetDev()
	if err != nil {
		log.Debugf("could not read interface statistics: %v", err)
		return monitor.SideChannel{}
	}

	line, ok := netDev[c.iface]
	if !ok {
		return monitor.SideChannel{}
	}

	return monitor.SideChannel{
		Drops:  line.RxDropped + line.TxDropped,
		Errors: line.RxErrors + line.TxErrors,
	}
}
