// Package probe provides the probe sources consumed by the monitor
// package: a real ICMP echo implementation and a synthetic simulator.
package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	ping "github.com/digineo/go-ping"
	log "github.com/sirupsen/logrus"

	"github.com/probelab/latmon/monitor"
)

// Ping ID values are spread over the whole uint16 space by incrementing
// with a large value relatively prime to 65536. This guarantees a
// maximum interval before reuse and makes collisions with other pingers
// on the same host (including ad-hoc `ping` runs, which tend to use low
// IDs) unlikely.
const pingIDIncr = 29479

var lastPingID = uint32(os.Getpid() - pingIDIncr)

func newPingID() uint16 {
	for {
		if id := uint16(atomic.AddUint32(&lastPingID, pingIDIncr)); id >= 1024 {
			return id
		}
	}
}

// ICMP probes a single resolved target with ICMP echo requests. The
// timeout policy is owned here, not by the sampling loop.
type ICMP struct {
	pinger   *ping.Pinger
	addr     *net.IPAddr
	timeout  time.Duration
	counters *IfaceCounters
}

// NewICMP resolves host and creates a pinger bound to the available
// address families. counters may be nil if no side-channel interface
// counters are wanted.
func NewICMP(host string, timeout time.Duration, counters *IfaceCounters) (*ICMP, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("probe timeout must be positive, got %v", timeout)
	}

	addr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, fmt.Errorf("error resolving target %s: %w", host, err)
	}

	var bind4, bind6 string
	if ln, err := net.Listen("tcp4", "127.0.0.1:0"); err == nil {
		// ipv4 enabled
		ln.Close()
		bind4 = "0.0.0.0"
	}
	if ln, err := net.Listen("tcp6", "[::1]:0"); err == nil {
		// ipv6 enabled
		ln.Close()
		bind6 = "::"
	}

	pinger, err := ping.New(bind4, bind6)
	if err != nil {
		return nil, fmt.Errorf("cannot create pinger for %s: %w", host, err)
	}
	pinger.Id = newPingID()

	return &ICMP{
		pinger:   pinger,
		addr:     addr,
		timeout:  timeout,
		counters: counters,
	}, nil
}

// Probe sends one echo request and waits for the reply or the timeout.
// A timeout or I/O error is reported as a lost probe, never as an error.
func (p *ICMP) Probe(ctx context.Context) monitor.Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rtt, err := p.pinger.PingContext(ctx, p.addr)

	out := monitor.Outcome{RTT: rtt, Lost: err != nil}
	if err != nil {
		log.Debugf("%s: probe lost: %v", p.addr, err)
	}
	if p.counters != nil {
		out.Side = p.counters.Read()
	}
	return out
}

// Close releases the underlying ICMP sockets.
func (p *ICMP) Close() {
	p.pinger.Close()
}
