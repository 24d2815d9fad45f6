// Package csvlog implements the append-only CSV log sink. One record is
// written per sample, preserving all sample fields plus the loss rate
// and alert state at that instant.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/probelab/latmon/monitor"
)

var header = []string{
	"sequence",
	"timestamp",
	"target",
	"rtt_ms",
	"status",
	"interface_drops",
	"interface_errors",
	"loss_rate",
	"alert_state",
}

// Writer appends sample records to a CSV file. It is safe for use by
// multiple monitors.
type Writer struct {
	mtx sync.Mutex
	f   *os.File
	w   *csv.Writer
}

// Open opens path for appending, writing the header line if the file is
// new or empty.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot stat log file: %w", err)
	}

	w := &Writer{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("cannot write log header: %w", err)
		}
		w.w.Flush()
	}

	return w, nil
}

// Record appends one entry. A lost probe gets an empty rtt_ms field; no
// numeric sentinel is ever written.
func (w *Writer) Record(e monitor.Entry) error {
	rtt := ""
	status := "failed"
	if !e.Lost {
		rtt = strconv.FormatFloat(float64(e.RTT)/float64(time.Millisecond), 'f', 3, 64)
		status = "success"
	}

	record := []string{
		strconv.FormatUint(e.Seq, 10),
		e.Timestamp.Format(time.RFC3339Nano),
		e.Target,
		rtt,
		status,
		strconv.FormatUint(e.Side.Drops, 10),
		strconv.FormatUint(e.Side.Errors, 10),
		strconv.FormatFloat(e.LossRate, 'f', 4, 64),
		e.State.String(),
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.w.Write(record); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
