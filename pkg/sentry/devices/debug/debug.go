// Copyright 2026 The Kestrel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package debug implements the kernel debug writer, which fans debug and
// trace output out to the persistent log, the graphical console and the
// serial port.
package debug

import (
	"io"
	"sync"
	"time"

	"kestrel.dev/kestrel/pkg/log"
	"kestrel.dev/kestrel/pkg/metric"
)

// Sink identifies one output of a Writer.
type Sink int

// Sinks, in the order they are written.
const (
	SinkLog Sink = iota
	SinkDisplay
	SinkSerial
	numSinks
)

var sinkNames = [numSinks]string{"log", "display", "serial"}

// String implements fmt.Stringer.String.
func (s Sink) String() string {
	if s < 0 || s >= numSinks {
		return "unknown"
	}
	return sinkNames[s]
}

// DefaultTimeout is the default Sinks.Timeout.
const DefaultTimeout = 100 * time.Millisecond

var (
	sinkDrops = metric.MustCreateNewUint64Metric("/debug/sink_drops",
		"Number of debug writes dropped because a sink was busy, stalled or failed.",
		metric.NewField("sink", sinkNames[:]))

	dropLog = log.BasicRateLimitedLogger(10 * time.Second)
)

// Drops returns the number of writes dropped by s since boot.
func Drops(s Sink) uint64 {
	return sinkDrops.Value(s.String())
}

// Sinks are the outputs of a Writer. Nil sinks are skipped.
type Sinks struct {
	Log     io.Writer
	Display io.Writer
	Serial  io.Writer

	// Timeout bounds how long a write waits for one sink. If zero,
	// DefaultTimeout is used.
	Timeout time.Duration
}

type sink struct {
	// mu is held while a write to w is in flight, including a write that
	// outlived its caller's timeout.
	mu sync.Mutex
	w  io.Writer
}

// write starts a write of buf to s and waits up to timeout for it.
//
// Preconditions: s.mu must be locked. write unlocks it once the write
// completes, which may be after write returns.
func (s *sink) write(buf []byte, timeout time.Duration) (stalled bool, err error) {
	done := make(chan error, 1)
	go func() {
		_, err := s.w.Write(buf)
		s.mu.Unlock()
		done <- err
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return false, err
	case <-timer.C:
		return true, nil
	}
}

// Writer fans writes out to its sinks. Each sink is guarded by its own
// lock, taken with TryLock: a write that finds a sink busy is dropped for
// that sink and counted, and never waits or affects the other sinks. A sink
// that does not accept a write within the timeout stays busy until the write
// completes, so a stalled sink costs each caller at most one timeout.
type Writer struct {
	sinks   [numSinks]*sink
	timeout time.Duration
}

// NewWriter returns a Writer over s.
func NewWriter(s Sinks) *Writer {
	w := &Writer{timeout: s.Timeout}
	if w.timeout <= 0 {
		w.timeout = DefaultTimeout
	}
	for i, out := range [numSinks]io.Writer{s.Log, s.Display, s.Serial} {
		if out != nil {
			w.sinks[i] = &sink{w: out}
		}
	}
	return w
}

// WriteDebug writes buf to the display and serial sinks, and to the
// persistent log only if preserve is set.
func (w *Writer) WriteDebug(buf []byte, preserve bool) {
	var owned []byte
	for i, s := range w.sinks {
		if s == nil || (Sink(i) == SinkLog && !preserve) {
			continue
		}
		if !s.mu.TryLock() {
			w.drop(Sink(i), false, nil)
			continue
		}
		// A stalled sink may still read its buffer after we return.
		if owned == nil {
			owned = append([]byte(nil), buf...)
		}
		if stalled, err := s.write(owned, w.timeout); stalled || err != nil {
			w.drop(Sink(i), stalled, err)
		}
	}
}

func (w *Writer) drop(s Sink, stalled bool, err error) {
	sinkDrops.Increment(s.String())
	switch {
	case err != nil:
		dropLog.Warningf("Debug sink %v failed, output dropped: %v", s, err)
	case stalled:
		dropLog.Warningf("Debug sink %v stalled for %v, output abandoned", s, w.timeout)
	default:
		dropLog.Warningf("Debug sink %v busy, output dropped", s)
	}
}

// Write implements io.Writer.Write. Output written this way is preserved.
func (w *Writer) Write(buf []byte) (int, error) {
	w.WriteDebug(buf, true)
	return len(buf), nil
}
