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

package debug

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("sink failure")
}

func TestPreserve(t *testing.T) {
	var klog, display, serial bytes.Buffer
	w := NewWriter(Sinks{Log: &klog, Display: &display, Serial: &serial})

	w.WriteDebug([]byte("echo "), false)
	w.Write([]byte("trace"))

	if got := klog.String(); got != "trace" {
		t.Errorf("log got %q, want only preserved output", got)
	}
	for name, b := range map[string]*bytes.Buffer{"display": &display, "serial": &serial} {
		if got := b.String(); got != "echo trace" {
			t.Errorf("%s got %q, want %q", name, got, "echo trace")
		}
	}
}

func TestFailingSinkIsolated(t *testing.T) {
	var serial bytes.Buffer
	w := NewWriter(Sinks{Display: failingWriter{}, Serial: &serial})
	before := Drops(SinkDisplay)

	if n, err := w.Write([]byte("x")); n != 1 || err != nil {
		t.Fatalf("Write = (%d, %v), want (1, nil)", n, err)
	}
	if got := serial.String(); got != "x" {
		t.Errorf("serial got %q, want x", got)
	}
	if got := Drops(SinkDisplay) - before; got != 1 {
		t.Errorf("display drops increased by %d, want 1", got)
	}
}

func TestBusySinkDropped(t *testing.T) {
	var display, serial bytes.Buffer
	w := NewWriter(Sinks{Display: &display, Serial: &serial})
	before := Drops(SinkSerial)

	w.sinks[SinkSerial].mu.Lock()
	w.Write([]byte("lost"))
	w.sinks[SinkSerial].mu.Unlock()
	w.Write([]byte("kept"))

	if got := display.String(); got != "lostkept" {
		t.Errorf("display got %q, want lostkept", got)
	}
	if got := serial.String(); got != "kept" {
		t.Errorf("serial got %q, want kept", got)
	}
	if got := Drops(SinkSerial) - before; got != 1 {
		t.Errorf("serial drops increased by %d, want 1", got)
	}
}

// stuckWriter blocks every write until release is closed.
type stuckWriter struct {
	release chan struct{}
	writes  chan []byte
}

func (s *stuckWriter) Write(b []byte) (int, error) {
	<-s.release
	s.writes <- b
	return len(b), nil
}

func TestStalledSink(t *testing.T) {
	var klog bytes.Buffer
	serial := &stuckWriter{release: make(chan struct{}), writes: make(chan []byte, 1)}
	w := NewWriter(Sinks{Log: &klog, Serial: serial, Timeout: 10 * time.Millisecond})
	before := Drops(SinkSerial)

	buf := []byte("first")
	done := make(chan struct{})
	go func() {
		w.WriteDebug(buf, true)
		// The stalled write must not see the caller reuse its buffer.
		copy(buf, "XXXXX")
		w.WriteDebug([]byte("second"), true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("WriteDebug blocked on a stalled sink")
	}

	if got := klog.String(); got != "firstsecond" {
		t.Errorf("log got %q, want firstsecond", got)
	}
	// One write abandoned after the timeout, one dropped while busy.
	if got := Drops(SinkSerial) - before; got != 2 {
		t.Errorf("serial drops increased by %d, want 2", got)
	}

	close(serial.release)
	if got := string(<-serial.writes); got != "first" {
		t.Errorf("stalled write delivered %q, want first", got)
	}
	// Once the stalled write completes the sink accepts output again.
	deadline := time.Now().Add(10 * time.Second)
	for {
		w.Write([]byte("third"))
		select {
		case b := <-serial.writes:
			if got := string(b); got != "third" {
				t.Errorf("serial got %q after recovery, want third", got)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("serial sink never recovered")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSinkString(t *testing.T) {
	for s, want := range map[Sink]string{SinkLog: "log", SinkDisplay: "display", SinkSerial: "serial", Sink(7): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("Sink(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
