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

// Package serial implements the kernel serial port: an output sink for
// debug text and a receive path that feeds typed bytes to the debug
// scheme.
package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Input receives bytes from the port's receive path.
type Input interface {
	// Input queues one received byte.
	Input(b byte)

	// Notify wakes readers after a burst of Input calls.
	Notify()
}

// Options configures a Port.
type Options struct {
	// Out is the transmit side of the port.
	Out io.Writer

	// CRLF translates "\n" to "\r\n" on output, for terminals in raw mode.
	CRLF bool
}

// Port is a serial port.
type Port struct {
	out  io.Writer
	crlf bool

	mu    sync.Mutex
	input Input
}

// New returns a Port.
func New(opts Options) *Port {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Port{out: opts.Out, crlf: opts.CRLF}
}

// SetInput connects the receive path to in.
func (p *Port) SetInput(in Input) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input = in
}

// Write implements io.Writer.Write.
func (p *Port) Write(buf []byte) (int, error) {
	if !p.crlf || bytes.IndexByte(buf, '\n') < 0 {
		return p.out.Write(buf)
	}
	if _, err := p.out.Write(bytes.ReplaceAll(buf, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Receive delivers a burst of received bytes: each byte is queued, then
// readers are notified once.
func (p *Port) Receive(data []byte) {
	p.mu.Lock()
	in := p.input
	p.mu.Unlock()
	if in == nil || len(data) == 0 {
		return
	}
	for _, b := range data {
		in.Input(b)
	}
	in.Notify()
}

// Serve feeds everything read from r to Receive until r reports EOF or an
// error, or ctx is cancelled. A Read blocked in r is not interrupted by
// cancellation; closing r is.
func (p *Port) Serve(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		p.Receive(buf[:n])
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
	}
}
