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

package serial

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

type recorder struct {
	got      []byte
	notified int
}

func (r *recorder) Input(b byte) { r.got = append(r.got, b) }
func (r *recorder) Notify()      { r.notified++ }

func TestReceive(t *testing.T) {
	p := New(Options{})
	rec := &recorder{}
	p.Receive([]byte("dropped before input is set"))
	p.SetInput(rec)
	p.Receive([]byte("ab"))
	p.Receive([]byte("c"))
	p.Receive(nil)
	if string(rec.got) != "abc" || rec.notified != 2 {
		t.Errorf("got %q with %d notifications, want abc with 2", rec.got, rec.notified)
	}
}

func TestServe(t *testing.T) {
	p := New(Options{})
	rec := &recorder{}
	p.SetInput(rec)
	if err := p.Serve(context.Background(), strings.NewReader("typed\n")); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if string(rec.got) != "typed\n" {
		t.Errorf("got %q, want %q", rec.got, "typed\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Serve(ctx, strings.NewReader("x")); err != context.Canceled {
		t.Errorf("Serve with a cancelled context got %v, want context.Canceled", err)
	}
}

func TestCRLF(t *testing.T) {
	var out bytes.Buffer
	p := New(Options{Out: &out, CRLF: true})
	if n, err := p.Write([]byte("a\nb\n")); n != 4 || err != nil {
		t.Fatalf("Write = (%d, %v), want (4, nil)", n, err)
	}
	if got := out.String(); got != "a\r\nb\r\n" {
		t.Errorf("output %q, want %q", got, "a\r\nb\r\n")
	}
}
