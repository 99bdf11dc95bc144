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

package ksh

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/sentry/devices/debug"
	"kestrel.dev/kestrel/pkg/sentry/devices/klog"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/kernel/kerneltest"
	"kestrel.dev/kestrel/pkg/sentry/ktime"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/sentry/schemes/debugfs"
	"kestrel.dev/kestrel/pkg/sentry/schemes/memory"
	"kestrel.dev/kestrel/pkg/sentry/schemes/ramfs"
	sksys "kestrel.dev/kestrel/pkg/sentry/syscalls/sk"
	"kestrel.dev/kestrel/pkg/skcall"
)

type testEnv struct {
	k       *kernel.Kernel
	debug   *debugfs.Scheme
	console bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{}
	clock := ktime.NewManualClock(ktime.ZeroTime)
	l := klog.New(4096)
	e.debug = debugfs.New(debug.NewWriter(debug.Sinks{Log: l, Display: &e.console}), l)
	e.k = kerneltest.New(t, kerneltest.Options{
		Table: sksys.Table,
		Clock: clock,
		Schemes: map[string]scheme.Scheme{
			"file":   ramfs.New(ramfs.Options{Clock: clock}),
			"memory": memory.New(0),
			"debug":  e.debug,
		},
	})
	return e
}

// run runs fn with a Caller in a new task.
func (e *testEnv) run(t *testing.T, fn func(c *skcall.Caller)) {
	t.Helper()
	kerneltest.Run(t, e.k, kernel.TaskConfig{Name: "ksh"}, func(task *kernel.Task) {
		c, err := skcall.New(task)
		if err != nil {
			t.Errorf("skcall.New: %v", err)
			return
		}
		fn(c)
	})
}

// runScript runs script with output to a file and returns the output.
func runScript(t *testing.T, script string) string {
	t.Helper()
	var out []byte
	newTestEnv(t).run(t, func(c *skcall.Caller) {
		in, err := c.Open("/script", sk.O_RDWR|sk.O_CREAT|0o644)
		if err != nil {
			t.Fatalf("open script: %v", err)
		}
		c.WriteString(in, script)
		c.Lseek(in, 0, sk.SEEK_SET)
		outFD, err := c.Open("/out", sk.O_RDWR|sk.O_CREAT|0o644)
		if err != nil {
			t.Fatalf("open output: %v", err)
		}
		if err := New(c, Options{In: in, Out: outFD}).Run(); err != nil {
			t.Errorf("Run: %v", err)
		}
		c.Lseek(outFD, 0, sk.SEEK_SET)
		buf := make([]byte, 64*1024)
		n, err := c.Read(outFD, buf)
		if err != nil {
			t.Errorf("reading output: %v", err)
		}
		out = buf[:n]
	})
	return string(out)
}

func TestScript(t *testing.T) {
	script := `# a comment
echo hello   world
write /a first line
append /a second line
cat /a
mkdir /d
mv /a /d/b
ls /d
rm /d/b
rmdir /d
cat /missing
mkdir
bogus
ls /`
	want := `hello world
first line
second line
- b
ksh: cat: /missing: ENOENT
ksh: mkdir: bad usage, see help
ksh: bogus: command not found
- out
- script
`
	if diff := cmp.Diff(want, runScript(t, script)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestExitStopsScript(t *testing.T) {
	if got, want := runScript(t, "echo a\nexit\necho b\n"), "a\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestStatAndMem(t *testing.T) {
	out := runScript(t, "write /f x\nstat /f\nmem\nuptime\n")
	lines := strings.Split(out, "\n")
	if len(lines) < 3 {
		t.Fatalf("output = %q, want three lines", out)
	}
	if !strings.HasPrefix(lines[0], "file:/f: mode=0100644 ") || !strings.HasSuffix(lines[0], " size=2") {
		t.Errorf("stat line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], " mappings") || strings.HasPrefix(lines[1], "0 bytes") {
		t.Errorf("mem line = %q", lines[1])
	}
	if lines[2] != "0s" {
		t.Errorf("uptime = %q, want 0s", lines[2])
	}
}

func TestInteractive(t *testing.T) {
	e := newTestEnv(t)
	in := e.debug.Input()
	for _, b := range []byte("ecx\x7fho hi\rexit\r") {
		in.Input(b)
	}
	in.Notify()
	e.run(t, func(c *skcall.Caller) {
		con, err := c.Open("debug:", sk.O_RDONLY)
		if err != nil {
			t.Fatalf("open debug: %v", err)
		}
		out, err := c.Open("debug:no-preserve", sk.O_WRONLY)
		if err != nil {
			t.Fatalf("open debug:no-preserve: %v", err)
		}
		if err := New(c, Options{In: con, Out: out, Prompt: "> ", Echo: true}).Run(); err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	if got, want := e.console.String(), "> ecx\b \bho hi\nexit\nhi\n> "; got != want {
		t.Errorf("console = %q, want %q", got, want)
	}
}

func TestStrace(t *testing.T) {
	var got []bool
	e := newTestEnv(t)
	e.run(t, func(c *skcall.Caller) {
		sh := New(c, Options{Out: sk.NoFD, SetStrace: func(on bool) { got = append(got, on) }})
		for _, line := range []string{"strace on", "strace off"} {
			if err := sh.Exec(line); err != nil {
				t.Errorf("Exec(%q): %v", line, err)
			}
		}
		if err := sh.Exec("strace maybe"); err == nil {
			t.Errorf("Exec(strace maybe) succeeded")
		}
		if err := New(c, Options{}).Exec("strace on"); err == nil {
			t.Errorf("strace without a hook succeeded")
		}
	})
	if diff := cmp.Diff([]bool{true, false}, got); diff != "" {
		t.Errorf("SetStrace calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExec(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, func(c *skcall.Caller) {
		sh := New(c, Options{Out: sk.NoFD})
		if err := sh.Exec("exit"); err != ErrExit {
			t.Errorf("Exec(exit) = %v, want ErrExit", err)
		}
		if err := sh.Exec("   "); err != nil {
			t.Errorf("Exec(blank) = %v", err)
		}
		if err := sh.Exec("sleep forever"); err == nil {
			t.Errorf("Exec(sleep forever) succeeded")
		}
	})
}
