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

// Package boot loads the kernel: it builds the devices, schemes and syscall
// table from a Config, and runs the shell task on top of them.
package boot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"kestrel.dev/kestrel/kboot/config"
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/cleanup"
	"kestrel.dev/kestrel/pkg/ksh"
	"kestrel.dev/kestrel/pkg/log"
	"kestrel.dev/kestrel/pkg/metric"
	"kestrel.dev/kestrel/pkg/sentry/devices/debug"
	"kestrel.dev/kestrel/pkg/sentry/devices/fbcon"
	"kestrel.dev/kestrel/pkg/sentry/devices/klog"
	"kestrel.dev/kestrel/pkg/sentry/devices/serial"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/sentry/schemes/debugfs"
	"kestrel.dev/kestrel/pkg/sentry/schemes/memory"
	"kestrel.dev/kestrel/pkg/sentry/schemes/pipe"
	"kestrel.dev/kestrel/pkg/sentry/schemes/ramfs"
	"kestrel.dev/kestrel/pkg/sentry/strace"
	sksys "kestrel.dev/kestrel/pkg/sentry/syscalls/sk"
	"kestrel.dev/kestrel/pkg/skcall"
)

// ScriptPath is where a script run by the shell is stored in file:.
const ScriptPath = "/init.ksh"

// Args are the arguments to New.
type Args struct {
	// Conf is the kernel configuration. Required.
	Conf *config.Config

	// SerialIn feeds the serial port's receive path. If nil, the port
	// receives nothing.
	SerialIn io.Reader

	// SerialOut is the transmit side of the serial port. If nil, serial
	// output is discarded.
	SerialOut io.Writer

	// CRLF translates serial output newlines for raw terminals.
	CRLF bool

	// Script, if not nil, is run by the shell instead of reading commands
	// from the console.
	Script []byte
}

// Loader keeps state needed to run the kernel.
type Loader struct {
	conf *config.Config

	k       *kernel.Kernel
	klog    *klog.Log
	console *fbcon.Console
	port    *serial.Port
	writer  *debug.Writer
	debug   *debugfs.Scheme
	tracer  *strace.Tracer

	serialIn io.Reader
	script   []byte

	// strace is the enable predicate of tracer.
	strace atomic.Bool

	// mirror is the host copy of the persistent log, locked by mirrorLock.
	mirror     *os.File
	mirrorLock *flock.Flock
}

// New initializes a new kernel loader configured by args.
func New(args Args) (*Loader, error) {
	conf := args.Conf
	l := &Loader{
		conf:     conf,
		klog:     klog.New(conf.KlogSize),
		port:     serial.New(serial.Options{Out: args.SerialOut, CRLF: args.CRLF}),
		serialIn: args.SerialIn,
		script:   args.Script,
	}
	l.strace.Store(conf.Strace)

	if conf.KlogMirror != "" {
		if err := l.openMirror(conf.KlogMirror); err != nil {
			return nil, err
		}
	}
	cu := cleanup.Make(l.release)
	defer cu.Clean()

	sinks := debug.Sinks{Log: l.klog, Serial: l.port}
	if conf.ConsoleWidth > 0 && conf.ConsoleHeight > 0 {
		l.console = fbcon.New(conf.ConsoleWidth, conf.ConsoleHeight, nil)
		sinks.Display = l.console
	}
	l.writer = debug.NewWriter(sinks)
	l.debug = debugfs.New(l.writer, l.klog)
	l.port.SetInput(l.debug.Input())

	if conf.StraceLogSize != 0 {
		strace.LogMaximumSize = conf.StraceLogSize
	}
	tracer, err := strace.New(strace.Options{
		Out:      l.writer,
		Enabled:  l.strace.Load,
		Syscalls: conf.StraceSyscallList(),
		Raw:      conf.StraceRaw,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring strace: %w", err)
	}
	l.tracer = tracer

	r := scheme.NewRegistry()
	for _, s := range []struct {
		name string
		s    scheme.Scheme
	}{
		{"file", ramfs.New(ramfs.Options{Capacity: conf.RamfsSize})},
		{"pipe", pipe.New(conf.PipeSize)},
		{"debug", l.debug},
		{"memory", memory.New(0)},
	} {
		if _, err := r.Register(s.name, s.s); err != nil {
			return nil, fmt.Errorf("registering scheme %q: %w", s.name, err)
		}
	}

	l.k, err = kernel.New(kernel.InitKernelArgs{
		NumCPUs:      conf.NumCPUs,
		Registry:     r,
		SyscallTable: sksys.Table,
		Tracer:       l.tracer,
		MaxFiles:     int32(conf.FileLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("creating kernel: %w", err)
	}
	metric.Initialize()
	cu.Release()
	return l, nil
}

// openMirror opens and locks the host copy of the persistent log.
func (l *Loader) openMirror(path string) error {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking %q: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("klog mirror %q is in use by another kernel", path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		lock.Unlock()
		return fmt.Errorf("opening klog mirror: %w", err)
	}
	l.mirror, l.mirrorLock = f, lock
	l.klog.SetMirror(f)
	return nil
}

// Kernel returns the kernel.
func (l *Loader) Kernel() *kernel.Kernel {
	return l.k
}

// Klog returns the persistent log.
func (l *Loader) Klog() *klog.Log {
	return l.klog
}

// Console returns the graphical debug console, or nil if it is disabled.
func (l *Loader) Console() *fbcon.Console {
	return l.console
}

// SetStrace enables or disables syscall tracing.
func (l *Loader) SetStrace(enabled bool) {
	l.strace.Store(enabled)
	log.Infof("Strace enabled: %t", enabled)
}

// Run runs the shell until it exits or ctx is cancelled. On cancellation,
// every task is killed.
func (l *Loader) Run(ctx context.Context) error {
	if l.serialIn != nil {
		// A read blocked on the host side cannot be interrupted, so the
		// receive path is not part of the group. It ends when its reader
		// is closed.
		go func() {
			if err := l.port.Serve(ctx, l.serialIn); err != nil && !errors.Is(err, context.Canceled) {
				log.Warningf("Serial port receive failed: %v", err)
			}
		}()
	}

	var shellErr error
	shell := l.k.NewTask(kernel.TaskConfig{Name: "ksh"})
	shell.Start(func(t *kernel.Task) {
		shellErr = l.shell(t)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-shell.Exited()
		if shellErr != nil {
			return fmt.Errorf("shell: %w", shellErr)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-shell.Exited():
		case <-gctx.Done():
			for _, t := range l.k.Tasks() {
				l.k.Kill(t)
			}
		}
		l.k.WaitExited()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// shell runs in the shell task.
func (l *Loader) shell(t *kernel.Task) error {
	c, err := skcall.New(t)
	if err != nil {
		return err
	}
	out, err := c.Open("debug:no-preserve", sk.O_WRONLY)
	if err != nil {
		return fmt.Errorf("opening console output: %w", err)
	}
	opts := ksh.Options{Out: out, SetStrace: l.SetStrace}
	if l.script != nil {
		in, err := c.Open("file:"+ScriptPath, sk.O_RDWR|sk.O_CREAT|sk.O_TRUNC|0o644)
		if err != nil {
			return fmt.Errorf("creating %s: %w", ScriptPath, err)
		}
		if _, err := c.Write(in, l.script); err != nil {
			return fmt.Errorf("writing %s: %w", ScriptPath, err)
		}
		if _, err := c.Lseek(in, 0, sk.SEEK_SET); err != nil {
			return err
		}
		opts.In = in
	} else {
		in, err := c.Open("debug:", sk.O_RDONLY)
		if err != nil {
			return fmt.Errorf("opening console input: %w", err)
		}
		opts.In = in
		opts.Prompt = "ksh> "
		opts.Echo = true
	}
	return ksh.New(c, opts).Run()
}

// WriteMetrics writes the kernel metrics to path in Prometheus text format.
// The file is replaced atomically.
func WriteMetrics(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := metric.WritePrometheus(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Destroy cleans up all resources used by the loader. The metrics file, if
// configured, is written first.
func (l *Loader) Destroy() {
	if l.conf.MetricsFile != "" {
		if err := WriteMetrics(l.conf.MetricsFile); err != nil {
			log.Warningf("Failed to write metrics to %q: %v", l.conf.MetricsFile, err)
		}
	}
	l.release()
}

// release closes and unlocks the klog mirror.
func (l *Loader) release() {
	if l.mirror != nil {
		l.klog.SetMirror(nil)
		l.mirror.Close()
		l.mirrorLock.Unlock()
		l.mirror, l.mirrorLock = nil, nil
	}
}
