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

// Package strace implements the syscall trace hooks: a kernel.SyscallTracer
// that writes one line per syscall entry and exit.
package strace

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/marshal"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/usermem"
)

// DefaultLogMaximumSize is the default LogMaximumSize.
const DefaultLogMaximumSize = 1024

// LogMaximumSize determines the maximum display size for data blobs (read,
// write, etc.).
var LogMaximumSize uint = DefaultLogMaximumSize

// maxPathLen bounds the paths read for display.
const maxPathLen = 4096

// Options configures a Tracer.
type Options struct {
	// Out receives one line per event. A debug.Writer is the usual
	// destination.
	Out io.Writer

	// Enabled is queried for every event. If nil, tracing is always on.
	Enabled func() bool

	// Syscalls, if not nil, restricts tracing to the named syscalls.
	Syscalls []string

	// Raw prints the six registers and the signed return word instead of
	// decoded arguments.
	Raw bool
}

// Tracer implements kernel.SyscallTracer.
type Tracer struct {
	out     io.Writer
	enabled func() bool
	raw     bool

	mu sync.RWMutex
	// filter is the set of traced syscalls. nil traces everything.
	filter map[uintptr]bool
}

var _ kernel.SyscallTracer = (*Tracer)(nil)

// New returns a Tracer. It fails if opts names an unknown syscall.
func New(opts Options) (*Tracer, error) {
	t := &Tracer{out: opts.Out, enabled: opts.Enabled, raw: opts.Raw}
	if err := t.SetFilter(opts.Syscalls); err != nil {
		return nil, err
	}
	return t, nil
}

// SetFilter restricts tracing to the named syscalls. A nil list traces
// every syscall.
func (t *Tracer) SetFilter(syscalls []string) error {
	filter, err := skSyscalls.ConvertToSysnoMap(syscalls)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.filter = filter
	t.mu.Unlock()
	return nil
}

// traced returns true if sysno should be traced now.
func (t *Tracer) traced(sysno uintptr) bool {
	if t.enabled != nil && !t.enabled() {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filter == nil || t.filter[sysno]
}

// info returns the SyscallInfo for sysno, with a generic entry for unknown
// syscalls.
func info(sysno uintptr) SyscallInfo {
	if i, ok := skSyscalls[sysno]; ok {
		return i
	}
	return SyscallInfo{name: fmt.Sprintf("sys_%#x", sysno), format: defaultFormat}
}

func (t *Tracer) emit(format string, v ...any) {
	line := fmt.Sprintf(format, v...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	t.out.Write([]byte(line))
}

// SyscallEnter implements kernel.SyscallTracer.SyscallEnter.
func (t *Tracer) SyscallEnter(task *kernel.Task, regs arch.Registers) {
	sysno := regs.SyscallNo()
	if !t.traced(sysno) {
		return
	}
	i := info(sysno)
	if t.raw {
		t.emit("%s E %s %s", task, i.name, rawRegs(regs))
		return
	}
	output := i.pre(task, regs.SyscallArgs(), LogMaximumSize)
	t.emit("%s E %s(%s)", task, i.name, strings.Join(output, ", "))
}

// SyscallExit implements kernel.SyscallTracer.SyscallExit.
func (t *Tracer) SyscallExit(task *kernel.Task, regs arch.Registers, val uintptr, err error) {
	sysno := regs.SyscallNo()
	if !t.traced(sysno) {
		return
	}
	i := info(sysno)
	if t.raw {
		t.emit("%s X %s %s = %d", task, i.name, rawRegs(regs), int64(kernel.Mux(val, err)))
		return
	}
	args := regs.SyscallArgs()
	output := i.pre(task, args, LogMaximumSize)
	i.post(task, args, val, err, output, LogMaximumSize)
	call := fmt.Sprintf("%s X %s(%s)", task, i.name, strings.Join(output, ", "))
	if err != nil {
		e := kernel.ErrnoOf(err)
		t.emit("%s = -%d %s", call, uint32(e), e)
		return
	}
	t.emit("%s = %d (%#x)", call, val, val)
}

// rawRegs formats the syscall number and arguments as hex words.
func rawRegs(regs arch.Registers) string {
	words := make([]string, len(regs))
	for i, r := range regs {
		words[i] = fmt.Sprintf("%#x", r)
	}
	return "[" + strings.Join(words, " ") + "]"
}

// pre formats the arguments of a syscall before it runs.
func (i *SyscallInfo) pre(t *kernel.Task, args arch.SyscallArguments, maximumBlobSize uint) []string {
	var output []string
	for arg := range args {
		if arg >= len(i.format) {
			break
		}
		a := args[arg]
		switch i.format[arg] {
		case FD:
			output = append(output, fd(a))
		case WriteBuffer:
			output = append(output, dump(t, a.Pointer(), uint(args[arg+1].Value), maximumBlobSize))
		case Path:
			output = append(output, path(t, a.Pointer(), args[arg+1].Value))
		case OpenFlags:
			output = append(output, open(uint64(a.Value)))
		case Mode:
			output = append(output, fmt.Sprintf("%#o", a.Value&sk.MODE_PERM))
		case Oct:
			output = append(output, fmt.Sprintf("%#o", a.Value))
		case Timespec:
			output = append(output, timespec(t, a.Pointer()))
		case MapDesc:
			output = append(output, mapDesc(t, a.Pointer(), args[arg+1].Value))
		case MapFlags:
			output = append(output, mapFlags(uint64(a.Value)))
		case EventFlags:
			output = append(output, flagsOrZero(EventFlagSet, a.Value))
		case RWFlags:
			if a.Value == sk.UseDescriptorFlags {
				output = append(output, "descriptor flags")
			} else {
				output = append(output, flagsOrZero(RWFlagSet, a.Value))
			}
		case CallFlags:
			output = append(output, callFlags(uint64(a.Value)))
		case FcntlCmd:
			output = append(output, FcntlCommands.Parse(uint64(a.Value)))
		case Whence:
			output = append(output, Whences.Parse(uint64(a.Value)))
		case FutexOp:
			output = append(output, FutexOps.Parse(uint64(a.Value)))
		case ClockID:
			output = append(output, ClockIDs.Parse(uint64(a.Value)))
		case ReadBuffer, PostPath, PostTimespec, Stat, Hex:
			// Output arguments are only formatted after the call.
			fallthrough
		default:
			output = append(output, fmt.Sprintf("%#x", a.Value))
		}
	}
	return output
}

// post fills in the output arguments of a syscall that has run.
func (i *SyscallInfo) post(t *kernel.Task, args arch.SyscallArguments, rval uintptr, err error, output []string, maximumBlobSize uint) {
	if err != nil {
		return
	}
	for arg := range output {
		if arg >= len(i.format) {
			break
		}
		a := args[arg]
		switch i.format[arg] {
		case ReadBuffer:
			output[arg] = dump(t, a.Pointer(), uint(rval), maximumBlobSize)
		case PostPath:
			output[arg] = path(t, a.Pointer(), rval)
		case PostTimespec:
			if a.Value != 0 {
				output[arg] = timespec(t, a.Pointer())
			}
		case Stat:
			output[arg] = stat(t, a.Pointer())
		case WriteBuffer:
			output[arg] = fmt.Sprintf("%#x", a.Value)
		}
	}
}

func fd(a arch.SyscallArgument) string {
	if a.Value == sk.NoFD {
		return "NoFD"
	}
	return fmt.Sprintf("%d", a.Value)
}

func flagsOrZero(s FlagSet, v uintptr) string {
	if f := s.Parse(uint64(v)); f != "" {
		return f
	}
	return "0"
}

// copyIn reads size bytes at addr from t's address space, ignoring
// application protections.
func copyIn(t *kernel.Task, addr hostarch.Addr, size uint) ([]byte, error) {
	b := make([]byte, size)
	n, err := t.MemoryManager().CopyIn(t, addr, b, usermem.IOOpts{IgnorePermissions: true})
	return b[:n], err
}

func dump(t *kernel.Task, addr hostarch.Addr, size uint, maximumBlobSize uint) string {
	origSize := size
	if size > maximumBlobSize {
		size = maximumBlobSize
	}
	if size == 0 {
		return fmt.Sprintf("%#x \"\"", uintptr(addr))
	}

	b, err := copyIn(t, addr, size)
	if err != nil {
		return fmt.Sprintf("%#x (error decoding string: %v)", uintptr(addr), err)
	}

	dot := ""
	if size < origSize {
		// ... if we truncated the dump.
		dot = "..."
	}
	return fmt.Sprintf("%#x %q%s", uintptr(addr), b, dot)
}

func path(t *kernel.Task, addr hostarch.Addr, length uintptr) string {
	if length > maxPathLen {
		return fmt.Sprintf("%#x (path too long: %d bytes)", uintptr(addr), length)
	}
	b, err := copyIn(t, addr, uint(length))
	if err != nil {
		return fmt.Sprintf("%#x (error decoding path: %v)", uintptr(addr), err)
	}
	return fmt.Sprintf("%#x %q", uintptr(addr), b)
}

// readObject decodes m from addr.
func readObject(t *kernel.Task, addr hostarch.Addr, m marshal.Marshallable) error {
	b, err := copyIn(t, addr, uint(m.SizeBytes()))
	if err != nil {
		return err
	}
	m.UnmarshalBytes(b)
	return nil
}

func timespec(t *kernel.Task, addr hostarch.Addr) string {
	if addr == 0 {
		return "null"
	}
	var ts sk.Timespec
	if err := readObject(t, addr, &ts); err != nil {
		return fmt.Sprintf("%#x (error decoding timespec: %v)", uintptr(addr), err)
	}
	return fmt.Sprintf("%#x {sec=%d nsec=%d}", uintptr(addr), ts.Sec, ts.Nsec)
}

func mapDesc(t *kernel.Task, addr hostarch.Addr, length uintptr) string {
	if length != sk.SizeOfMap {
		return fmt.Sprintf("%#x", uintptr(addr))
	}
	var m sk.Map
	if err := readObject(t, addr, &m); err != nil {
		return fmt.Sprintf("%#x (error decoding map: %v)", uintptr(addr), err)
	}
	return fmt.Sprintf("%#x {offset=%#x, size=%#x, flags=%s, uintptr(addr)ess=%#x}", addr, m.Offset, m.Size, mapFlags(uint64(m.Flags)), m.Address)
}

func stat(t *kernel.Task, addr hostarch.Addr) string {
	var s sk.Stat
	if err := readObject(t, addr, &s); err != nil {
		return fmt.Sprintf("%#x (error decoding stat: %v)", uintptr(addr), err)
	}
	return fmt.Sprintf("%#x {dev=%d, ino=%d, mode=%#o, nlink=%d, uid=%d, gid=%d, size=%d}", uintptr(addr), s.Dev, s.Ino, s.Mode, s.Nlink, s.UID, s.GID, s.Size)
}
