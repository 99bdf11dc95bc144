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

// Package ksh is the built-in kernel shell. It runs as an ordinary task and
// reaches the kernel only through syscalls, so every command it runs
// exercises the syscall table.
package ksh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"kestrel.dev/kestrel/pkg/log"
	"kestrel.dev/kestrel/pkg/skcall"
)

// ErrExit is returned by Exec for the exit command.
var ErrExit = errors.New("exit")

// maxLine bounds an input line. Longer lines are discarded.
const maxLine = 4096

// Options configures a Shell.
type Options struct {
	// In and Out are descriptors in the shell task's table.
	In  uintptr
	Out uintptr

	// Prompt is printed before each line is read. Empty for scripts.
	Prompt string

	// Echo writes input back to Out as it is read, for terminals in raw
	// mode.
	Echo bool

	// SetStrace enables or disables syscall tracing. If nil, the strace
	// command is unavailable.
	SetStrace func(enabled bool)
}

// Shell reads commands from a descriptor and runs them.
type Shell struct {
	c    *skcall.Caller
	opts Options

	// pending holds input read past the end of the current line.
	pending []byte
	eof     bool
}

// New returns a Shell issuing syscalls through c.
func New(c *skcall.Caller, opts Options) *Shell {
	return &Shell{c: c, opts: opts}
}

// Printf formats to the shell's output.
func (s *Shell) Printf(format string, v ...any) {
	if _, err := s.c.WriteString(s.opts.Out, fmt.Sprintf(format, v...)); err != nil {
		log.Warningf("ksh: output failed: %v", err)
	}
}

// Run runs commands until input ends or exit is run. Command failures are
// reported on the output and do not stop the shell; an input error does.
func (s *Shell) Run() error {
	for {
		if s.opts.Prompt != "" {
			s.Printf("%s", s.opts.Prompt)
		}
		line, err := s.readLine()
		if err == io.EOF {
			if line == "" {
				return nil
			}
		} else if err != nil {
			return err
		}
		switch err := s.Exec(line); {
		case err == ErrExit:
			return nil
		case err != nil:
			s.Printf("ksh: %v\n", err)
		}
		if s.eof && len(s.pending) == 0 {
			return nil
		}
	}
}

// readLine returns the next line without its terminator.
func (s *Shell) readLine() (string, error) {
	buf := make([]byte, 256)
	for {
		if i := bytes.IndexAny(s.pending, "\r\n"); i >= 0 {
			line := string(s.pending[:i])
			s.pending = s.pending[i+1:]
			return line, nil
		}
		if s.eof {
			line := string(s.pending)
			s.pending = nil
			return line, io.EOF
		}
		n, err := s.c.Read(s.opts.In, buf)
		if err != nil {
			return "", err
		}
		if n == 0 {
			s.eof = true
			continue
		}
		s.input(buf[:n])
		if len(s.pending) > maxLine {
			s.Printf("\nksh: line too long\n")
			s.pending = s.pending[:0]
		}
	}
}

// input appends raw input to pending, applying backspace and echo.
func (s *Shell) input(b []byte) {
	var echo []byte
	for _, ch := range b {
		switch ch {
		case 0x7f, '\b':
			if n := len(s.pending); n > 0 && s.pending[n-1] != '\n' {
				s.pending = s.pending[:n-1]
				echo = append(echo, "\b \b"...)
			}
		case '\r':
			s.pending = append(s.pending, '\n')
			echo = append(echo, '\n')
		default:
			s.pending = append(s.pending, ch)
			echo = append(echo, ch)
		}
	}
	if s.opts.Echo && len(echo) > 0 {
		s.c.Write(s.opts.Out, echo)
	}
}

// command is a shell builtin.
type command struct {
	usage string
	fn    func(s *Shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"append": {"append PATH TEXT...", appendCmd},
		"cat":    {"cat PATH...", cat},
		"date":   {"date", date},
		"dmesg":  {"dmesg", dmesg},
		"echo":   {"echo TEXT...", echo},
		"exit":   {"exit", func(*Shell, []string) error { return ErrExit }},
		"help":   {"help", help},
		"ln":     {"ln OLD NEW", ln},
		"ls":     {"ls [DIR]", ls},
		"mem":    {"mem", mem},
		"mkdir":  {"mkdir DIR", mkdir},
		"mv":     {"mv OLD NEW", mv},
		"rm":     {"rm PATH...", rm},
		"rmdir":  {"rmdir DIR...", rmdir},
		"sleep":  {"sleep DURATION", sleep},
		"stat":   {"stat PATH", stat},
		"strace": {"strace on|off", straceCmd},
		"uptime": {"uptime", uptime},
		"write":  {"write PATH TEXT...", write},
	}
}

// Exec runs one command line. Blank lines and lines starting with '#' are
// ignored.
func (s *Shell) Exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%s: command not found", args[0])
	}
	if err := cmd.fn(s, args[1:]); err != nil {
		if err == ErrExit {
			return err
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

func help(s *Shell, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.Printf("%s\n", commands[name].usage)
	}
	return nil
}

func echo(s *Shell, args []string) error {
	s.Printf("%s\n", strings.Join(args, " "))
	return nil
}
