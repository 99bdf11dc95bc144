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

// Package cmd holds implementations of the kboot commands.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/creack/pty"
	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"kestrel.dev/kestrel/kboot/boot"
	"kestrel.dev/kestrel/kboot/cmd/util"
	"kestrel.dev/kestrel/kboot/config"
	"kestrel.dev/kestrel/pkg/log"
)

// Boot implements subcommands.Command for the "boot" command, which starts
// the kernel and runs the shell on the serial console.
type Boot struct {
	script string
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot the kernel and run the shell"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - boot the kernel. The shell reads commands from the
serial console selected by --serial, or from --script.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.script, "script", "", "host file with shell commands to run instead of reading the console")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	bootArgs := boot.Args{Conf: conf}
	if b.script != "" {
		script, err := os.ReadFile(b.script)
		if err != nil {
			util.Fatalf("reading script: %v", err)
		}
		bootArgs.Script = script
	}

	switch conf.Serial {
	case config.SerialNone:
	case config.SerialStdio:
		bootArgs.SerialOut = os.Stdout
		if b.script == "" {
			bootArgs.SerialIn = os.Stdin
		}
		if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
			state, err := term.MakeRaw(fd)
			if err != nil {
				util.Fatalf("setting terminal to raw mode: %v", err)
			}
			defer term.Restore(fd, state)
			bootArgs.CRLF = true
		}
	case config.SerialPTY:
		ptm, pts, err := openPTY()
		if err != nil {
			util.Fatalf("%v", err)
		}
		defer pts.Close()
		// Closing the master ends the receive loop blocked reading it.
		defer ptm.Close()
		bootArgs.SerialIn = ptm
		bootArgs.SerialOut = ptm
		bootArgs.CRLF = true
		util.Infof("Serial console is %s", pts.Name())
	}

	if err := run(ctx, bootArgs); err != nil {
		util.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// openPTY allocates a pseudo-terminal for the serial console. The replica
// is put in raw mode so the kernel shell handles echo and line editing.
func openPTY() (ptm, pts *os.File, err error) {
	ptm, pts, err = pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("allocating pty: %w", err)
	}
	if _, err := term.MakeRaw(int(pts.Fd())); err != nil {
		ptm.Close()
		pts.Close()
		return nil, nil, fmt.Errorf("setting pty to raw mode: %w", err)
	}
	return ptm, pts, nil
}

// run boots a kernel configured by args and runs it until the shell exits
// or the process is interrupted.
func run(ctx context.Context, args boot.Args) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	l, err := boot.New(args)
	if err != nil {
		return fmt.Errorf("creating kernel: %w", err)
	}
	defer l.Destroy()

	log.Infof("Kernel started, %d CPUs", len(l.Kernel().CPUs()))
	if err := l.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running kernel: %w", err)
	}
	log.Infof("Kernel stopped")
	return nil
}

// Exec implements subcommands.Command for the "exec" command, which runs a
// shell script in a fresh kernel and prints its output.
type Exec struct{}

// Name implements subcommands.Command.Name.
func (*Exec) Name() string {
	return "exec"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Exec) Synopsis() string {
	return "run a shell script in a fresh kernel"
}

// Usage implements subcommands.Command.Usage.
func (*Exec) Usage() string {
	return `exec <script> - run the shell commands in script and print their
output. A script of "-" is read from stdin.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Exec) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Exec) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	var (
		script []byte
		err    error
	)
	if name := f.Arg(0); name == "-" {
		script, err = io.ReadAll(os.Stdin)
	} else {
		script, err = os.ReadFile(name)
	}
	if err != nil {
		util.Fatalf("reading script: %v", err)
	}
	if err := run(ctx, boot.Args{Conf: conf, SerialOut: os.Stdout, Script: script}); err != nil {
		util.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
