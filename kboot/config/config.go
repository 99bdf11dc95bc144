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

// Package config provides basic infrastructure to set configuration settings
// for kboot. Each setting that can be changed from the command line must be
// added to Config, with a `flag` tag naming the flag and a `toml` tag naming
// the key used in configuration files.
package config

import (
	"fmt"
	"strings"

	"github.com/mohae/deepcopy"
	"kestrel.dev/kestrel/pkg/log"
)

// Config holds configuration that is not part of the kernel's ABI.
type Config struct {
	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// DebugLog is the path to log debug information to, if not empty. It
	// may contain %TIMESTAMP% and %COMMAND%.
	DebugLog string `flag:"debug-log" toml:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format" toml:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr"`

	// Strace indicates that strace should be enabled.
	Strace bool `flag:"strace" toml:"strace"`

	// StraceSyscalls is the set of syscalls to trace (comma-separated
	// values). If Strace is true and this string is empty, then all
	// syscalls will be traced.
	StraceSyscalls string `flag:"strace-syscalls" toml:"strace-syscalls"`

	// StraceLogSize is the max size of data blobs to display.
	StraceLogSize uint `flag:"strace-log-size" toml:"strace-log-size"`

	// StraceRaw logs raw syscall registers and return words instead of
	// decoded arguments.
	StraceRaw bool `flag:"strace-raw" toml:"strace-raw"`

	// NumCPUs is the number of kernel CPUs. Zero uses the host CPU count.
	NumCPUs int `flag:"num-cpus" toml:"num-cpus"`

	// Serial selects the backend of the serial port.
	Serial SerialBackend `flag:"serial" toml:"serial"`

	// ConsoleWidth and ConsoleHeight are the pixel size of the graphical
	// debug console. Zero disables the console.
	ConsoleWidth  int `flag:"console-width" toml:"console-width"`
	ConsoleHeight int `flag:"console-height" toml:"console-height"`

	// KlogSize is the capacity of the persistent kernel log in bytes.
	KlogSize int `flag:"klog-size" toml:"klog-size"`

	// KlogMirror is a host file that receives a copy of the persistent
	// log. It is locked while the kernel runs.
	KlogMirror string `flag:"klog-mirror" toml:"klog-mirror"`

	// FileLimit is the descriptor limit of each task. Zero uses the
	// kernel default.
	FileLimit int `flag:"file-limit" toml:"file-limit"`

	// RamfsSize bounds the contents of file:. Zero uses the scheme default.
	RamfsSize uint64 `flag:"ramfs-size" toml:"ramfs-size"`

	// PipeSize is the capacity of each pipe. Zero uses the scheme default.
	PipeSize int `flag:"pipe-size" toml:"pipe-size"`

	// MetricsFile is a host file that receives a Prometheus text export of
	// the kernel metrics on shutdown.
	MetricsFile string `flag:"metrics-file" toml:"metrics-file"`

	// AllowFlagOverride allows every flag to be changed by Override.
	AllowFlagOverride bool `flag:"allow-flag-override" toml:"allow-flag-override"`
}

func (c *Config) validate() error {
	for _, format := range []string{c.LogFormat, c.DebugLogFormat} {
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", format)
		}
	}
	if c.NumCPUs < 0 {
		return fmt.Errorf("num-cpus must be non-negative: %d", c.NumCPUs)
	}
	if c.FileLimit < 0 || c.FileLimit > 1<<30 {
		return fmt.Errorf("file-limit out of range: %d", c.FileLimit)
	}
	if c.ConsoleWidth < 0 || c.ConsoleHeight < 0 {
		return fmt.Errorf("console size must be non-negative: %dx%d", c.ConsoleWidth, c.ConsoleHeight)
	}
	if c.KlogSize <= 0 {
		return fmt.Errorf("klog-size must be positive: %d", c.KlogSize)
	}
	if c.PipeSize < 0 {
		return fmt.Errorf("pipe-size must be non-negative: %d", c.PipeSize)
	}
	if c.KlogMirror != "" && c.KlogMirror == c.MetricsFile {
		return fmt.Errorf("klog-mirror and metrics-file must differ: %q", c.KlogMirror)
	}
	return nil
}

// StraceSyscallList returns the list of traced syscalls, or nil to trace
// every syscall.
func (c *Config) StraceSyscallList() []string {
	if c.StraceSyscalls == "" {
		return nil
	}
	return strings.Split(c.StraceSyscalls, ",")
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config.Debug: %t", c.Debug)
	log.Infof("Config.Strace: %t, syscalls: %s, log size: %d, raw: %t", c.Strace, c.StraceSyscalls, c.StraceLogSize, c.StraceRaw)
	log.Infof("Config.NumCPUs: %d", c.NumCPUs)
	log.Infof("Config.Serial: %v", c.Serial)
	log.Infof("Config.Console: %dx%d", c.ConsoleWidth, c.ConsoleHeight)
	log.Infof("Config.Klog: %d bytes, mirror: %q", c.KlogSize, c.KlogMirror)
	log.Infof("Config.FileLimit: %d", c.FileLimit)
}

// Copy creates a deep copy of the config.
func (c *Config) Copy() *Config {
	return deepcopy.Copy(c).(*Config)
}

// SerialBackend selects what backs the serial port.
type SerialBackend int

const (
	// SerialNone discards serial output and receives nothing.
	SerialNone SerialBackend = iota

	// SerialStdio connects the port to the host terminal in raw mode.
	SerialStdio

	// SerialPTY connects the port to a new pseudo-terminal.
	SerialPTY
)

func serialBackendPtr(b SerialBackend) *SerialBackend {
	return &b
}

// Set implements flag.Value.
func (b *SerialBackend) Set(v string) error {
	switch v {
	case "none":
		*b = SerialNone
	case "stdio":
		*b = SerialStdio
	case "pty":
		*b = SerialPTY
	default:
		return fmt.Errorf("invalid serial backend %q, must be none, stdio or pty", v)
	}
	return nil
}

// Get implements flag.Getter.
func (b *SerialBackend) Get() any {
	return *b
}

// String implements flag.Value.
func (b SerialBackend) String() string {
	switch b {
	case SerialNone:
		return "none"
	case SerialStdio:
		return "stdio"
	case SerialPTY:
		return "pty"
	}
	panic(fmt.Sprintf("Invalid serial backend %d", b))
}

// UnmarshalText implements encoding.TextUnmarshaler, for config files.
func (b *SerialBackend) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (b SerialBackend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
