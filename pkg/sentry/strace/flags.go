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

package strace

import (
	"fmt"
	"strings"

	"kestrel.dev/kestrel/pkg/abi/sk"
)

// A FlagSet is a slice of bit-flags and their name.
type FlagSet []struct {
	Flag uint64
	Name string
}

// Parse returns a pretty version of val, using the flag names for known
// flags. Unknown flags remain numeric.
func (s FlagSet) Parse(val uint64) string {
	var flags []string
	for _, f := range s {
		if val&f.Flag == f.Flag {
			flags = append(flags, f.Name)
			val &^= f.Flag
		}
	}
	if val != 0 {
		flags = append(flags, fmt.Sprintf("%#x", val))
	}
	return strings.Join(flags, "|")
}

// ValueSet is a map of syscall values to their name. Parse will use the name
// or the value if unknown.
type ValueSet map[uint64]string

// Parse returns the name of the value associated with `val`. Unknown values
// are converted to hex.
func (s ValueSet) Parse(val uint64) string {
	if v, ok := s[val]; ok {
		return v
	}
	return fmt.Sprintf("%#x", val)
}

// MapProtFlagSet are the protection bits of MapFlags.
var MapProtFlagSet = FlagSet{
	{Flag: uint64(sk.PROT_READ), Name: "PROT_READ"},
	{Flag: uint64(sk.PROT_WRITE), Name: "PROT_WRITE"},
	{Flag: uint64(sk.PROT_EXEC), Name: "PROT_EXEC"},
}

// MapFlagSet are the sharing and placement bits of MapFlags. The
// NOREPLACE form must be matched before MAP_FIXED, whose bit it contains.
var MapFlagSet = FlagSet{
	{Flag: uint64(sk.MAP_SHARED), Name: "MAP_SHARED"},
	{Flag: uint64(sk.MAP_PRIVATE), Name: "MAP_PRIVATE"},
	{Flag: uint64(sk.MAP_FIXED_NOREPLACE), Name: "MAP_FIXED_NOREPLACE"},
	{Flag: uint64(sk.MAP_FIXED), Name: "MAP_FIXED"},
}

func mapFlags(val uint64) string {
	s := MapProtFlagSet.Parse(val & uint64(sk.PROT_ALL))
	if rest := MapFlagSet.Parse(val &^ uint64(sk.PROT_ALL)); rest != "" {
		if s != "" {
			s += "|"
		}
		s += rest
	}
	if s == "" {
		return "PROT_NONE"
	}
	return s
}

// EventFlagSet are fevent flags.
var EventFlagSet = FlagSet{
	{Flag: uint64(sk.EVENT_READ), Name: "EVENT_READ"},
	{Flag: uint64(sk.EVENT_WRITE), Name: "EVENT_WRITE"},
}

// RWFlagSet are read2 and write2 flags.
var RWFlagSet = FlagSet{
	{Flag: uint64(sk.RWF_NONBLOCK), Name: "RWF_NONBLOCK"},
	{Flag: uint64(sk.RWF_APPEND), Name: "RWF_APPEND"},
	{Flag: uint64(sk.RWF_UNCACHED), Name: "RWF_UNCACHED"},
}

// CallFlagSet are call flags.
var CallFlagSet = FlagSet{
	{Flag: uint64(sk.CALL_WRITE), Name: "CALL_WRITE"},
	{Flag: uint64(sk.CALL_READ), Name: "CALL_READ"},
	{Flag: uint64(sk.CALL_FD), Name: "CALL_FD"},
}

func callFlags(val uint64) string {
	s := CallFlagSet.Parse(val &^ sk.CallCountMask)
	if s == "" {
		s = "0"
	}
	return fmt.Sprintf("%s count=%d", s, val&sk.CallCountMask)
}

// FcntlCommands are fcntl commands.
var FcntlCommands = ValueSet{
	sk.F_DUPFD:         "F_DUPFD",
	sk.F_GETFD:         "F_GETFD",
	sk.F_SETFD:         "F_SETFD",
	sk.F_GETFL:         "F_GETFL",
	sk.F_SETFL:         "F_SETFL",
	sk.F_DUPFD_CLOEXEC: "F_DUPFD_CLOEXEC",
}

// Whences are lseek whence values.
var Whences = ValueSet{
	sk.SEEK_SET: "SEEK_SET",
	sk.SEEK_CUR: "SEEK_CUR",
	sk.SEEK_END: "SEEK_END",
}

// FutexOps are futex operations.
var FutexOps = ValueSet{
	sk.FUTEX_WAIT:    "FUTEX_WAIT",
	sk.FUTEX_WAKE:    "FUTEX_WAKE",
	sk.FUTEX_REQUEUE: "FUTEX_REQUEUE",
}

// ClockIDs are clock identifiers.
var ClockIDs = ValueSet{
	sk.CLOCK_REALTIME:  "CLOCK_REALTIME",
	sk.CLOCK_MONOTONIC: "CLOCK_MONOTONIC",
}
