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

	"kestrel.dev/kestrel/pkg/abi/sk"
)

// OpenMode represents the access mode of an open.
var OpenMode = ValueSet{
	sk.O_RDWR:   "O_RDWR",
	sk.O_WRONLY: "O_WRONLY",
	sk.O_RDONLY: "O_RDONLY",
}

// OpenFlagSet is the set of open flags.
var OpenFlagSet = FlagSet{
	{
		Flag: sk.O_APPEND,
		Name: "O_APPEND",
	},
	{
		Flag: sk.O_CLOEXEC,
		Name: "O_CLOEXEC",
	},
	{
		Flag: sk.O_CREAT,
		Name: "O_CREAT",
	},
	{
		Flag: sk.O_DIRECTORY,
		Name: "O_DIRECTORY",
	},
	{
		Flag: sk.O_EXCL,
		Name: "O_EXCL",
	},
	{
		Flag: sk.O_FSYNC,
		Name: "O_FSYNC",
	},
	{
		Flag: sk.O_NONBLOCK,
		Name: "O_NONBLOCK",
	},
	{
		Flag: sk.O_STAT,
		Name: "O_STAT",
	},
	{
		Flag: sk.O_TRUNC,
		Name: "O_TRUNC",
	},
}

func open(val uint64) string {
	s := OpenMode.Parse(val & sk.O_ACCMODE)
	if flags := OpenFlagSet.Parse(val &^ (sk.O_ACCMODE | sk.O_MODE)); flags != "" {
		s += "|" + flags
	}
	if mode := val & sk.O_MODE; mode != 0 {
		s += fmt.Sprintf(" %#o", mode)
	}
	return s
}
