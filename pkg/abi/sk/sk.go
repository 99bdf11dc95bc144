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

// Package sk contains the constants and types of the kernel's system call
// ABI: syscall numbers, flag words and the fixed-layout structures that cross
// the user/kernel boundary.
//
// Every structure is little endian and packed; each one carries hand-written
// marshal.Marshallable methods.
package sk

// NoFD is the "no handle" sentinel. It is accepted in place of a file handle
// by operations that can act without one, such as anonymous fmap.
const NoFD = ^uintptr(0)

// UseDescriptorFlags is the read2/write2 flags word that keeps the
// descriptor's own flags instead of overriding them for the call.
const UseDescriptorFlags = ^uintptr(0)
