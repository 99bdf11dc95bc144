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

package scheme

import (
	"strings"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
)

// DefaultScheme is used for paths that do not name a scheme.
const DefaultScheme = "file"

// SplitPath splits "name:rest" into its scheme name and the path within the
// scheme. Paths without a colon belong to DefaultScheme.
func SplitPath(path string) (name, rest string) {
	name, rest, ok := strings.Cut(path, ":")
	if !ok {
		return DefaultScheme, path
	}
	return name, rest
}

// Perms are namespace permission bits (sk.NS_READ, sk.NS_WRITE).
type Perms uint32

// Allows returns true if p permits opening with the given open flags.
func (p Perms) Allows(flags uint32) bool {
	switch flags & sk.O_ACCMODE {
	case sk.O_WRONLY:
		return p&sk.NS_WRITE != 0
	case sk.O_RDWR:
		return p&sk.NS_ALL == sk.NS_ALL
	default:
		// O_RDONLY, and O_STAT with no access mode.
		if flags&(sk.O_CREAT|sk.O_TRUNC) != 0 && p&sk.NS_WRITE == 0 {
			return false
		}
		return p&sk.NS_READ != 0
	}
}

// Binding is a scheme visible in a Namespace.
type Binding struct {
	Name   string
	ID     ID
	Scheme Scheme
	Perms  Perms
}

// Namespace is the set of schemes a process can reach by name. Namespaces
// are immutable once built. A Namespace is also a Scheme, so that mkns can
// hand it out as a handle; operations on such a handle other than openat
// are unsupported.
type Namespace struct {
	Unsupported

	bindings map[string]Binding
}

// NewRootNamespace returns a namespace containing every scheme in r with
// full permissions.
func NewRootNamespace(r *Registry) *Namespace {
	ns := &Namespace{bindings: make(map[string]Binding)}
	for _, name := range r.Names() {
		s, id, err := r.Lookup(name)
		if err != nil {
			continue
		}
		ns.bindings[name] = Binding{Name: name, ID: id, Scheme: s, Perms: sk.NS_ALL}
	}
	return ns
}

// NewNamespace returns a namespace containing exactly bs. Permission bits
// outside sk.NS_ALL are rejected with EINVAL.
func NewNamespace(bs []Binding) (*Namespace, error) {
	ns := &Namespace{bindings: make(map[string]Binding, len(bs))}
	for _, b := range bs {
		if b.Perms&^sk.NS_ALL != 0 {
			return nil, kerr.EINVAL
		}
		if prev, ok := ns.bindings[b.Name]; ok {
			b.Perms |= prev.Perms
		}
		ns.bindings[b.Name] = b
	}
	return ns, nil
}

// Resolve looks up the scheme for path and checks that flags are permitted.
// It returns the binding and the path within the scheme.
func (ns *Namespace) Resolve(path string, flags uint32) (Binding, string, error) {
	name, rest := SplitPath(path)
	b, ok := ns.bindings[name]
	if !ok {
		return Binding{}, "", kerr.ENOENT
	}
	if !b.Perms.Allows(flags) {
		return Binding{}, "", kerr.EACCES
	}
	return b, rest, nil
}

// Lookup returns the binding for name.
func (ns *Namespace) Lookup(name string) (Binding, bool) {
	b, ok := ns.bindings[name]
	return b, ok
}

// Len returns the number of bindings.
func (ns *Namespace) Len() int {
	return len(ns.bindings)
}
