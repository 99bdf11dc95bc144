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
	"fmt"
	"sort"
	"strings"
	"sync"

	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/log"
)

// Registry holds every scheme known to the kernel.
type Registry struct {
	mu sync.RWMutex

	// byName and byID are protected by mu.
	byName map[string]ID
	byID   []entry
}

type entry struct {
	name   string
	scheme Scheme
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]ID)}
}

// ValidName returns true if name can be used as a scheme name.
func ValidName(name string) bool {
	return name != "" && !strings.ContainsAny(name, ":/\x00")
}

// Register adds s under name and returns its ID.
func (r *Registry) Register(name string, s Scheme) (ID, error) {
	if !ValidName(name) {
		return 0, fmt.Errorf("invalid scheme name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return 0, fmt.Errorf("scheme %q already registered", name)
	}
	id := ID(len(r.byID))
	r.byID = append(r.byID, entry{name: name, scheme: s})
	r.byName[name] = id
	log.Debugf("Registered scheme %q as %d", name, id)
	return id, nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(name string, s Scheme) ID {
	id, err := r.Register(name, s)
	if err != nil {
		panic(err)
	}
	return id
}

// Lookup returns the scheme registered under name.
func (r *Registry) Lookup(name string) (Scheme, ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, 0, kerr.ENODEV
	}
	return r.byID[id].scheme, id, nil
}

// Get returns the scheme with the given ID.
func (r *Registry) Get(id ID) (Scheme, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) {
		return nil, "", false
	}
	e := r.byID[id]
	return e.scheme, e.name, true
}

// Names returns the registered scheme names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
