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
	"testing"

	"github.com/google/go-cmp/cmp"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
)

type nullScheme struct {
	Unsupported
}

func TestSplitPath(t *testing.T) {
	for _, tc := range []struct {
		path string
		name string
		rest string
	}{
		{"file:/a/b", "file", "/a/b"},
		{"pipe:", "pipe", ""},
		{"/a", DefaultScheme, "/a"},
		{"debug:log:x", "debug", "log:x"},
	} {
		name, rest := SplitPath(tc.path)
		if name != tc.name || rest != tc.rest {
			t.Errorf("SplitPath(%q) = (%q, %q), want (%q, %q)", tc.path, name, rest, tc.name, tc.rest)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.MustRegister("a", nullScheme{})
	b := r.MustRegister("b", nullScheme{})
	if a == b {
		t.Errorf("Register returned the same ID %d twice", a)
	}
	if _, err := r.Register("a", nullScheme{}); err == nil {
		t.Errorf("duplicate Register succeeded")
	}
	if _, err := r.Register("bad:name", nullScheme{}); err == nil {
		t.Errorf("Register with colon succeeded")
	}
	if _, _, err := r.Lookup("c"); err != kerr.ENODEV {
		t.Errorf("Lookup(c) = %v, want ENODEV", err)
	}
	if _, name, ok := r.Get(b); !ok || name != "b" {
		t.Errorf("Get(%d) = (%q, %t), want (b, true)", b, name, ok)
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestNamespacePerms(t *testing.T) {
	r := NewRegistry()
	id := r.MustRegister("file", nullScheme{})
	s, _, _ := r.Lookup("file")
	ns, err := NewNamespace([]Binding{{Name: "file", ID: id, Scheme: s, Perms: sk.NS_READ}})
	if err != nil {
		t.Fatalf("NewNamespace failed: %v", err)
	}
	if _, rest, err := ns.Resolve("file:/x", sk.O_RDONLY); err != nil || rest != "/x" {
		t.Errorf("Resolve read = (%q, %v), want (/x, nil)", rest, err)
	}
	for _, flags := range []uint32{sk.O_WRONLY, sk.O_RDWR, sk.O_RDONLY | sk.O_CREAT} {
		if _, _, err := ns.Resolve("file:/x", flags); err != kerr.EACCES {
			t.Errorf("Resolve(flags=%#x) = %v, want EACCES", flags, err)
		}
	}
	if _, _, err := ns.Resolve("pipe:", sk.O_RDONLY); err != kerr.ENOENT {
		t.Errorf("Resolve of unbound scheme = %v, want ENOENT", err)
	}
	if _, err := NewNamespace([]Binding{{Name: "file", Perms: 0x10}}); err != kerr.EINVAL {
		t.Errorf("NewNamespace with unknown perms = %v, want EINVAL", err)
	}

	root := NewRootNamespace(r)
	if _, _, err := root.Resolve("/y", sk.O_RDWR); err != nil {
		t.Errorf("root Resolve of default scheme = %v, want nil", err)
	}
}

func TestAppendDirent(t *testing.T) {
	buf := make([]byte, 64)
	n, ok := AppendDirent(buf, 7, 2, sk.DT_REG, "hello")
	if !ok || n != sk.DirentHeaderSize+6 {
		t.Fatalf("AppendDirent = (%d, %t), want (%d, true)", n, ok, sk.DirentHeaderSize+6)
	}
	var hdr sk.DirentHeader
	rest := hdr.UnmarshalBytes(buf)
	want := sk.DirentHeader{Inode: 7, NextOpaqueID: 2, RecordLen: uint16(n), Kind: sk.DT_REG}
	if diff := cmp.Diff(want, hdr); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if got := string(rest[:5]); got != "hello" || rest[5] != 0 {
		t.Errorf("name = %q (terminator %d), want \"hello\" (0)", got, rest[5])
	}
	if _, ok := AppendDirent(buf[:10], 1, 1, sk.DT_REG, "x"); ok {
		t.Errorf("AppendDirent into short buffer succeeded")
	}
}
