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

package ilist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type node struct {
	Entry[*node]
	v int
}

func values(l *List[*node]) []int {
	var vs []int
	for e := l.Front(); e != nil; e = e.Next() {
		vs = append(vs, e.v)
	}
	return vs
}

func TestPushRemove(t *testing.T) {
	var l List[*node]
	if !l.Empty() {
		t.Fatalf("new list is not empty")
	}
	a, b, c := &node{v: 1}, &node{v: 2}, &node{v: 3}
	l.PushBack(b)
	l.PushBack(c)
	l.PushFront(a)
	if diff := cmp.Diff([]int{1, 2, 3}, values(&l)); diff != "" {
		t.Errorf("after push (-want +got):\n%s", diff)
	}
	l.Remove(b)
	if diff := cmp.Diff([]int{1, 3}, values(&l)); diff != "" {
		t.Errorf("after Remove(b) (-want +got):\n%s", diff)
	}
	l.Remove(a)
	l.Remove(c)
	if !l.Empty() || l.Len() != 0 {
		t.Errorf("list not empty after removing everything")
	}
}
