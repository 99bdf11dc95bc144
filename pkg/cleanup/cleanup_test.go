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

package cleanup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCleanOrder(t *testing.T) {
	var order []string
	cu := Make(func() { order = append(order, "first") })
	cu.Add(func() { order = append(order, "second") })
	cu.Clean()
	if diff := cmp.Diff([]string{"second", "first"}, order); diff != "" {
		t.Errorf("cleanup order mismatch (-want +got):\n%s", diff)
	}

	cu.Clean()
	if len(order) != 2 {
		t.Errorf("second Clean ran functions again: %v", order)
	}
}

func TestRelease(t *testing.T) {
	ran := 0
	cu := Make(func() { ran++ })
	cu.Add(func() { ran++ })
	undo := cu.Release()
	cu.Clean()
	if ran != 0 {
		t.Fatalf("Clean after Release ran %d functions, want 0", ran)
	}
	undo()
	if ran != 2 {
		t.Errorf("released function ran %d cleanups, want 2", ran)
	}
}
