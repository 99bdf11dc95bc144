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

package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompatibilityInfo(t *testing.T) {
	info, err := getCompatibilityInfo("sk")
	if err != nil {
		t.Fatalf("getCompatibilityInfo(sk): %v", err)
	}
	sk, ok := info["sk"]
	if !ok || len(info) != 1 {
		t.Fatalf("getCompatibilityInfo(sk) = %v, want only sk", info)
	}
	var open, fmap *SyscallDoc
	for _, sc := range sk.Syscalls {
		sc := sc
		switch sc.Name {
		case "open":
			open = &sc
		case "fmap":
			fmap = &sc
		}
	}
	if open == nil || open.Support != "Full Support" {
		t.Errorf("open doc = %+v, want Full Support", open)
	}
	if fmap == nil || fmap.Support != "Partial Support" || fmap.Note == "" {
		t.Errorf("fmap doc = %+v, want Partial Support with a note", fmap)
	}

	if _, err := getCompatibilityInfo("nonexistent"); err == nil {
		t.Errorf("getCompatibilityInfo(nonexistent) succeeded, want error")
	}
	all, err := getCompatibilityInfo(tableAll)
	if err != nil {
		t.Fatalf("getCompatibilityInfo(all): %v", err)
	}
	if _, ok := all["sk"]; !ok {
		t.Errorf("getCompatibilityInfo(all) = %v, missing sk", all)
	}
}

func TestOutputs(t *testing.T) {
	info := CompatibilityInfo{
		"test": TableInfo{
			Version: 2,
			Syscalls: map[uintptr]SyscallDoc{
				7: {Name: "b", num: 7, Support: "Partial Support", Note: "note"},
				3: {Name: "a", num: 3, Support: "Full Support"},
			},
		},
	}

	var buf bytes.Buffer
	if err := outputTable(&buf, info); err != nil {
		t.Fatalf("outputTable: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 || lines[0] != "test (version 2):" {
		t.Fatalf("outputTable wrote:\n%s", buf.String())
	}
	for i, prefix := range []string{"NUM", "3 ", "7 "} {
		if !strings.HasPrefix(lines[i+2], prefix) {
			t.Errorf("table line %d = %q, want prefix %q", i+2, lines[i+2], prefix)
		}
	}

	buf.Reset()
	if err := outputCSV(&buf, info); err != nil {
		t.Fatalf("outputCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing CSV: %v", err)
	}
	want := [][]string{
		{"Table", "Num", "Name", "Support", "Note"},
		{"test", "3", "a", "Full Support", ""},
		{"test", "7", "b", "Partial Support", "note"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := outputJSON(&buf, info); err != nil {
		t.Fatalf("outputJSON: %v", err)
	}
	var got map[string]struct {
		Version  uint32
		Syscalls map[string]struct{ Name, Support, Note string }
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("parsing JSON: %v", err)
	}
	if sc := got["test"].Syscalls["7"]; got["test"].Version != 2 || sc.Name != "b" || sc.Note != "note" {
		t.Errorf("JSON = %+v", got)
	}
}
