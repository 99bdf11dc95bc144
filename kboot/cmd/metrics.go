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
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/google/subcommands"
	"kestrel.dev/kestrel/kboot/cmd/util"
	"kestrel.dev/kestrel/pkg/metric"
)

// MetricMetadata implements subcommands.Command for the "metric-metadata"
// command.
type MetricMetadata struct{}

// Name implements subcommands.Command.Name.
func (*MetricMetadata) Name() string {
	return "metric-metadata"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*MetricMetadata) Synopsis() string {
	return "print the metrics exported by the kernel"
}

// Usage implements subcommands.Command.Usage.
func (*MetricMetadata) Usage() string {
	return `metric-metadata - print the name, description and fields of every
kernel metric as JSON. Values are written to --metrics-file on shutdown.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*MetricMetadata) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*MetricMetadata) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	e := json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	if err := e.Encode(metric.AllMetadata()); err != nil {
		util.Fatalf("writing metadata: %v", err)
	}
	return subcommands.ExitSuccess
}
