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

package metric

import (
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Prefix is prepended to every exported metric name.
const Prefix = "kestrel"

// promName converts a metric name such as "/syscalls/count" to the
// Prometheus name "kestrel_syscalls_count".
func promName(name string) string {
	return Prefix + strings.NewReplacer("/", "_", "-", "_").Replace(name)
}

// Families returns a snapshot of every registered metric. Only field
// combinations with a non-zero value are included.
func Families() []*dto.MetricFamily {
	var mfs []*dto.MetricFamily
	for _, r := range allMetrics.sorted() {
		mf := &dto.MetricFamily{
			Name: proto.String(promName(r.name)),
			Help: proto.String(r.description),
		}
		if r.cumulative {
			mf.Type = dto.MetricType_COUNTER.Enum()
		} else {
			mf.Type = dto.MetricType_GAUGE.Enum()
		}
		for key := 0; key < r.mapper.numFieldCombinations; key++ {
			values := r.mapper.keyToMultiField(key)
			v := r.value(values...)
			if v == 0 && len(values) > 0 {
				continue
			}
			m := &dto.Metric{}
			for i, f := range r.mapper.fields {
				m.Label = append(m.Label, &dto.LabelPair{
					Name:  proto.String(f.name),
					Value: proto.String(values[i]),
				})
			}
			if r.cumulative {
				m.Counter = &dto.Counter{Value: proto.Float64(float64(v))}
			} else {
				m.Gauge = &dto.Gauge{Value: proto.Float64(float64(v))}
			}
			mf.Metric = append(mf.Metric, m)
		}
		if len(mf.Metric) > 0 {
			mfs = append(mfs, mf)
		}
	}
	return mfs
}

// WritePrometheus writes every registered metric to w in the Prometheus text
// exposition format.
func WritePrometheus(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range Families() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Metadata describes one registered metric.
type Metadata struct {
	Name           string   `json:"name"`
	PrometheusName string   `json:"prometheus_name"`
	Description    string   `json:"description"`
	Cumulative     bool     `json:"cumulative"`
	Fields         []string `json:"fields,omitempty"`
}

// AllMetadata returns the metadata of every registered metric, ordered by
// name.
func AllMetadata() []Metadata {
	var mds []Metadata
	for _, r := range allMetrics.sorted() {
		md := Metadata{
			Name:           r.name,
			PrometheusName: promName(r.name),
			Description:    r.description,
			Cumulative:     r.cumulative,
		}
		for _, f := range r.mapper.fields {
			md.Fields = append(md.Fields, f.name)
		}
		mds = append(mds, md)
	}
	return mds
}
