/*
 * Copyright (c) 2018. LuCongyao <6congyao@gmail.com> .
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this work except in compliance with the License.
 * You may obtain a copy of the License in the LICENSE file, or at:
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package admin exports the server metrics to prometheus.
package admin

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
)

var quantiles = []float64{0.5, 0.9, 0.99}

// Collector bridges a go-metrics registry to prometheus. Metrics are read
// at scrape time, the set may grow while serving so the collector is
// unchecked.
type Collector struct {
	namespace string
	registry  metrics.Registry
}

func NewCollector(namespace string, registry metrics.Registry) *Collector {
	return &Collector{
		namespace: namespace,
		registry:  registry,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Each(func(name string, i interface{}) {
		fqName := c.metricName(name)
		switch m := i.(type) {
		case metrics.Counter:
			ch <- prometheus.MustNewConstMetric(c.desc(fqName, name), prometheus.CounterValue, float64(m.Count()))
		case metrics.Gauge:
			ch <- prometheus.MustNewConstMetric(c.desc(fqName, name), prometheus.GaugeValue, float64(m.Value()))
		case metrics.GaugeFloat64:
			ch <- prometheus.MustNewConstMetric(c.desc(fqName, name), prometheus.GaugeValue, m.Value())
		case metrics.Meter:
			s := m.Snapshot()
			ch <- prometheus.MustNewConstMetric(c.desc(fqName+"_total", name), prometheus.CounterValue, float64(s.Count()))
			ch <- prometheus.MustNewConstMetric(c.desc(fqName+"_rate1m", name), prometheus.GaugeValue, s.Rate1())
		case metrics.Timer:
			s := m.Snapshot()
			ch <- prometheus.MustNewConstSummary(c.desc(fqName+"_seconds", name),
				uint64(s.Count()), float64(s.Sum())/1e9, summaryQuantiles(s.Percentiles(quantiles), 1e9))
		case metrics.Histogram:
			s := m.Snapshot()
			ch <- prometheus.MustNewConstSummary(c.desc(fqName, name),
				uint64(s.Count()), float64(s.Sum()), summaryQuantiles(s.Percentiles(quantiles), 1))
		}
	})
}

func (c *Collector) desc(fqName, name string) *prometheus.Desc {
	return prometheus.NewDesc(fqName, "kiln metric "+name, nil, nil)
}

// metricName maps "connections.active" to "<namespace>_connections_active"
func (c *Collector) metricName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
	if c.namespace == "" {
		return name
	}
	return c.namespace + "_" + name
}

func summaryQuantiles(values []float64, scale float64) map[float64]float64 {
	qs := make(map[float64]float64, len(quantiles))
	for i, q := range quantiles {
		qs[q] = values[i] / scale
	}
	return qs
}
