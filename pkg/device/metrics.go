// Copyright © 2019 NVIDIA Corporation
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

package device

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// Metrics holds the collectors shared by every instrumented transport.
type Metrics struct {
	inFlight *prometheus.GaugeVec
	commands *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the transport collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, prefix string) *Metrics {
	m := &Metrics{
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: prefix + "_in_flight_commands",
				Help: "A gauge of in-flight commands for the wrapped device.",
			},
			[]string{"device"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_commands_total",
				Help: "A counter for commands issued to the wrapped device.",
			},
			[]string{"device", "opcode", "status"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_transport_errors_total",
				Help: "A counter for exchanges that failed below the SCSI layer.",
			},
			[]string{"device", "opcode"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_command_duration_seconds",
				Help:    "A histogram of command latencies.",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 30, 120},
			},
			[]string{"device", "opcode"},
		),
	}

	reg.MustRegister(
		m.inFlight,
		m.commands,
		m.failures,
		m.latency,
	)
	return m
}

// Wrap instruments t, labelling its samples with name.
func (m *Metrics) Wrap(name string, t Transport) Transport {
	return &instrumented{Transport: t, name: name, m: m}
}

type instrumented struct {
	Transport
	name string
	m    *Metrics
}

func (t *instrumented) Execute(cdb []byte, dir scsi.Direction, data []byte) (*Result, error) {
	op := "none"
	if len(cdb) > 0 {
		op = fmt.Sprintf("%#02x", cdb[0])
	}

	g := t.m.inFlight.WithLabelValues(t.name)
	g.Inc()
	defer g.Dec()

	start := time.Now()
	res, err := t.Transport.Execute(cdb, dir, data)
	t.m.latency.WithLabelValues(t.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		t.m.failures.WithLabelValues(t.name, op).Inc()
		return nil, err
	}
	t.m.commands.WithLabelValues(t.name, op, fmt.Sprintf("%#02x", res.Status)).Inc()
	return res, nil
}
