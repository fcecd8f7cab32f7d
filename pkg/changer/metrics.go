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

package changer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts sense classifications, retries and moves. A nil
// *Metrics records nothing.
type Metrics struct {
	classified *prometheus.CounterVec
	retries    *prometheus.CounterVec
	exhaust    *prometheus.CounterVec
	moves      *prometheus.CounterVec
	refreshes  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer, prefix string) *Metrics {
	m := &Metrics{
		classified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_sense_classified_total",
				Help: "A counter of sense data by classified outcome.",
			},
			[]string{"device", "mode", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_command_retries_total",
				Help: "A counter of commands reissued after a retryable condition.",
			},
			[]string{"device"},
		),
		exhaust: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_retries_exhausted_total",
				Help: "A counter of commands aborted after running out of retries.",
			},
			[]string{"device"},
		),
		moves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_moves_total",
				Help: "A counter of medium moves by result.",
			},
			[]string{"result"},
		),
		refreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_inventory_refreshes_total",
				Help: "A counter of element status refreshes.",
			},
		),
	}

	reg.MustRegister(
		m.classified,
		m.retries,
		m.exhaust,
		m.moves,
		m.refreshes,
	)
	return m
}

func (m *Metrics) classify(dev string, mode SenseMode, o Outcome) {
	if m == nil {
		return
	}
	label := "command"
	if mode == ElementSense {
		label = "element"
	}
	m.classified.WithLabelValues(dev, label, o.String()).Inc()
}

func (m *Metrics) retried(dev string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(dev).Inc()
}

func (m *Metrics) exhausted(dev string) {
	if m == nil {
		return
	}
	m.exhaust.WithLabelValues(dev).Inc()
}

func (m *Metrics) moved(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.moves.WithLabelValues(result).Inc()
}

func (m *Metrics) refreshed() {
	if m == nil {
		return
	}
	m.refreshes.Inc()
}
