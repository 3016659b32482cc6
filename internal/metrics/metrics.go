// Copyright 2026 Dominik Schlosser
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

// Package metrics holds the Prometheus counters of the holder and the reader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	holderSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdoc_holder_sessions_total",
			Help: "Total number of finished disclosure sessions, by outcome.",
		},
		[]string{"outcome"}, // success, cancelled, error
	)

	holderSignatures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mdoc_holder_signatures_total",
			Help: "Total number of device signatures produced.",
		},
	)

	verifierSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdoc_verifier_sessions_total",
			Help: "Total number of reader sessions, by result.",
		},
		[]string{"result"}, // disclosed, terminated, failed
	)
)

// IncHolderSession counts a terminated holder session.
func IncHolderSession(outcome string) {
	holderSessions.WithLabelValues(outcome).Inc()
}

// AddHolderSignatures counts device signatures.
func AddHolderSignatures(n int) {
	holderSignatures.Add(float64(n))
}

// IncVerifierSession counts a finished reader session.
func IncVerifierSession(result string) {
	verifierSessions.WithLabelValues(result).Inc()
}
