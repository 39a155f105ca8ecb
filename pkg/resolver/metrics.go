// Copyright 2025 MRCIS Authors
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
//
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsResolver struct {
	once sync.Once

	resolved   prometheus.Counter
	crossRepo  prometheus.Counter
	unresolved prometheus.Counter
}

var resMetrics metricsResolver

func (m *metricsResolver) init() {
	m.once.Do(func() {
		m.resolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_resolver_resolved_total", Help: "References resolved to edges"})
		m.crossRepo = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_resolver_cross_repository_total", Help: "Cross-repository edges created"})
		m.unresolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_resolver_unresolved_attempts_total", Help: "Resolution attempts without a candidate"})
		prometheus.MustRegister(m.resolved, m.crossRepo, m.unresolved)
	})
}

func recordResolved(crossRepo bool) {
	resMetrics.init()
	resMetrics.resolved.Inc()
	if crossRepo {
		resMetrics.crossRepo.Inc()
	}
}

func recordUnresolvedAttempt() {
	resMetrics.init()
	resMetrics.unresolved.Inc()
}
