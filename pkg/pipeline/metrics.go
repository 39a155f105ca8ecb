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

package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsPipeline holds Prometheus metrics for the indexing pipeline.
type metricsPipeline struct {
	once sync.Once

	filesIndexed  prometheus.Counter
	filesFailed   prometheus.Counter
	filesSkipped  prometheus.Counter
	filesDeleted  prometheus.Counter
	entitiesAdded prometheus.Counter
	pendingAdded  prometheus.Counter

	extractDuration prometheus.Histogram
	embedDuration   prometheus.Histogram
	persistDuration prometheus.Histogram
}

var pipeMetrics metricsPipeline

func (m *metricsPipeline) init() {
	m.once.Do(func() {
		m.filesIndexed = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_pipeline_files_indexed_total", Help: "Files indexed successfully"})
		m.filesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_pipeline_files_failed_total", Help: "File indexing failures"})
		m.filesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_pipeline_files_skipped_total", Help: "Files skipped as unchanged"})
		m.filesDeleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_pipeline_files_deleted_total", Help: "Files removed from the index"})
		m.entitiesAdded = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_pipeline_entities_total", Help: "Entities persisted"})
		m.pendingAdded = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_pipeline_pending_references_total", Help: "Pending references recorded"})

		m.extractDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "mrcis_pipeline_extract_seconds", Help: "Extraction duration per file", Buckets: prometheus.DefBuckets})
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "mrcis_pipeline_embed_seconds", Help: "Embedding duration per file", Buckets: prometheus.DefBuckets})
		m.persistDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "mrcis_pipeline_persist_seconds", Help: "Persist duration per file", Buckets: prometheus.DefBuckets})

		prometheus.MustRegister(
			m.filesIndexed, m.filesFailed, m.filesSkipped, m.filesDeleted,
			m.entitiesAdded, m.pendingAdded,
			m.extractDuration, m.embedDuration, m.persistDuration,
		)
	})
}

func recordFileIndexed(entities, pendingRefs int) {
	pipeMetrics.init()
	pipeMetrics.filesIndexed.Inc()
	pipeMetrics.entitiesAdded.Add(float64(entities))
	pipeMetrics.pendingAdded.Add(float64(pendingRefs))
}

func recordFileFailed() {
	pipeMetrics.init()
	pipeMetrics.filesFailed.Inc()
}

func recordFileSkipped() {
	pipeMetrics.init()
	pipeMetrics.filesSkipped.Inc()
}

func recordFileDeleted() {
	pipeMetrics.init()
	pipeMetrics.filesDeleted.Inc()
}

func observeExtract(d time.Duration) {
	pipeMetrics.init()
	pipeMetrics.extractDuration.Observe(d.Seconds())
}

func observeEmbed(d time.Duration) {
	pipeMetrics.init()
	pipeMetrics.embedDuration.Observe(d.Seconds())
}

func observePersist(d time.Duration) {
	pipeMetrics.init()
	pipeMetrics.persistDuration.Observe(d.Seconds())
}
