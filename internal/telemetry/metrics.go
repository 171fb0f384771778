// Copyright (c) 2026 John Earle
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

// Package telemetry publishes coordinator snapshots over Redis pub/sub,
// posts fatal-error alerts to Slack, and exposes a health/metrics
// HTTP surface.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var BlobsFound = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "auditcollector",
		Name:      "blobs_found",
		Help:      "Blobs discovered in the current or most recent run.",
	},
)

var BlobsSuccessful = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "auditcollector",
		Name:      "blobs_successful",
		Help:      "Blobs fetched successfully in the current or most recent run.",
	},
)

var BlobsError = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "auditcollector",
		Name:      "blobs_error",
		Help:      "Blobs that exhausted their retry budget in the current or most recent run.",
	},
)

var BlobsRetried = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "auditcollector",
		Name:      "blobs_retried",
		Help:      "Retry attempts issued in the current or most recent run.",
	},
)

var AwaitingFeeds = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "auditcollector",
		Name:      "awaiting_feeds",
		Help:      "Feeds whose page-discovery loop has not yet finished.",
	},
)

var AwaitingBlobs = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "auditcollector",
		Name:      "awaiting_blobs",
		Help:      "Blobs discovered but not yet resolved (fetched or errored out).",
	},
)

// Collectors returns every metric for registration against a Registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		BlobsFound,
		BlobsSuccessful,
		BlobsError,
		BlobsRetried,
		AwaitingFeeds,
		AwaitingBlobs,
	}
}

// Observe updates the gauges from a coordinator snapshot.
func Observe(snap Snapshot) {
	AwaitingFeeds.Set(float64(snap.AwaitingFeeds))
	AwaitingBlobs.Set(float64(snap.AwaitingBlobs))
	BlobsFound.Set(float64(snap.Found))
	BlobsSuccessful.Set(float64(snap.Successful))
	BlobsError.Set(float64(snap.Error))
	BlobsRetried.Set(float64(snap.Retried))
}

// Snapshot mirrors pipeline.Counters without importing the pipeline
// package, so telemetry stays usable by anything that can produce this
// shape.
type Snapshot struct {
	AwaitingFeeds int64
	AwaitingBlobs int64
	Found         int64
	Successful    int64
	Error         int64
	Retried       int64
}
