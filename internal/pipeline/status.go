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

// Package pipeline implements the page-discovery and blob-fetch stages
// and the coordinator that owns termination and retry policy.
package pipeline

// StatusKind tags a status message. Status messages are produced by the
// page-discovery and blob-fetch stages and consumed only by the
// coordinator.
type StatusKind int

const (
	FoundBlob StatusKind = iota
	FeedFinished
	BlobRetrieved
	BlobErrored
	Throttled
)

// Status is a single status-channel message.
type Status struct {
	Kind StatusKind
}

// PageRef is a (content-type, URL) pair: the page-discovery stage's unit
// of work.
type PageRef struct {
	ContentType string
	URL         string
}

// BlobRef identifies one content blob to fetch.
type BlobRef struct {
	ContentType string
	BlobID      string
	Expiration  string
	URL         string
}

// Result pairs a fetched blob's raw body with the reference that
// produced it.
type Result struct {
	Body string
	Ref  BlobRef
}

// Counters is a point-in-time snapshot of the coordinator's in-flight
// and statistics counters, published for external observers. The
// coordinator is the sole owner of the live values; observers only ever
// see a copy.
type Counters struct {
	AwaitingFeeds int64
	AwaitingBlobs int64
	Found         int64
	Successful    int64
	Error         int64
	Retried       int64
}

// RunStatistics are the four monotone counters reported at run end.
type RunStatistics struct {
	Found      int64
	Successful int64
	Error      int64
	Retried    int64
}
