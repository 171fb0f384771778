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

// Package processor turns fetched blob bodies into filtered, batched
// records and fans batches out to sinks.
package processor

import (
	"context"
	"log/slog"
)

// Sink accepts one flush's worth of per-content-type batches and
// returns once they have been durably handed off by that sink's own
// definition of durable. A sink that cannot deliver returns an error,
// which is fatal to the run.
type Sink interface {
	SendBatches(ctx context.Context, batches []Batch) error
}

// The five fixed content-type routing keys.
const (
	ContentTypeGeneral    = "Audit.General"
	ContentTypeAAD        = "Audit.AzureActiveDirectory"
	ContentTypeExchange   = "Audit.Exchange"
	ContentTypeSharePoint = "Audit.SharePoint"
	ContentTypeDLP        = "DLP.All"
)

// Record is an arbitrary log entry as decoded from a blob body.
type Record = map[string]any

// Caches buckets records by content type up to a fixed total capacity.
type Caches struct {
	Size       int
	general    []Record
	aad        []Record
	exchange   []Record
	sharepoint []Record
	dlp        []Record
}

// NewCaches builds an empty Caches with the given total capacity.
func NewCaches(size int) *Caches {
	return &Caches{Size: size}
}

// Insert appends a record to the bucket for its content type. An
// unrecognized content type is logged and dropped.
func (c *Caches) Insert(record Record, contentType string) {
	switch contentType {
	case ContentTypeGeneral:
		c.general = append(c.general, record)
	case ContentTypeAAD:
		c.aad = append(c.aad, record)
	case ContentTypeExchange:
		c.exchange = append(c.exchange, record)
	case ContentTypeSharePoint:
		c.sharepoint = append(c.sharepoint, record)
	case ContentTypeDLP:
		c.dlp = append(c.dlp, record)
	default:
		slog.Warn("unknown content type cached", "content_type", contentType)
	}
}

// Full reports whether the sum of all bucket lengths has reached Size.
func (c *Caches) Full() bool {
	return c.total() >= c.Size
}

func (c *Caches) total() int {
	return len(c.general) + len(c.aad) + len(c.exchange) + len(c.sharepoint) + len(c.dlp)
}

// Batch is a (content type, records) pair, one of which is produced per
// non-empty bucket when a Caches is flushed.
type Batch struct {
	ContentType string
	Records     []Record
}

// Batches returns one Batch per non-empty content-type bucket, in a
// fixed, deterministic content-type order.
func (c *Caches) Batches() []Batch {
	var batches []Batch
	for _, b := range []struct {
		contentType string
		records     []Record
	}{
		{ContentTypeGeneral, c.general},
		{ContentTypeAAD, c.aad},
		{ContentTypeExchange, c.exchange},
		{ContentTypeSharePoint, c.sharepoint},
		{ContentTypeDLP, c.dlp},
	} {
		if len(b.records) > 0 {
			batches = append(batches, Batch{ContentType: b.contentType, Records: b.records})
		}
	}
	return batches
}
