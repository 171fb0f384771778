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

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bcem/auditcollector/internal/knownblobs"
	"github.com/bcem/auditcollector/internal/pipeline"
)

// Filter is a {key: required-value} predicate for one content type. A
// record is dropped if it contains a filtered key whose value differs
// from the required one.
type Filter map[string]string

// RunRecorder persists a completed run's statistics. A nil RunRecorder
// disables run-history persistence entirely.
type RunRecorder interface {
	RecordRun(ctx context.Context, stats pipeline.RunStatistics, logsSaved int64) error
}

// Processor consumes fetched blob bodies, filters and batches
// individual records, and fans filled batches out to sinks.
type Processor struct {
	store   *knownblobs.Store
	filters map[string]Filter
	sinks   []Sink
	cache   *Caches
	saved   int64
}

// New builds a Processor. filters may be nil; sinks are invoked in the
// given order for every flush.
func New(store *knownblobs.Store, filters map[string]Filter, cacheSize int, sinks []Sink) *Processor {
	return &Processor{
		store:   store,
		filters: filters,
		sinks:   sinks,
		cache:   NewCaches(cacheSize),
	}
}

// HandleResult processes one fetched blob body: the blob is marked
// known unconditionally (it was successfully fetched, regardless of
// whether any of its records survive filtering), its body is decoded
// as a JSON list of records, and each surviving record is batched.
func (p *Processor) HandleResult(ctx context.Context, res pipeline.Result) error {
	p.store.Insert(res.Ref.BlobID, res.Ref.Expiration)

	var records []Record
	if err := json.Unmarshal([]byte(res.Body), &records); err != nil {
		slog.Warn("skipped blob that could not be parsed", "blob_id", res.Ref.BlobID, "content_type", res.Ref.ContentType, "error", err)
		return nil
	}

	for _, rec := range records {
		if p.dropByFilter(res.Ref.ContentType, rec) {
			continue
		}
		rec["OriginFeed"] = res.Ref.ContentType
		p.cache.Insert(rec, res.Ref.ContentType)
		p.saved++
		if p.cache.Full() {
			if err := p.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) dropByFilter(contentType string, rec Record) bool {
	f, ok := p.filters[contentType]
	if !ok {
		return false
	}
	for key, required := range f {
		if val, present := rec[key]; present {
			if fmt.Sprint(val) != required {
				return true
			}
		}
	}
	return false
}

func (p *Processor) flush(ctx context.Context) error {
	batches := p.cache.Batches()
	p.cache = NewCaches(p.cache.Size)
	if len(batches) == 0 {
		return nil
	}
	for _, s := range p.sinks {
		if err := s.SendBatches(ctx, batches); err != nil {
			return fmt.Errorf("sink delivery failed: %w", err)
		}
	}
	return nil
}

// Finish flushes any remaining batch, persists the known-blob store,
// and records run history, in that order — the flush must precede
// statistics being considered final, and a failed final flush or save
// is fatal to the run. Run-history recording failure is logged but not
// fatal: it is a supplementary audit trail, not the pipeline's output.
func (p *Processor) Finish(ctx context.Context, stats pipeline.RunStatistics, recorder RunRecorder) (string, error) {
	if err := p.flush(ctx); err != nil {
		return "", fmt.Errorf("final batch flush: %w", err)
	}
	if err := p.store.Save(); err != nil {
		return "", fmt.Errorf("save known-blob store: %w", err)
	}
	if recorder != nil {
		if err := recorder.RecordRun(ctx, stats, p.saved); err != nil {
			slog.Warn("failed to record run history", "error", err)
		}
	}

	summary := fmt.Sprintf(
		"Blobs found: %d\nBlobs successful: %d\nBlobs failed: %d\nBlobs retried: %d\nLogs saved: %d\n",
		stats.Found, stats.Successful, stats.Error, stats.Retried, p.saved,
	)
	slog.Info("run complete",
		"blobs_found", stats.Found,
		"blobs_successful", stats.Successful,
		"blobs_error", stats.Error,
		"blobs_retried", stats.Retried,
		"logs_saved", p.saved,
	)
	return summary, nil
}
