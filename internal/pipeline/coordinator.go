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

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bcem/auditcollector/internal/planner"
)

// Channel capacities. Error channels are sized like the page/blob
// queues rather than the 100,000,000 the original source used, because
// this coordinator drains every error channel on every loop iteration —
// the oversized buffer was only ever a workaround for a consumer that
// didn't do that.
const (
	PageQueueCapacity = 100_000
	BlobQueueCapacity = 100_000
	StatusCapacity    = 100_000
	PageErrCapacity   = 100_000
	BlobErrCapacity   = 100_000
	ResultCapacity    = 100_000
	SnapshotCapacity  = 64

	throttleBackoff = 30 * time.Second
)

// Coordinator owns the two in-flight counters, the retry budget per
// URL, the throttle-backoff timer, and the termination decision. It is
// the sole owner of all of these — nothing else in the pipeline mutates
// them, so no lock is needed.
type Coordinator struct {
	PageQueue  chan PageRef
	BlobQueue  chan BlobRef
	StatusCh   chan Status
	PageErrCh  chan PageRef
	BlobErrCh  chan BlobRef
	ResultCh   chan Result
	KillCh     chan struct{}
	SnapshotCh chan Counters

	// StopCh is closed exactly once, when the coordinator decides to
	// terminate (gracefully or via kill). Stage E and F loops select on
	// it instead of relying on the input queues being closed — Go's
	// single-producer-per-close channel semantics don't fit a queue
	// that both the coordinator (seeding/retrying) and the stage itself
	// (next-page continuation) write to. This is the Go-idiomatic
	// rendering of "close downstream channels and break".
	StopCh chan struct{}

	retries       int
	retryCooldown time.Duration
	stopOnce      sync.Once
}

// New builds a Coordinator with the channel capacities mandated by the
// concurrency model. retries is the per-URL retry budget; retryCooldown
// is an optional extra sleep before a failed URL is re-enqueued (0
// disables it).
func New(retries int, retryCooldown time.Duration) *Coordinator {
	return &Coordinator{
		PageQueue:     make(chan PageRef, PageQueueCapacity),
		BlobQueue:     make(chan BlobRef, BlobQueueCapacity),
		StatusCh:      make(chan Status, StatusCapacity),
		PageErrCh:     make(chan PageRef, PageErrCapacity),
		BlobErrCh:     make(chan BlobRef, BlobErrCapacity),
		ResultCh:      make(chan Result, ResultCapacity),
		KillCh:        make(chan struct{}, 1),
		SnapshotCh:    make(chan Counters, SnapshotCapacity),
		StopCh:        make(chan struct{}),
		retries:       retries,
		retryCooldown: retryCooldown,
	}
}

// Kill requests the coordinator break out of its loop at the next
// iteration.
func (c *Coordinator) Kill() {
	select {
	case c.KillCh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) stop() {
	c.stopOnce.Do(func() { close(c.StopCh) })
}

func saturatingSub(n int64) int64 {
	if n == 0 {
		return 0
	}
	return n - 1
}

// Run seeds the page queue from the planner's output and then loops
// until both in-flight counters reach zero or a kill signal (including
// ctx cancellation, which carries the global-timeout deadline) arrives.
func (c *Coordinator) Run(ctx context.Context, seeds []planner.Seed) RunStatistics {
	defer c.stop()

	var stats RunStatistics
	var awaitingFeeds, awaitingBlobs int64
	for _, s := range seeds {
		c.PageQueue <- PageRef{ContentType: s.ContentType, URL: s.URL}
		awaitingFeeds++
	}

	budget := make(map[string]int)
	var throttledFlag atomic.Bool
	var throttleTimer *time.Timer
	defer func() {
		if throttleTimer != nil {
			throttleTimer.Stop()
		}
	}()

	publish := func() {
		snap := Counters{
			AwaitingFeeds: awaitingFeeds,
			AwaitingBlobs: awaitingBlobs,
			Found:         stats.Found,
			Successful:    stats.Successful,
			Error:         stats.Error,
			Retried:       stats.Retried,
		}
		select {
		case c.SnapshotCh <- snap:
		default:
		}
	}

	requeuePage := func(p PageRef) {
		delay := time.Duration(0)
		if c.retryCooldown > 0 && !throttledFlag.Load() {
			delay = c.retryCooldown
		}
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			c.PageQueue <- p
		}()
	}
	requeueBlob := func(b BlobRef) {
		delay := time.Duration(0)
		if c.retryCooldown > 0 && !throttledFlag.Load() {
			delay = c.retryCooldown
		}
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			c.BlobQueue <- b
		}()
	}

	terminate := func() bool { return awaitingFeeds == 0 && awaitingBlobs == 0 }

	for {
		select {
		case <-ctx.Done():
			slog.Warn("coordinator stopping on context cancellation (global timeout or shutdown)")
			return stats
		case <-c.KillCh:
			slog.Info("coordinator stopping on kill signal")
			return stats

		case msg := <-c.StatusCh:
			switch msg.Kind {
			case FoundBlob:
				awaitingBlobs++
				stats.Found++
			case FeedFinished:
				awaitingFeeds = saturatingSub(awaitingFeeds)
			case BlobRetrieved:
				awaitingBlobs = saturatingSub(awaitingBlobs)
				stats.Successful++
			case BlobErrored:
				// Unreachable in this implementation: Go channel
				// sends to PageErrCh/BlobErrCh never fail the way a
				// dropped mpsc receiver does, so the error-reporting
				// channels are always the path used instead.
			case Throttled:
				if !throttledFlag.Load() {
					throttledFlag.Store(true)
					throttleTimer = time.AfterFunc(throttleBackoff, func() {
						throttledFlag.Store(false)
					})
				}
			}

		case p := <-c.PageErrCh:
			if left, ok := budget[p.URL]; ok {
				if left > 0 {
					if !throttledFlag.Load() {
						budget[p.URL] = left - 1
					}
					stats.Retried++
					requeuePage(p)
				} else {
					awaitingFeeds = saturatingSub(awaitingFeeds)
					stats.Error++
				}
			} else {
				budget[p.URL] = c.retries - 1
				stats.Retried++
				requeuePage(p)
			}

		case b := <-c.BlobErrCh:
			if left, ok := budget[b.URL]; ok {
				if left > 0 {
					if !throttledFlag.Load() {
						budget[b.URL] = left - 1
					}
					stats.Retried++
					requeueBlob(b)
				} else {
					awaitingBlobs = saturatingSub(awaitingBlobs)
					stats.Error++
				}
			} else {
				budget[b.URL] = c.retries - 1
				stats.Retried++
				requeueBlob(b)
			}
		}

		publish()
		if terminate() {
			return stats
		}
	}
}
