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
	"testing"
	"time"

	"github.com/bcem/auditcollector/internal/planner"
)

func runWithTimeout(t *testing.T, c *Coordinator, seeds []planner.Seed) RunStatistics {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan RunStatistics, 1)
	go func() { done <- c.Run(ctx, seeds) }()
	select {
	case stats := <-done:
		return stats
	case <-time.After(3 * time.Second):
		t.Fatal("coordinator did not terminate")
		return RunStatistics{}
	}
}

// TestCoordinator_SingleSeedFeedFinished models S1's coordinator half:
// one seed page, no blobs, the page-discovery stage immediately reports
// FeedFinished.
func TestCoordinator_SingleSeedFeedFinished(t *testing.T) {
	c := New(3, 0)
	seeds := []planner.Seed{{ContentType: "Audit.Exchange", URL: "https://example/page1"}}

	go func() {
		p := <-c.PageQueue
		if p.URL != seeds[0].URL {
			t.Errorf("unexpected seed page: %s", p.URL)
		}
		c.StatusCh <- Status{Kind: FeedFinished}
	}()

	stats := runWithTimeout(t, c, seeds)
	if stats.Found != 0 || stats.Successful != 0 || stats.Error != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// TestCoordinator_FoundThenRetrieved models S1's two-blob case end to
// end against the coordinator alone (discovery/blob-fetch stages
// simulated inline).
func TestCoordinator_FoundThenRetrieved(t *testing.T) {
	c := New(3, 0)
	seeds := []planner.Seed{{ContentType: "Audit.Exchange", URL: "https://example/page1"}}

	go func() {
		<-c.PageQueue
		c.BlobQueue <- BlobRef{ContentType: "Audit.Exchange", BlobID: "b1", URL: "https://example/blob1"}
		c.StatusCh <- Status{Kind: FoundBlob}
		c.BlobQueue <- BlobRef{ContentType: "Audit.Exchange", BlobID: "b2", URL: "https://example/blob2"}
		c.StatusCh <- Status{Kind: FoundBlob}
		c.StatusCh <- Status{Kind: FeedFinished}

		<-c.BlobQueue
		<-c.BlobQueue
		c.StatusCh <- Status{Kind: BlobRetrieved}
		c.StatusCh <- Status{Kind: BlobRetrieved}
	}()

	stats := runWithTimeout(t, c, seeds)
	if stats.Found != 2 || stats.Successful != 2 || stats.Error != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// TestCoordinator_RetryThenRecover models S3: a page fails twice, then
// succeeds on the third attempt, with retries=3.
func TestCoordinator_RetryThenRecover(t *testing.T) {
	c := New(3, 0)
	seeds := []planner.Seed{{ContentType: "Audit.Exchange", URL: "https://example/page1"}}

	attempt := 0
	go func() {
		for i := 0; i < 3; i++ {
			p := <-c.PageQueue
			attempt++
			if attempt < 3 {
				c.PageErrCh <- p
			} else {
				c.StatusCh <- Status{Kind: FeedFinished}
			}
		}
	}()

	stats := runWithTimeout(t, c, seeds)
	if stats.Retried != 2 {
		t.Errorf("expected 2 retries, got %d", stats.Retried)
	}
	if stats.Error != 0 {
		t.Errorf("expected no errors, got %d", stats.Error)
	}
}

// TestCoordinator_RetryExhaustion models S4: every attempt at a blob
// fails, retries=2, so exactly one give-up occurs.
func TestCoordinator_RetryExhaustion(t *testing.T) {
	c := New(2, 0)
	seeds := []planner.Seed{{ContentType: "Audit.Exchange", URL: "https://example/page1"}}

	go func() {
		<-c.PageQueue
		c.BlobQueue <- BlobRef{ContentType: "Audit.Exchange", BlobID: "b1", URL: "https://example/blob1"}
		c.StatusCh <- Status{Kind: FoundBlob}
		c.StatusCh <- Status{Kind: FeedFinished}

		blob := <-c.BlobQueue
		for i := 0; i < 2; i++ {
			c.BlobErrCh <- blob
			blob = <-c.BlobQueue
		}
		c.BlobErrCh <- blob
	}()

	stats := runWithTimeout(t, c, seeds)
	if stats.Error != 1 {
		t.Errorf("expected exactly one give-up, got error=%d", stats.Error)
	}
	if stats.Retried != 2 {
		t.Errorf("expected 2 retries before give-up, got %d", stats.Retried)
	}
}

// TestCoordinator_ExtraFeedFinishedIsBenign covers the spec's open
// question: an extra FeedFinished after awaiting_feeds already reached
// zero must not underflow the counter or otherwise disrupt termination.
func TestCoordinator_ExtraFeedFinishedIsBenign(t *testing.T) {
	c := New(3, 0)
	seeds := []planner.Seed{{ContentType: "Audit.Exchange", URL: "https://example/page1"}}

	// A blob stays outstanding until after the extra FeedFinished, so the
	// coordinator is still running when the duplicate arrives.
	go func() {
		<-c.PageQueue
		c.BlobQueue <- BlobRef{ContentType: "Audit.Exchange", BlobID: "b1", URL: "https://example/blob1"}
		c.StatusCh <- Status{Kind: FoundBlob}
		c.StatusCh <- Status{Kind: FeedFinished}
		c.StatusCh <- Status{Kind: FeedFinished}
		<-c.BlobQueue
		c.StatusCh <- Status{Kind: BlobRetrieved}
	}()

	stats := runWithTimeout(t, c, seeds)
	if stats.Error != 0 {
		t.Errorf("unexpected stats after duplicate FeedFinished: %+v", stats)
	}
	for len(c.SnapshotCh) > 0 {
		if snap := <-c.SnapshotCh; snap.AwaitingFeeds < 0 {
			t.Errorf("awaiting_feeds went below zero: %+v", snap)
		}
	}
}

// TestCoordinator_ThrottleFreezesBudget covers S6: while throttled is
// active, a failing URL's retry budget must not be decremented.
func TestCoordinator_ThrottleFreezesBudget(t *testing.T) {
	c := New(2, 0)
	seeds := []planner.Seed{{ContentType: "Audit.Exchange", URL: "https://example/page1"}}

	go func() {
		p := <-c.PageQueue
		c.StatusCh <- Status{Kind: Throttled}
		// The coordinator publishes a snapshot after each message it
		// handles; the first one means Throttled has been processed.
		<-c.SnapshotCh
		// retries=2 would normally give up on the third failure (the
		// first sets the budget to 1, the second takes it to 0); under
		// an active throttle the budget must be held open instead.
		for i := 0; i < 3; i++ {
			c.PageErrCh <- p
			p = <-c.PageQueue
		}
		c.StatusCh <- Status{Kind: FeedFinished}
	}()

	stats := runWithTimeout(t, c, seeds)
	if stats.Error != 0 {
		t.Errorf("expected the throttled retry to be held open, got error=%d", stats.Error)
	}
}

func TestCoordinator_KillSignalStopsLoop(t *testing.T) {
	c := New(3, 0)
	seeds := []planner.Seed{{ContentType: "Audit.Exchange", URL: "https://example/page1"}}

	go func() {
		<-c.PageQueue
		c.Kill()
	}()

	stats := runWithTimeout(t, c, seeds)
	if stats.Found != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestSaturatingSub(t *testing.T) {
	if saturatingSub(0) != 0 {
		t.Error("saturatingSub(0) must stay 0")
	}
	if saturatingSub(5) != 4 {
		t.Error("saturatingSub(5) must be 4")
	}
}
