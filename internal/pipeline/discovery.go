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
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/bcem/auditcollector/internal/activityfeed"
	"github.com/bcem/auditcollector/internal/knownblobs"
)

// RunDiscovery drains the coordinator's page queue with up to `threads`
// pages in flight at once, until the coordinator signals termination via
// StopCh or the context is cancelled. It blocks until every in-flight
// fetch it started has returned.
func RunDiscovery(ctx context.Context, coord *Coordinator, client *activityfeed.Client, store *knownblobs.Store, threads, duplicate int) {
	if threads < 1 {
		threads = 1
	}
	sem := make(chan struct{}, threads)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-coord.StopCh:
			return
		case <-ctx.Done():
			return
		case page := <-coord.PageQueue:
			select {
			case sem <- struct{}{}:
			case <-coord.StopCh:
				return
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(p PageRef) {
				defer wg.Done()
				defer func() { <-sem }()
				fetchPage(ctx, coord, client, store, duplicate, p)
			}(page)
		}
	}
}

func fetchPage(ctx context.Context, coord *Coordinator, client *activityfeed.Client, store *knownblobs.Store, duplicate int, page PageRef) {
	resp, err := client.FetchPage(ctx, page.URL)
	if err != nil {
		slog.Warn("page fetch transport error", "content_type", page.ContentType, "url", page.URL, "error", err)
		coord.PageErrCh <- page
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if strings.Contains(strings.ToLower(string(resp.Body)), "too many request") {
			coord.StatusCh <- Status{Kind: Throttled}
		}
		slog.Warn("page fetch non-success status", "content_type", page.ContentType, "status", resp.StatusCode)
		coord.PageErrCh <- page
		return
	}

	var items []map[string]any
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		slog.Warn("page body decode failure", "content_type", page.ContentType, "url", page.URL, "error", err)
		coord.PageErrCh <- page
		return
	}

	for _, item := range items {
		contentURI, ok := item["contentUri"].(string)
		if !ok {
			slog.Warn("page item missing contentUri", "content_type", page.ContentType)
			continue
		}
		contentID, _ := item["contentId"].(string)
		expiration, _ := item["contentExpiration"].(string)

		if contentID != "" && store.Contains(contentID) {
			continue
		}

		ref := BlobRef{
			ContentType: page.ContentType,
			BlobID:      contentID,
			Expiration:  expiration,
			URL:         contentURI,
		}
		for i := 0; i < duplicate; i++ {
			coord.BlobQueue <- ref
			coord.StatusCh <- Status{Kind: FoundBlob}
		}
	}

	// Every FoundBlob for this page is on the wire before the
	// FeedFinished/next-page decision reaches the coordinator, so a
	// termination check triggered by this page's own blobs can never
	// race ahead of them.
	if resp.NextPageURI != "" {
		coord.PageQueue <- PageRef{ContentType: page.ContentType, URL: resp.NextPageURI}
	} else {
		coord.StatusCh <- Status{Kind: FeedFinished}
	}
}
