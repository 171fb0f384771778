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
	"strings"
	"sync"

	"github.com/bcem/auditcollector/internal/activityfeed"
)

// RunBlobFetch drains the coordinator's blob queue with up to `threads`
// blobs in flight at once, until the coordinator signals termination via
// StopCh or the context is cancelled. It blocks until every in-flight
// fetch it started has returned.
func RunBlobFetch(ctx context.Context, coord *Coordinator, client *activityfeed.Client, threads int) {
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
		case blob := <-coord.BlobQueue:
			select {
			case sem <- struct{}{}:
			case <-coord.StopCh:
				return
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(b BlobRef) {
				defer wg.Done()
				defer func() { <-sem }()
				fetchBlob(ctx, coord, client, b)
			}(blob)
		}
	}
}

func fetchBlob(ctx context.Context, coord *Coordinator, client *activityfeed.Client, blob BlobRef) {
	resp, err := client.FetchBlob(ctx, blob.URL)
	if err != nil {
		slog.Warn("blob fetch transport error", "content_type", blob.ContentType, "blob_id", blob.BlobID, "error", err)
		coord.BlobErrCh <- blob
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if strings.Contains(strings.ToLower(string(resp.Body)), "too many request") {
			coord.StatusCh <- Status{Kind: Throttled}
		}
		slog.Warn("blob fetch non-success status", "content_type", blob.ContentType, "blob_id", blob.BlobID, "status", resp.StatusCode)
		coord.BlobErrCh <- blob
		return
	}

	coord.ResultCh <- Result{Body: string(resp.Body), Ref: blob}
	coord.StatusCh <- Status{Kind: BlobRetrieved}
}
