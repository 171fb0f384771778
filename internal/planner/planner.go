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

// Package planner splits a user-requested collection window into
// sub-windows no longer than 24 hours and builds the seed page URLs the
// page-discovery stage starts from.
package planner

import (
	"fmt"
	"net/url"
	"time"
)

const (
	maxHours       = 168
	subWindowHours = 24
	timeLayout     = "2006-01-02T15:04:05Z"
)

// BaseURL returns the Management Activity API feed root for a tenant.
func BaseURL(tenantID string) string {
	return fmt.Sprintf("https://manage.office.com/api/v1.0/%s/activity/feed", tenantID)
}

// Window is one contiguous, non-overlapping sub-window of the requested
// collection period.
type Window struct {
	Start time.Time
	End   time.Time
}

// Seed is a single seed page reference produced for the page-discovery
// stage: a content type paired with its starting page URL.
type Seed struct {
	ContentType string
	URL         string
}

// Windows splits a collection window of hoursToCollect hours (1..=168)
// into contiguous ≤24h sub-windows ending at `now`, oldest-first, with
// the oldest (first) sub-window possibly shorter than 24h.
func Windows(now time.Time, hoursToCollect int) ([]Window, error) {
	if hoursToCollect < 1 || hoursToCollect > maxHours {
		return nil, fmt.Errorf("hoursToCollect must be in 1..=%d, got %d", maxHours, hoursToCollect)
	}

	endTime := now
	start := now.Add(-time.Duration(hoursToCollect) * time.Hour)

	var windows []Window
	for endTime.Sub(start) > subWindowHours*time.Hour {
		splitStart := endTime.Add(-subWindowHours * time.Hour)
		windows = append([]Window{{Start: splitStart, End: endTime}}, windows...)
		endTime = splitStart
	}
	windows = append([]Window{{Start: start, End: endTime}}, windows...)

	return windows, nil
}

// Seeds builds one seed page URL per (content type, sub-window) pair for
// every enabled content type, matching the upstream
// `…/subscriptions/content?contentType=<T>&startTime=<S>&endTime=<E>&PublisherIdentifier=<P>`
// shape.
func Seeds(tenantID, publisherID string, now time.Time, hoursToCollect int, contentTypes []string) ([]Seed, error) {
	windows, err := Windows(now, hoursToCollect)
	if err != nil {
		return nil, err
	}

	base := BaseURL(tenantID)
	var seeds []Seed
	for _, ct := range contentTypes {
		for _, w := range windows {
			u := fmt.Sprintf("%s/subscriptions/content?contentType=%s&startTime=%s&endTime=%s&PublisherIdentifier=%s",
				base,
				url.QueryEscape(ct),
				w.Start.UTC().Format(timeLayout),
				w.End.UTC().Format(timeLayout),
				url.QueryEscape(publisherID),
			)
			seeds = append(seeds, Seed{ContentType: ct, URL: u})
		}
	}
	return seeds, nil
}
