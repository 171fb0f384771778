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

package planner

import (
	"strings"
	"testing"
	"time"
)

func TestWindows_RejectsOutOfRangeHours(t *testing.T) {
	now := time.Now()
	if _, err := Windows(now, 0); err == nil {
		t.Error("expected error for 0 hours")
	}
	if _, err := Windows(now, 169); err == nil {
		t.Error("expected error for 169 hours")
	}
}

func TestWindows_SingleSubWindow(t *testing.T) {
	now := time.Now()
	windows, err := Windows(now, 1)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !windows[0].End.Equal(now) {
		t.Errorf("expected last window to end at now")
	}
	if windows[0].End.Sub(windows[0].Start) != time.Hour {
		t.Errorf("expected 1h window, got %v", windows[0].End.Sub(windows[0].Start))
	}
}

func TestWindows_ContiguousNonOverlapping(t *testing.T) {
	now := time.Now()
	windows, err := Windows(now, 72)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows for 72h, got %d", len(windows))
	}
	for i := 0; i < len(windows)-1; i++ {
		if !windows[i].End.Equal(windows[i+1].Start) {
			t.Errorf("window %d end %v does not match window %d start %v", i, windows[i].End, i+1, windows[i+1].Start)
		}
		if windows[i].End.Sub(windows[i].Start) > 24*time.Hour {
			t.Errorf("window %d exceeds 24h: %v", i, windows[i].End.Sub(windows[i].Start))
		}
	}
	if !windows[len(windows)-1].End.Equal(now) {
		t.Error("final window should end at now")
	}
	if !windows[0].Start.Equal(now.Add(-72 * time.Hour)) {
		t.Error("first window should start at the full collection window's beginning")
	}
}

func TestSeeds_ShapeAndEscaping(t *testing.T) {
	now := time.Now()
	seeds, err := Seeds("tenant-1", "pub id", now, 1, []string{"Audit.Exchange"})
	if err != nil {
		t.Fatalf("Seeds: %v", err)
	}
	if len(seeds) != 1 {
		t.Fatalf("expected 1 seed, got %d", len(seeds))
	}
	s := seeds[0]
	if s.ContentType != "Audit.Exchange" {
		t.Errorf("unexpected content type: %s", s.ContentType)
	}
	if !strings.Contains(s.URL, "tenant-1/activity/feed/subscriptions/content") {
		t.Errorf("unexpected base path in URL: %s", s.URL)
	}
	if !strings.Contains(s.URL, "contentType=Audit.Exchange") {
		t.Errorf("expected contentType param, got %s", s.URL)
	}
	if !strings.Contains(s.URL, "PublisherIdentifier=pub+id") {
		t.Errorf("expected escaped publisher id, got %s", s.URL)
	}
}

func TestSeeds_OneSeedPerContentTypePerWindow(t *testing.T) {
	now := time.Now()
	seeds, err := Seeds("tenant-1", "pub", now, 72, []string{"Audit.Exchange", "Audit.General"})
	if err != nil {
		t.Fatalf("Seeds: %v", err)
	}
	if len(seeds) != 6 {
		t.Fatalf("expected 2 content types * 3 windows = 6 seeds, got %d", len(seeds))
	}
}
