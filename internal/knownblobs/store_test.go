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

package knownblobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d entries", s.Len())
	}
}

func TestLoad_PurgesExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	future := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	past := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	content := "b1," + future + "\nb2," + past + "\n\n"
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Contains("b1") {
		t.Error("expected b1 to survive load")
	}
	if s.Contains("b2") {
		t.Error("expected b2 (expired) to be purged")
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	s.Insert("b1", future)
	s.Insert("b2", future)

	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 entries after round-trip, got %d", reloaded.Len())
	}
	if !reloaded.Contains("b1") || !reloaded.Contains("b2") {
		t.Error("round-tripped store missing expected entries")
	}
}

func TestInsertGrowsDuringRun(t *testing.T) {
	dir := t.TempDir()
	s, _ := Load(dir)
	if s.Contains("x") {
		t.Fatal("unexpected entry in fresh store")
	}
	s.Insert("x", time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	if !s.Contains("x") {
		t.Fatal("expected inserted entry to be present")
	}
}
