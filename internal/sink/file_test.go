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

package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/bcem/auditcollector/internal/processor"
)

func TestFileSink_UnifiedUnionOfKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	s := NewFileSink(FileConfig{Path: path})

	batches := []processor.Batch{
		{ContentType: "Audit.Exchange", Records: []processor.Record{
			{"Id": "l1", "Subject": "hi"},
		}},
		{ContentType: "Audit.SharePoint", Records: []processor.Record{
			{"Id": "l2", "Site": "team"},
		}},
	}
	if err := s.SendBatches(context.Background(), batches); err != nil {
		t.Fatalf("SendBatches: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if len(rows[0]) != 3 {
		t.Fatalf("expected union of 3 columns (Id, Subject, Site), got %d: %v", len(rows[0]), rows[0])
	}
}

func TestFileSink_SeparateByContentType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	s := NewFileSink(FileConfig{
		Path:                  path,
		SeparateByContentType: true,
		ContentTypes:          []string{"Audit.Exchange", "Audit.SharePoint"},
	})

	batches := []processor.Batch{
		{ContentType: "Audit.Exchange", Records: []processor.Record{{"Id": "l1"}}},
	}
	if err := s.SendBatches(context.Background(), batches); err != nil {
		t.Fatalf("SendBatches: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "out_AuditExchange.csv")); err != nil {
		t.Errorf("expected per-content-type file to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out_AuditSharePoint.csv")); err == nil {
		t.Errorf("expected no file for an empty content-type bucket")
	}
}
