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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bcem/auditcollector/internal/processor"
)

// FileConfig configures the delimited-file sink.
type FileConfig struct {
	// Path is the unified output file, or the template used to derive
	// per-content-type paths when SeparateByContentType is set.
	Path string
	// SeparateByContentType writes one CSV per content type instead of
	// a single file with a union-of-keys header.
	SeparateByContentType bool
	// ContentTypes lists every content type enabled for this run, used
	// to pre-derive the per-content-type file names.
	ContentTypes []string
}

// FileSink writes filled batches as CSV, either as one file with a
// union-of-keys header or as one file per content type.
type FileSink struct {
	cfg   FileConfig
	paths map[string]string
}

// NewFileSink builds a FileSink, pre-deriving per-content-type paths
// when cfg.SeparateByContentType is set.
func NewFileSink(cfg FileConfig) *FileSink {
	paths := make(map[string]string)
	if cfg.SeparateByContentType {
		dir := filepath.Dir(cfg.Path)
		ext := filepath.Ext(cfg.Path)
		stem := strings.TrimSuffix(filepath.Base(cfg.Path), ext)
		for _, ct := range cfg.ContentTypes {
			name := fmt.Sprintf("%s_%s.csv", stem, strings.ReplaceAll(ct, ".", ""))
			paths[ct] = filepath.Join(dir, name)
		}
	}
	return &FileSink{cfg: cfg, paths: paths}
}

// SendBatches implements sink.Sink.
func (s *FileSink) SendBatches(ctx context.Context, batches []processor.Batch) error {
	if !s.cfg.SeparateByContentType {
		return s.writeFile(s.cfg.Path, batches)
	}
	for _, b := range batches {
		if len(b.Records) == 0 {
			continue
		}
		path, ok := s.paths[b.ContentType]
		if !ok {
			path = s.cfg.Path
		}
		if err := s.writeFile(path, []processor.Batch{b}); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSink) writeFile(path string, batches []processor.Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	columns := unionColumns(batches)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write header %s: %w", path, err)
	}
	for _, b := range batches {
		for _, rec := range b.Records {
			if err := w.Write(fillRow(rec, columns)); err != nil {
				return fmt.Errorf("write row %s: %w", path, err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// unionColumns derives the header row as the union of every record's
// keys across every batch, first-seen order.
func unionColumns(batches []processor.Batch) []string {
	var columns []string
	seen := make(map[string]bool)
	for _, b := range batches {
		for _, rec := range b.Records {
			for k := range rec {
				if !seen[k] {
					seen[k] = true
					columns = append(columns, k)
				}
			}
		}
	}
	return columns
}

func fillRow(rec processor.Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		v, ok := rec[c]
		if !ok {
			continue
		}
		row[i] = stringifyCell(v)
	}
	return row
}

func stringifyCell(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
