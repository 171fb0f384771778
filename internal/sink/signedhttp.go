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
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bcem/auditcollector/internal/processor"
)

const (
	omsResource   = "/api/logs"
	omsAPIVersion = "2016-04-01"
	rfc1123Azure  = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// SignedHTTPConfig configures the shared-key-signed HTTP sink (Azure
// Log Analytics / OMS Data Collector API shape).
type SignedHTTPConfig struct {
	WorkspaceID string
	SharedKey   string
}

// SignedHTTPSink POSTs one record at a time, signed with an
// HMAC-SHA256 shared-key signature over a canonical header block.
type SignedHTTPSink struct {
	cfg    SignedHTTPConfig
	client *http.Client
}

// NewSignedHTTPSink builds a SignedHTTPSink.
func NewSignedHTTPSink(cfg SignedHTTPConfig) *SignedHTTPSink {
	return &SignedHTTPSink{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

// SendBatches implements sink.Sink.
func (s *SignedHTTPSink) SendBatches(ctx context.Context, batches []processor.Batch) error {
	for _, b := range batches {
		tableName := strings.ReplaceAll(b.ContentType, ".", "_")
		for _, rec := range b.Records {
			if err := s.sendOne(ctx, tableName, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SignedHTTPSink) sendOne(ctx context.Context, tableName string, rec processor.Record) error {
	timeValue, ok := rec["CreationTime"].(string)
	if !ok {
		slog.Warn("expected CreationTime field, skipping log", "log_type", tableName)
		return nil
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	rfc1123date := time.Now().UTC().Format(rfc1123Azure)
	signature, err := s.buildSignature(rfc1123date, len(body), http.MethodPost, "application/json", omsResource)
	if err != nil {
		return fmt.Errorf("build signature: %w", err)
	}

	uri := fmt.Sprintf("https://%s.ods.opinsights.azure.com%s?api-version=%s", s.cfg.WorkspaceID, omsResource, omsAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("Authorization", signature)
	req.Header.Set("Log-Type", tableName)
	req.Header.Set("x-ms-date", rfc1123date)
	req.Header.Set("time-generated-field", timeValue)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send log to OMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error response from OMS (HTTP %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// buildSignature implements the Log Analytics HTTP Data Collector API
// shared-key signature: an HMAC-SHA256, keyed by the base64-decoded
// shared key, over a canonical `METHOD\nLEN\nTYPE\nx-ms-date:DATE\nRESOURCE`
// string, itself base64-encoded.
func (s *SignedHTTPSink) buildSignature(date string, contentLength int, method, contentType, resource string) (string, error) {
	xHeaders := fmt.Sprintf("x-ms-date:%s", date)
	stringToHash := fmt.Sprintf("%s\n%d\n%s\n%s\n%s", method, contentLength, contentType, xHeaders, resource)

	decodedKey, err := base64.StdEncoding.DecodeString(s.cfg.SharedKey)
	if err != nil {
		return "", fmt.Errorf("decode shared key: %w", err)
	}

	mac := hmac.New(sha256.New, decodedKey)
	mac.Write([]byte(stringToHash))
	encoded := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("SharedKey %s:%s", s.cfg.WorkspaceID, encoded), nil
}
