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
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/bcem/auditcollector/internal/processor"
)

const (
	creationTimeLayout = "2006-01-02T15:04:05"
	// graylogTimeLayout uses millisecond precision: the source formats
	// with nanosecond precision and then truncates to the same width.
	graylogTimeLayout = "2006-01-02 15:04:05.000"
	dialTimeout       = 10 * time.Second
)

// SyslogConfig configures the line-delimited-JSON-over-TCP sink.
type SyslogConfig struct {
	Address string
	Port    int
}

// SyslogSink delivers one line-delimited JSON object per record over a
// freshly dialed TCP connection per send, matching the upstream
// Graylog raw-TCP-JSON input contract.
type SyslogSink struct {
	cfg SyslogConfig
}

// NewSyslogSink builds a SyslogSink and probes connectivity once up
// front — there is no point starting a run against an address that
// cannot be reached at all.
func NewSyslogSink(cfg SyslogConfig) (*SyslogSink, error) {
	s := &SyslogSink{cfg: cfg}
	conn, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("connect syslog sink %s:%d: %w", cfg.Address, cfg.Port, err)
	}
	conn.Close()
	return s, nil
}

func (s *SyslogSink) dial() (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	return net.DialTimeout("tcp", addr, dialTimeout)
}

// SendBatches implements sink.Sink, sending every record over its own
// freshly dialed connection.
func (s *SyslogSink) SendBatches(ctx context.Context, batches []processor.Batch) error {
	for _, b := range batches {
		for _, rec := range b.Records {
			if err := withTimestamp(rec); err != nil {
				continue
			}
			body, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			conn, err := s.dial()
			if err != nil {
				return fmt.Errorf("syslog sink dial: %w", err)
			}
			_, writeErr := conn.Write(append(body, '\n'))
			conn.Close()
			if writeErr != nil {
				return fmt.Errorf("syslog sink write: %w", writeErr)
			}
		}
	}
	return nil
}

// withTimestamp derives a `timestamp` field from `CreationTime`,
// reformatted to Graylog's expected millisecond-precision shape.
func withTimestamp(rec processor.Record) error {
	raw, ok := rec["CreationTime"]
	if !ok {
		return fmt.Errorf("expected CreationTime field")
	}
	s, ok := raw.(string)
	if !ok {
		return fmt.Errorf("CreationTime is not a string")
	}
	t, err := time.Parse(creationTimeLayout, s)
	if err != nil {
		return fmt.Errorf("parse CreationTime: %w", err)
	}
	rec["timestamp"] = t.UTC().Format(graylogTimeLayout)
	return nil
}
