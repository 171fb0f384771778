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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
collect:
  contentTypes:
    Audit.Exchange: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collect.CacheSize != 500_000 {
		t.Errorf("expected default cacheSize 500000, got %d", cfg.Collect.CacheSize)
	}
	if cfg.Collect.MaxThreads != 50 {
		t.Errorf("expected default maxThreads 50, got %d", cfg.Collect.MaxThreads)
	}
	if cfg.Collect.Retries != 3 {
		t.Errorf("expected default retries 3, got %d", cfg.Collect.Retries)
	}
	if cfg.Collect.HoursToCollect != 24 {
		t.Errorf("expected default hoursToCollect 24, got %d", cfg.Collect.HoursToCollect)
	}
	if cfg.Telemetry.StatusChannel != "collector:status" {
		t.Errorf("expected default status channel, got %q", cfg.Telemetry.StatusChannel)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_OMS_WORKSPACE", "workspace-123")
	path := writeConfig(t, `
output:
  signedHttp:
    workspaceId: ${TEST_OMS_WORKSPACE}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output.SignedHTTP == nil || cfg.Output.SignedHTTP.WorkspaceID != "workspace-123" {
		t.Fatalf("expected expanded workspace ID, got %+v", cfg.Output.SignedHTTP)
	}
}

func TestLoad_RejectsOutOfRangeHours(t *testing.T) {
	path := writeConfig(t, `
collect:
  hoursToCollect: 200
`)
	if _, err := Load(path); err == nil {
		t.Error("expected an out-of-range hoursToCollect to be rejected")
	}
}

func TestEnabledContentTypes_FixedOrder(t *testing.T) {
	path := writeConfig(t, `
collect:
  contentTypes:
    DLP.All: true
    Audit.Exchange: true
    Audit.General: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.EnabledContentTypes()
	want := []string{"Audit.General", "Audit.Exchange", "DLP.All"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
