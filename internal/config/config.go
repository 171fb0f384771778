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

// Package config loads the collector's YAML configuration file, with
// environment variable expansion for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Log holds structured-logging destination settings.
type Log struct {
	Path  string `yaml:"path"`
	Debug bool   `yaml:"debug"`
}

// Collect holds the core pipeline's tunables.
type Collect struct {
	WorkingDir     string                       `yaml:"workingDir"`
	CacheSize      int                          `yaml:"cacheSize"`
	MaxThreads     int                          `yaml:"maxThreads"`
	GlobalTimeout  int                          `yaml:"globalTimeout"` // minutes, 0 = disabled
	Retries        int                          `yaml:"retries"`
	HoursToCollect int                          `yaml:"hoursToCollect"`
	Duplicate      int                          `yaml:"duplicate"`
	SkipKnownLogs  bool                         `yaml:"skipKnownLogs"`
	ContentTypes   map[string]bool              `yaml:"contentTypes"`
	Filter         map[string]map[string]string `yaml:"filter"`
}

// FileOutput configures the CSV file sink.
type FileOutput struct {
	Path                  string   `yaml:"path"`
	SeparateByContentType bool     `yaml:"separateByContentType"`
	ContentTypes          []string `yaml:"contentTypes"`
}

// ForwardOutput configures the Celery/Redis forward sink.
type ForwardOutput struct {
	RedisURL   string `yaml:"redisURL"`
	Queue      string `yaml:"queue"`
	TenantName string `yaml:"tenantName"`
}

// SyslogOutput configures the Graylog-compatible syslog sink.
type SyslogOutput struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// SignedHTTPOutput configures the Azure Log Analytics sink.
type SignedHTTPOutput struct {
	WorkspaceID string `yaml:"workspaceId"`
}

// Output holds the optional sink sub-configs. A sink activates when its
// sub-config is present.
type Output struct {
	File       *FileOutput       `yaml:"file"`
	Forward    *ForwardOutput    `yaml:"forward"`
	Syslog     *SyslogOutput     `yaml:"syslog"`
	SignedHTTP *SignedHTTPOutput `yaml:"signedHttp"`
}

// Telemetry configures the status-snapshot publisher and fatal-error
// alerting.
type Telemetry struct {
	RedisURL      string `yaml:"redisURL"`
	StatusChannel string `yaml:"statusChannel"`
	SlackWebhook  string `yaml:"slackWebhook"`
}

// StoreConfig configures the optional Postgres-backed audit/run-history
// stores.
type StoreConfig struct {
	DatabaseURL string `yaml:"databaseURL"`
}

// Config is the fully parsed, defaulted collector configuration.
type Config struct {
	Log       Log         `yaml:"log"`
	Collect   Collect     `yaml:"collect"`
	Output    Output      `yaml:"output"`
	Telemetry Telemetry   `yaml:"telemetry"`
	Store     StoreConfig `yaml:"store"`
}

func defaults() Config {
	return Config{
		Collect: Collect{
			WorkingDir:     "./",
			CacheSize:      500_000,
			MaxThreads:     50,
			GlobalTimeout:  0,
			Retries:        3,
			HoursToCollect: 24,
			Duplicate:      1,
			ContentTypes:   map[string]bool{},
		},
		Telemetry: Telemetry{StatusChannel: "collector:status"},
	}
}

// Load reads a YAML config file from path, expanding ${VAR} references
// against the process environment before parsing, and applies defaults
// for every field the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	if cfg.Collect.WorkingDir == "" {
		cfg.Collect.WorkingDir = "./"
	}
	if cfg.Collect.CacheSize == 0 {
		cfg.Collect.CacheSize = 500_000
	}
	if cfg.Collect.MaxThreads == 0 {
		cfg.Collect.MaxThreads = 50
	}
	if cfg.Collect.Retries == 0 {
		cfg.Collect.Retries = 3
	}
	if cfg.Collect.HoursToCollect == 0 {
		cfg.Collect.HoursToCollect = 24
	}
	if cfg.Collect.Duplicate == 0 {
		cfg.Collect.Duplicate = 1
	}
	if cfg.Collect.HoursToCollect < 1 || cfg.Collect.HoursToCollect > 168 {
		return nil, fmt.Errorf("collect.hoursToCollect must be in 1..=168, got %d", cfg.Collect.HoursToCollect)
	}
	if cfg.Telemetry.StatusChannel == "" {
		cfg.Telemetry.StatusChannel = "collector:status"
	}

	return &cfg, nil
}

// EnabledContentTypes returns the configured content types with a true
// value, in the canonical fixed order.
func (c *Config) EnabledContentTypes() []string {
	order := []string{
		"Audit.General",
		"Audit.AzureActiveDirectory",
		"Audit.Exchange",
		"Audit.SharePoint",
		"DLP.All",
	}
	var enabled []string
	for _, ct := range order {
		if c.Collect.ContentTypes[ct] {
			enabled = append(enabled, ct)
		}
	}
	return enabled
}
