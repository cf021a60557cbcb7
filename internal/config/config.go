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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceConfig holds credentials for one remote mailbox API used by the
// backfill command.
type SourceConfig struct {
	Alias        string `yaml:"alias"`
	BaseURL      string `yaml:"base_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config holds all configuration for the mail store service.
type Config struct {
	// Postgres
	DatabaseURL string

	// Redis (optional; empty disables the dedup filter)
	RedisURL string
	DedupTTL time.Duration

	// Identity resolution: addresses on these domains are not external.
	InternalDomains []string

	// Statistics
	StatsTopN int

	// Intake server
	Port int

	// Remote mailbox sources for backfill
	Sources []SourceConfig
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	InternalDomains []string `yaml:"internal_domains"`
	Stats           struct {
		TopN int `yaml:"top_n"`
	} `yaml:"stats"`
	Sources []SourceConfig `yaml:"sources"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is
// fine as long as DATABASE_URL is set in the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL:     firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DedupTTL:        envOrDefaultDuration("DEDUP_TTL", 24*time.Hour),
		InternalDomains: raw.InternalDomains,
		StatsTopN:       raw.Stats.TopN,
		Port:            envOrDefaultInt("PORT", 8080),
	}

	if domains := os.Getenv("INTERNAL_DOMAINS"); domains != "" {
		cfg.InternalDomains = splitAndTrim(domains)
	}
	if topN := envOrDefaultInt("STATS_TOP_N", 0); topN > 0 {
		cfg.StatsTopN = topN
	}

	// Skip sources with incomplete credentials (commented out in YAML)
	for _, s := range raw.Sources {
		if s.BaseURL == "" || s.TokenURL == "" || s.ClientID == "" || s.ClientSecret == "" {
			continue
		}
		if s.Alias == "" {
			s.Alias = s.ClientID
		}
		cfg.Sources = append(cfg.Sources, s)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database URL configured — set database.url in config.yaml or DATABASE_URL")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitAndTrim(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
