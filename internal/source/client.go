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

// Package source pulls message descriptions from a remote mailbox HTTP
// API using OAuth2 client credentials. Used by the backfill command to
// seed the store on new deployments.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/mailstore/internal/config"
	"github.com/bcem/mailstore/internal/ingest"
)

// Client retrieves messages from one configured mailbox source.
type Client struct {
	httpClient *http.Client
	baseURL    string
	alias      string
}

// NewClient builds a source client whose HTTP requests carry OAuth2
// client-credentials tokens.
func NewClient(ctx context.Context, cfg config.SourceConfig) *Client {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	return &Client{
		httpClient: creds.Client(ctx),
		baseURL:    cfg.BaseURL,
		alias:      cfg.Alias,
	}
}

// Alias identifies the source in logs and summaries.
func (c *Client) Alias() string { return c.alias }

// ListMessages retrieves all messages sent since the given time, following
// pagination until the source is exhausted.
func (c *Client) ListMessages(ctx context.Context, since time.Time) ([]ingest.Message, error) {
	var messages []ingest.Message

	next := fmt.Sprintf("%s/messages?since=%s", c.baseURL,
		url.QueryEscape(since.UTC().Format(time.RFC3339)))

	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list messages from %s: %w", c.alias, err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("source %s returned HTTP %d", c.alias, resp.StatusCode)
		}

		page, err := parsePage(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("parse message page: %w", err)
		}

		messages = append(messages, page.messages...)
		next = page.next
	}

	slog.Info("listed messages from source", "source", c.alias, "count", len(messages))
	return messages, nil
}
