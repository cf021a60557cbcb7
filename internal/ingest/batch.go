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

package ingest

import (
	"context"
	"log/slog"
)

// ItemError records one failed message in a batch.
type ItemError struct {
	EmailID string `json:"email_id"`
	Error   string `json:"error"`
}

// BatchResult aggregates per-item outcomes of a batch ingestion.
type BatchResult struct {
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Failed  int         `json:"failed"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// IngestBatch runs N independent ingestions. There is no cross-item
// transaction: one message's failure is recorded and does not roll back
// or abort its siblings.
func (ing *Ingestor) IngestBatch(ctx context.Context, msgs []Message) BatchResult {
	var res BatchResult
	for _, m := range msgs {
		_, created, err := ing.Ingest(ctx, m)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ItemError{EmailID: m.EmailID, Error: err.Error()})
			slog.Warn("batch item failed", "email_id", m.EmailID, "error", err)
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res
}
