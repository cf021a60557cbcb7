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

// Package intake exposes the ingestion primitive over HTTP. It is a thin
// JSON shim: one message per request on /v1/messages, N independent
// messages on /v1/messages/batch. Full REST semantics (auth, pagination,
// resource CRUD) live in the surrounding system.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bcem/mailstore/internal/ingest"
	"github.com/bcem/mailstore/internal/models"
	"github.com/bcem/mailstore/internal/stats"
)

// Ingestor is the slice of the orchestrator the handler needs. Narrowed
// to an interface so tests can substitute a fake.
type Ingestor interface {
	Ingest(ctx context.Context, m ingest.Message) (*models.Email, bool, error)
	IngestBatch(ctx context.Context, msgs []ingest.Message) ingest.BatchResult
}

// StatsProvider serves the read side of the statistics endpoints.
type StatsProvider interface {
	GetStatistics(ctx context.Context, dateFrom, dateTo *time.Time) (*stats.Statistics, error)
	GetActivityTimeline(ctx context.Context, days int) ([]stats.DateCount, error)
}

// Handler serves message intake requests.
type Handler struct {
	ingestor Ingestor
	stats    StatsProvider
	healthy  func(ctx context.Context) error
}

// NewHandler creates an intake handler. stats and healthy may be nil;
// the corresponding endpoints then respond 404 and 200 respectively.
func NewHandler(ingestor Ingestor, stats StatsProvider, healthy func(ctx context.Context) error) *Handler {
	return &Handler{ingestor: ingestor, stats: stats, healthy: healthy}
}

// ServeMessage handles POST /v1/messages: ingest a single message.
// Responds 201 when a new email was created and 200 when an existing one
// was updated, so callers can distinguish the two.
func (h *Handler) ServeMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var m ingest.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	e, created, err := h.ingestor.Ingest(r.Context(), m)
	if err != nil {
		slog.Error("ingestion failed", "email_id", m.EmailID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, e)
}

// ServeBatch handles POST /v1/messages/batch: N independent ingestions
// with per-item failure isolation. Always responds 200 with the result
// counts; item errors are reported in the body.
func (h *Handler) ServeBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Messages []ingest.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	res := h.ingestor.IngestBatch(r.Context(), payload.Messages)
	writeJSON(w, http.StatusOK, res)
}

// ServeStats handles GET /v1/stats. Optional date_from and date_to
// query parameters (RFC 3339) bound the aggregates.
func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.stats == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	dateFrom, err := parseTimeParam(r, "date_from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dateTo, err := parseTimeParam(r, "date_to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.stats.GetStatistics(r.Context(), dateFrom, dateTo)
	if err != nil {
		slog.Error("statistics query failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ServeTimeline handles GET /v1/stats/timeline?days=N.
func (h *Handler) ServeTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.stats == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid days parameter: %v", err))
			return
		}
		days = n
	}

	timeline, err := h.stats.GetActivityTimeline(r.Context(), days)
	if err != nil {
		slog.Error("timeline query failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func parseTimeParam(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter: %v", key, err)
	}
	return &t, nil
}

// ServeHealth handles GET /health.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if h.healthy != nil {
		if err := h.healthy(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the intake HTTP server on the given port. It binds the
// port immediately and signals readiness via the returned channel before
// accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", handler.ServeMessage)
	mux.HandleFunc("/v1/messages/batch", handler.ServeBatch)
	mux.HandleFunc("/v1/stats", handler.ServeStats)
	mux.HandleFunc("/v1/stats/timeline", handler.ServeTimeline)
	mux.HandleFunc("/health", handler.ServeHealth)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind intake port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("intake server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("intake server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("intake server error", "error", err)
		}
	}()

	return ready, nil
}
