package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vulnlab"
	"vulnlab/internal/compose"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "err", err)
	}
}

// opResponse is the envelope for lifecycle operations. Failures still
// answer 200; success carries the verdict.
type opResponse struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	PortConflict bool   `json:"port_conflict,omitempty"`
}

func opResult(err error) opResponse {
	if err == nil {
		return opResponse{Success: true}
	}
	var opErr *compose.OpError
	if errors.As(err, &opErr) {
		return opResponse{Error: opErr.Diagnostic, PortConflict: opErr.PortConflict}
	}
	return opResponse{Error: err.Error()}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	cacheParam := r.URL.Query().Get("cache")
	if cacheParam == "" {
		cacheParam = "true"
	}
	force := !strings.EqualFold(cacheParam, "true")

	snap, err := s.registry.List(r.Context(), force)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if snap == nil {
		snap = vulnlab.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEnvDetail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	detail, err := s.registry.Get(r.Context(), name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type lifecycleRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, opResponse{Error: "invalid request body"})
		return
	}
	writeJSON(w, http.StatusOK, opResult(s.registry.Start(r.Context(), req.Name)))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, opResponse{Error: "invalid request body"})
		return
	}
	writeJSON(w, http.StatusOK, opResult(s.registry.Stop(r.Context(), req.Name)))
}

func (s *Server) handleCheckImages(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	check := s.registry.CheckImages(r.Context(), name)

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		compose.ImageCheck
	}{Success: true, ImageCheck: check})
}

// handlePullStream runs an image pull and forwards its output as SSE:
// one `log` event per line, a final `done` event when the pull finishes.
// Problems surface as log lines so EventSource consumers need no second
// error channel.
func (s *Server) handlePullStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(event, data string) {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	name := r.URL.Query().Get("name")
	stream, err := s.registry.Pull(r.Context(), name)
	if err != nil {
		emit("log", "[Error] "+err.Error())
		emit("done", "ok")
		return
	}

	for line := range stream.Lines() {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		emit("log", line)
	}
	if err := stream.Err(); err != nil {
		emit("log", "[Error] "+err.Error())
	}
	emit("done", "ok")
}

func (s *Server) handleWaitReady(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	timeout := defaultReadyTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	type readyResponse struct {
		Success bool `json:"success"`
		Ready   bool `json:"ready"`
		Port    int  `json:"port,omitempty"`
	}

	ready, err := s.registry.WaitReady(r.Context(), name, timeout)
	if err != nil {
		// Unknown environments and cancelled waits both answer
		// not-ready rather than erroring.
		writeJSON(w, http.StatusOK, readyResponse{Success: true})
		return
	}
	writeJSON(w, http.StatusOK, readyResponse{Success: true, Ready: ready.Ready, Port: ready.Port})
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	containers, err := s.registry.Running(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"containers": containers,
	})
}

func (s *Server) handleRefreshCache(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(snap),
	})
}
