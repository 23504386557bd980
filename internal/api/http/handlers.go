package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/pipeline"
	"leaderboard-kinetics/internal/storage"
)

// IngestRequest is the body of POST /leaderboards/{tag}/ingest.
type IngestRequest struct {
	Snapshots []domain.Snapshot `json:"snapshots"`
}

// IngestResponse is returned by a successful ingest or preview.
type IngestResponse struct {
	CorrelationID string                    `json:"correlationId"`
	Tag           string                    `json:"tag"`
	Mode          pipeline.Mode             `json:"mode"`
	Summary       pipeline.Summary          `json:"summary"`
	Leaderboard   []domain.LeaderboardEntry `json:"leaderboard"`
}

// LeaderboardResponse is returned by GET /leaderboards/{tag}.
type LeaderboardResponse struct {
	Tag     string                    `json:"tag"`
	Count   int                       `json:"count"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
	Stage         string `json:"stage,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Health(r.Context()); err != nil {
			// Publishing is best effort; report it without failing the probe.
			status["publisher"] = err.Error()
		} else {
			status["publisher"] = "ok"
		}
	}
	writeJSON(w, code, status)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tags == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "leaderboard store cannot list tags", "", "")
		return
	}
	tags, err := s.deps.Tags.Tags(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error(), "", "")
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", "", "")
			return
		}
		limit = n
	}

	entries, err := s.deps.Pipeline.Leaderboard(r.Context(), tag)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{Tag: tag, Count: len(entries), Entries: entries})
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]

	if !s.limiter.Allow(tag) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate_limited", fmt.Sprintf("too many ingest requests for %q", tag), "", "")
		return
	}

	preview := false
	if raw := r.URL.Query().Get("preview"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_preview", "preview must be a boolean", "", "")
			return
		}
		preview = v
	}

	var req IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), "", "")
		return
	}

	run := s.deps.Pipeline.Ingest
	if preview {
		run = s.deps.Pipeline.Preview
	}
	res, err := run(r.Context(), tag, req.Snapshots)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{
		CorrelationID: res.CorrelationID,
		Tag:           res.Tag,
		Mode:          res.Mode,
		Summary:       res.Summary,
		Leaderboard:   res.Leaderboard,
	})
}

func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		code   = http.StatusInternalServerError
		kind   = "internal"
		runErr *pipeline.RunError
		stage  string
		corrID string
	)
	if errors.As(err, &runErr) {
		stage = runErr.Stage
		corrID = runErr.CorrelationID
	} else {
		corrID, _ = pipeline.CorrelationIDFrom(r.Context())
	}

	switch {
	case errors.Is(err, pipeline.ErrInvalidBatch), errors.Is(err, storage.ErrInvalidInput):
		code, kind = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, pipeline.ErrStorageUnavailable):
		code, kind = http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		code, kind = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		code, kind = 499, "canceled"
	}

	if code >= http.StatusInternalServerError {
		s.deps.Log.Error().Err(err).Str("request_id", corrID).Msg("request failed")
	}
	writeError(w, code, kind, err.Error(), corrID, stage)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, msg, corrID, stage string) {
	writeJSON(w, code, ErrorResponse{Error: kind, Message: msg, CorrelationID: corrID, Stage: stage})
}
