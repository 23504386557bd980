package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/kinetics"
	"leaderboard-kinetics/internal/observability"
	"leaderboard-kinetics/internal/pipeline"
	"leaderboard-kinetics/internal/storage/memory"
)

type fixture struct {
	server *Server
	boards *memory.LeaderboardStore
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	boards := memory.NewLeaderboardStore()
	engine, err := pipeline.New(pipeline.Options{
		History:      memory.NewHistoryStore(0),
		Leaderboards: boards,
		Windows:      kinetics.Windows{Velocity: 2, Acceleration: 1},
		MaxLength:    10,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	s := NewServer(cfg, Deps{
		Pipeline: engine,
		Tags:     boards,
		Metrics:  observability.NewMetrics("", reg),
		Gatherer: reg,
		Log:      zerolog.Nop(),
	})
	return &fixture{server: s, boards: boards, reg: reg}
}

func (f *fixture) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

const batchBody = `{"snapshots":[
	{"symbol":"AAPL","timestampMs":0,"pctChange":0.12,"volume":1000},
	{"symbol":"AAPL","timestampMs":600000,"pctChange":0.20,"volume":1400},
	{"symbol":"MSFT","timestampMs":600000,"pctChange":0.05,"volume":900}
]}`

func TestIngestAndRead(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodPost, "/leaderboards/gainers/ingest", batchBody, headerRequestID, "req-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get(headerRequestID))

	var ingest IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingest))
	assert.Equal(t, "req-1", ingest.CorrelationID)
	assert.Equal(t, pipeline.ModeIngest, ingest.Mode)
	require.Len(t, ingest.Leaderboard, 2)
	assert.Equal(t, "AAPL", ingest.Leaderboard[0].Symbol)
	assert.True(t, ingest.Leaderboard[1].WarmingUp)

	rec = f.do(http.MethodGet, "/leaderboards/gainers?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var board LeaderboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	assert.Equal(t, "gainers", board.Tag)
	assert.Equal(t, 1, board.Count)
	assert.Equal(t, "AAPL", board.Entries[0].Symbol)
	assert.Equal(t, 1, board.Entries[0].Rank)

	rec = f.do(http.MethodGet, "/leaderboards", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tags":["gainers"]}`, rec.Body.String())
}

func TestPreviewDoesNotPersist(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodPost, "/leaderboards/gainers/ingest?preview=true", batchBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var ingest IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingest))
	assert.Equal(t, pipeline.ModePreview, ingest.Mode)
	assert.False(t, ingest.Summary.Persisted)

	stored, err := f.boards.Load(context.Background(), "gainers")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGetMissingLeaderboardIsEmpty(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/leaderboards/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tag":"unknown","count":0,"entries":[]}`, rec.Body.String())
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, Config{MaxBodyBytes: 64})

	tests := []struct {
		name   string
		method string
		target string
		body   string
		kind   string
		stage  string
	}{
		{"malformed json", http.MethodPost, "/leaderboards/g/ingest", `{"snapshots":`, "invalid_body", ""},
		{"unknown field", http.MethodPost, "/leaderboards/g/ingest", `{"rows":[]}`, "invalid_body", ""},
		{"body too large", http.MethodPost, "/leaderboards/g/ingest", `{"snapshots":[` + strings.Repeat(" ", 100) + `]}`, "invalid_body", ""},
		{"bad preview flag", http.MethodPost, "/leaderboards/g/ingest?preview=maybe", `{}`, "invalid_preview", ""},
		{"empty symbol", http.MethodPost, "/leaderboards/g/ingest", `{"snapshots":[{"symbol":""}]}`, "invalid_input", pipeline.StagePrepareBatch},
		{"bad limit", http.MethodGet, "/leaderboards/g?limit=-1", "", "invalid_limit", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.target, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Error)
			assert.Equal(t, tt.stage, resp.Stage)
		})
	}
}

type brokenPipeline struct{ err error }

func (b brokenPipeline) Ingest(context.Context, string, []domain.Snapshot) (*pipeline.Result, error) {
	return nil, b.err
}

func (b brokenPipeline) Preview(context.Context, string, []domain.Snapshot) (*pipeline.Result, error) {
	return nil, b.err
}

func (b brokenPipeline) Leaderboard(context.Context, string) ([]domain.LeaderboardEntry, error) {
	return nil, b.err
}

func TestStorageFailureMapsTo503(t *testing.T) {
	runErr := &pipeline.RunError{
		CorrelationID: "c-1",
		Tag:           "g",
		Stage:         pipeline.StageMergeStreaks,
		Err:           errors.Join(pipeline.ErrStorageUnavailable, errors.New("dial tcp: refused")),
	}
	s := NewServer(Config{}, Deps{Pipeline: brokenPipeline{err: runErr}, Log: zerolog.Nop()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/leaderboards/g/ingest", bytes.NewBufferString(`{"snapshots":[]}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "storage_unavailable", resp.Error)
	assert.Equal(t, "c-1", resp.CorrelationID)
	assert.Equal(t, pipeline.StageMergeStreaks, resp.Stage)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboards", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestIngestRateLimitPerTag(t *testing.T) {
	f := newFixture(t, Config{IngestRatePerSec: 0.001, IngestBurst: 1})

	rec := f.do(http.MethodPost, "/leaderboards/a/ingest", `{"snapshots":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/leaderboards/a/ingest", `{"snapshots":[]}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = f.do(http.MethodPost, "/leaderboards/b/ingest", `{"snapshots":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code, "other tags have their own bucket")
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	f.do(http.MethodPost, "/leaderboards/gainers/ingest", batchBody)

	rec = f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `leaderboard_kinetics_pipeline_runs_total{mode="ingest",status="success"} 1`)
	assert.Contains(t, body, `route="/leaderboards/{tag}/ingest"`)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTagLimiterNilAllows(t *testing.T) {
	var l *tagLimiter
	assert.True(t, l.Allow("x"))
	assert.Nil(t, newTagLimiter(0, 5))
}
