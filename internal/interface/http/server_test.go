package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/application/command"
	"github.com/alem-hub/skill-progression/internal/application/query"
	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/projections"
	"github.com/alem-hub/skill-progression/internal/infrastructure/scheduler"
	"github.com/alem-hub/skill-progression/internal/interface/http/handlers"
	"github.com/alem-hub/skill-progression/pkg/logger"
	"github.com/alem-hub/skill-progression/pkg/ratelimit"
	"github.com/alem-hub/skill-progression/pkg/timeutil"
)

const testToken = "s3cret"

func node(id string, capacity int64, children ...skilltree.NodeDefinition) skilltree.NodeDefinition {
	return skilltree.NodeDefinition{ID: id, Capacity: capacity, Children: children}
}

type fixture struct {
	book   *ledger.Book
	view   *projections.ProgressionView
	health *handlers.HealthChecker
	jobs   *fakeJobs
	server *Server
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	root := node("main", 10000,
		node("farming", 1000,
			node("farming.crops", 1000, node("farming.crops.wheat", 1000)),
		),
		node("mining", 1000, node("mining.ore", 1000)),
	)
	reg := skilltree.NewRegistry()
	require.NoError(t, reg.Register(skilltree.MustBuildTree(skilltree.TreeDefinition{Name: "main", Weight: 1, Root: &root})))

	book := ledger.NewBook(nil)
	analyzer := progression.NewAnalyzer(reg, progression.DefaultTuning(), nil)
	aggregator := progression.NewAggregator(reg, nil)
	view := projections.NewProgressionView()
	clock := timeutil.Fixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	health := handlers.NewHealthChecker("test", clock)
	jobs := &fakeJobs{}

	f := &fixture{book: book, view: view, health: health, jobs: jobs}
	f.server = NewServer(Config{AdminToken: token, Version: "test"}, Dependencies{
		AnalyzeActor:   query.NewAnalyzeActorHandler(book, analyzer),
		GetMultipliers: query.NewGetMultipliersHandler(book, reg, analyzer),
		AggregateXP:    query.NewAggregateXPHandler(book, reg, analyzer, aggregator),
		Projection:     view,
		Specialists:    view,
		GrantXP:        command.NewGrantXPHandler(book, reg, nil, command.GrantXPHandlerConfig{}),
		SetXP:          command.NewSetXPHandler(book, reg, nil),
		ResetActor:     command.NewResetActorHandler(book, nil, aggregator, view, nil),
		Jobs:           jobs,
		Health:         health,
		Metrics:        prometheus.NewRegistry(),
		Logger:         logger.New(logger.Options{Output: io.Discard}),
		Clock:          clock,
	})
	return f
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func (f *fixture) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (f *fixture) grant(t *testing.T, actor shared.ActorID, skill shared.SkillID, amount shared.XP) {
	t.Helper()
	l, err := f.book.GetOrLoad(context.Background(), actor)
	require.NoError(t, err)
	_, err = l.Add(skill, amount)
	require.NoError(t, err)
}

type fakeJobs struct {
	runErr error
	ran    []string
}

func (j *fakeJobs) ListJobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{
		Name:     "flush_ledgers",
		Enabled:  true,
		Schedule: "@every 30s",
		LastRun:  time.Date(2026, 3, 1, 11, 57, 0, 0, time.UTC),
		RunCount: 4,
	}}
}

func (j *fakeJobs) RunNow(_ context.Context, name string) (scheduler.JobResult, error) {
	if name != "flush_ledgers" {
		return scheduler.JobResult{}, fmt.Errorf("%w: %s", scheduler.ErrJobNotFound, name)
	}
	if errors.Is(j.runErr, scheduler.ErrJobRunning) {
		return scheduler.JobResult{}, j.runErr
	}
	j.ran = append(j.ran, name)
	return scheduler.JobResult{RunID: "run-1", JobName: name, Error: j.runErr}, j.runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_HealthChecks(t *testing.T) {
	f := newFixture(t, "")

	rec, env := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	f.health.AddCheck("store", func(context.Context) error { return errors.New("down") })
	rec, env = f.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)

	rec, _ = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestLogCarriesRequestID(t *testing.T) {
	f := newFixture(t, "")
	var buf bytes.Buffer
	f.server.logger = logger.New(logger.Options{Output: &buf})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	var entry logger.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry.Message)
	assert.Equal(t, "req-42", entry.Fields[logger.RequestIDKey])
}

// ══════════════════════════════════════════════════════════════════════════════
// READ API
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_Analysis(t *testing.T) {
	f := newFixture(t, "")
	f.grant(t, "alice", "farming.crops.wheat", 100)

	rec, env := f.do(t, http.MethodGet, "/api/v1/actors/alice/analysis", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var dto query.ActorAnalysisDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "alice", dto.ActorID)
	require.Len(t, dto.Groups, 1)
	assert.Equal(t, "farming", dto.Groups[0].Key)
}

func TestServer_ValidationErrors(t *testing.T) {
	f := newFixture(t, "")

	tests := []struct {
		name string
		path string
	}{
		{"missing skill", "/api/v1/actors/alice/multipliers"},
		{"malformed actor", "/api/v1/actors/bad!id/analysis"},
		{"malformed honorary", "/api/v1/actors/alice/aggregate?skill=farming&honorary=main"},
		{"non-integer honorary", "/api/v1/actors/alice/aggregate?skill=farming&honorary=main:x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(t, http.MethodGet, tt.path, "", "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "validation_failed", env.Error.Code)
		})
	}
}

func TestServer_ProjectionAndSpecialists(t *testing.T) {
	f := newFixture(t, "")

	rec, env := f.do(t, http.MethodGet, "/api/v1/actors/alice/projection", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)

	rec, env = f.do(t, http.MethodGet, "/api/v1/specialists", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestServer_UnconfiguredRoute(t *testing.T) {
	f := newFixture(t, "")

	rec, env := f.do(t, http.MethodGet, "/api/v1/actors/alice/weights", "", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "not_configured", env.Error.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_AdminGuard(t *testing.T) {
	body := `{"skill_id":"farming.crops.wheat","amount":5}`

	rec, _ := newFixture(t, "").do(t, http.MethodPost, "/api/v1/actors/alice/grants", body, "anything")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f := newFixture(t, testToken)
	rec, _ = f.do(t, http.MethodPost, "/api/v1/actors/alice/grants", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/v1/actors/alice/grants", body, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_WriteRateLimit(t *testing.T) {
	f := newFixture(t, testToken)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.server.limiter = ratelimit.New(ratelimit.Config{Rate: 1, Burst: 2, Now: func() time.Time { return now }})

	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, http.MethodGet, "/admin/jobs", "", testToken)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := f.do(t, http.MethodGet, "/admin/jobs", "", testToken)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", env.Error.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	// Reads are not limited.
	rec, _ = f.do(t, http.MethodGet, "/api/v1/actors/alice/analysis", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_GrantSetReset(t *testing.T) {
	f := newFixture(t, testToken)

	rec, env := f.do(t, http.MethodPost, "/api/v1/actors/alice/grants", `{"skill_id":"farming.crops.wheat","amount":30}`, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var granted xpResponse
	require.NoError(t, json.Unmarshal(env.Data, &granted))
	assert.Equal(t, int64(0), granted.Previous)
	assert.Equal(t, int64(30), granted.Total)
	assert.True(t, granted.Known)

	rec, env = f.do(t, http.MethodPut, "/api/v1/actors/alice/skills/farming.crops.wheat", `{"amount":12,"reason":"audit"}`, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var set xpResponse
	require.NoError(t, json.Unmarshal(env.Data, &set))
	assert.Equal(t, int64(30), set.Previous)
	assert.Equal(t, int64(12), set.Total)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/actors/alice", "", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	_, loaded := f.book.Get("alice")
	assert.False(t, loaded)
}

func TestServer_GrantRejectsBadInput(t *testing.T) {
	f := newFixture(t, testToken)

	rec, env := f.do(t, http.MethodPost, "/api/v1/actors/alice/grants", `{"skill_id":"mining","amount":-1}`, testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/actors/alice/grants", `{"skill":"mining"}`, testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", env.Error.Code)
}

func TestServer_Jobs(t *testing.T) {
	f := newFixture(t, testToken)

	rec, env := f.do(t, http.MethodGet, "/admin/jobs", "", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []jobDTO
	require.NoError(t, json.Unmarshal(env.Data, &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "3m ago", jobs[0].LastRun)

	rec, _ = f.do(t, http.MethodPost, "/admin/jobs/flush_ledgers/run", "", testToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"flush_ledgers"}, f.jobs.ran)

	rec, env = f.do(t, http.MethodPost, "/admin/jobs/nope/run", "", testToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)

	f.jobs.runErr = fmt.Errorf("%w: flush_ledgers", scheduler.ErrJobRunning)
	rec, _ = f.do(t, http.MethodPost, "/admin/jobs/flush_ledgers/run", "", testToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_JobFailureIsReported(t *testing.T) {
	f := newFixture(t, testToken)
	f.jobs.runErr = errors.New("2 of 3 ledgers failed")

	rec, env := f.do(t, http.MethodPost, "/admin/jobs/flush_ledgers/run", "", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "2 of 3 ledgers failed", body["error"])
}

func TestParseHonorary(t *testing.T) {
	got, err := parseHonorary("main:40, seasonal:5")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"main": 40, "seasonal": 5}, got)

	got, err = parseHonorary("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseHonorary(":4")
	assert.Error(t, err)
}
