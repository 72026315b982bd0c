package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/skill-progression/internal/application/command"
	"github.com/alem-hub/skill-progression/internal/application/query"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/infrastructure/scheduler"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
	"github.com/alem-hub/skill-progression/pkg/logger"
	"github.com/alem-hub/skill-progression/pkg/timeutil"
)

const maxBodyBytes = 1 << 16

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": s.deps.Health.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ API
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.deps.AnalyzeActor == nil {
		notConfigured(w, r)
		return
	}
	dto, err := s.deps.AnalyzeActor.Handle(r.Context(), query.AnalyzeActorQuery{ActorID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleMultipliers(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetMultipliers == nil {
		notConfigured(w, r)
		return
	}
	skill := r.URL.Query().Get("skill")
	if skill == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation_failed", "query parameter skill is required")
		return
	}
	dto, err := s.deps.GetMultipliers.Handle(r.Context(), query.GetMultipliersQuery{
		ActorID: r.PathValue("id"),
		SkillID: skill,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetWeights == nil {
		notConfigured(w, r)
		return
	}
	dto, err := s.deps.GetWeights.Handle(r.Context(), query.GetWeightsQuery{ActorID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleAggregate serves GET /api/v1/actors/{id}/aggregate?skill=a.b&honorary=main:40,seasonal:5&multipliers=true
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if s.deps.AggregateXP == nil {
		notConfigured(w, r)
		return
	}
	skill := r.URL.Query().Get("skill")
	if skill == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation_failed", "query parameter skill is required")
		return
	}
	honorary, err := parseHonorary(r.URL.Query().Get("honorary"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	dto, err := s.deps.AggregateXP.Handle(r.Context(), query.AggregateXPQuery{
		ActorID:          r.PathValue("id"),
		SkillID:          skill,
		Honorary:         honorary,
		ApplyMultipliers: queryBool(r, "multipliers"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	if s.deps.Projection == nil {
		notConfigured(w, r)
		return
	}
	actor, err := shared.NewActorID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state, found, err := s.deps.Projection.Get(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "no projection for actor "+actor.String())
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

func (s *Server) handleSpecialistGroups(w http.ResponseWriter, r *http.Request) {
	if s.deps.Specialists == nil {
		notConfigured(w, r)
		return
	}
	writeJSON(w, r, http.StatusOK, s.deps.Specialists.Groups())
}

func (s *Server) handleSpecialists(w http.ResponseWriter, r *http.Request) {
	if s.deps.Specialists == nil {
		notConfigured(w, r)
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 500 {
		limit = 20
	}
	writeJSON(w, r, http.StatusOK, s.deps.Specialists.TopSpecialists(r.PathValue("group"), limit))
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE API
// ══════════════════════════════════════════════════════════════════════════════

type grantRequest struct {
	SkillID string `json:"skill_id"`
	Amount  int64  `json:"amount"`
}

type xpResponse struct {
	ActorID  string `json:"actor_id"`
	SkillID  string `json:"skill_id"`
	Previous int64  `json:"previous"`
	Total    int64  `json:"total"`
	Known    bool   `json:"known"`
	Dynamic  bool   `json:"dynamic,omitempty"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	if s.deps.GrantXP == nil {
		notConfigured(w, r)
		return
	}
	var req grantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SkillID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation_failed", "skill_id is required")
		return
	}

	res, err := s.deps.GrantXP.Handle(r.Context(), command.GrantXPCommand{
		ActorID:       r.PathValue("id"),
		SkillID:       req.SkillID,
		Amount:        req.Amount,
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, xpResponse{
		ActorID:  res.ActorID.String(),
		SkillID:  res.SkillID.String(),
		Previous: (res.Total - res.Amount).Int64(),
		Total:    res.Total.Int64(),
		Known:    res.Known,
		Dynamic:  res.Dynamic,
	})
}

type setRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) handleSetXP(w http.ResponseWriter, r *http.Request) {
	if s.deps.SetXP == nil {
		notConfigured(w, r)
		return
	}
	var req setRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.deps.SetXP.Handle(r.Context(), command.SetXPCommand{
		ActorID:       r.PathValue("id"),
		SkillID:       r.PathValue("skill"),
		Amount:        req.Amount,
		Reason:        req.Reason,
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, xpResponse{
		ActorID:  res.ActorID.String(),
		SkillID:  res.SkillID.String(),
		Previous: res.Previous.Int64(),
		Total:    res.Current.Int64(),
		Known:    res.Known,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.deps.ResetActor == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.ResetActor.Handle(r.Context(), command.ResetActorCommand{
		ActorID:       r.PathValue("id"),
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Warn("actor reset", logger.ActorID(res.ActorID.String()), logger.Int("skills", res.SkillsDropped))
	writeJSON(w, r, http.StatusOK, map[string]any{
		"actor_id":       res.ActorID.String(),
		"skills_dropped": res.SkillsDropped,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleReloadTaxonomy(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReloadTaxonomy == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.ReloadTaxonomy.Handle(r.Context(), command.ReloadTaxonomyCommand{
		Force:         queryBool(r, "force"),
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"digest":  res.Digest,
		"trees":   res.Trees,
		"nodes":   res.Nodes,
		"skipped": res.Skipped,
	})
}

type jobDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schedule    string `json:"schedule"`
	Enabled     bool   `json:"enabled"`
	Running     bool   `json:"running"`
	LastRun     string `json:"last_run"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	NextRunAt   string `json:"next_run_at,omitempty"`
	Runs        int64  `json:"runs"`
	Failures    int64  `json:"failures"`
	Skipped     int64  `json:"skipped"`
	LastError   string `json:"last_error,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		notConfigured(w, r)
		return
	}
	now := s.now()
	infos := s.deps.Jobs.ListJobs()
	out := make([]jobDTO, 0, len(infos))
	for _, info := range infos {
		dto := jobDTO{
			Name:        info.Name,
			Description: info.Description,
			Schedule:    info.Schedule,
			Enabled:     info.Enabled,
			Running:     info.Running,
			LastRun:     timeutil.FormatRelative(info.LastRun, now),
			LastRunAt:   timeutil.FormatRFC3339(info.LastRun),
			NextRunAt:   timeutil.FormatRFC3339(info.NextRun),
			Runs:        info.RunCount,
			Failures:    info.FailCount,
			Skipped:     info.SkipCount,
		}
		if info.LastResult != nil && info.LastResult.Error != nil {
			dto.LastError = info.LastResult.Error.Error()
		}
		out = append(out, dto)
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.Jobs.RunNow(r.Context(), r.PathValue("name"))
	if errors.Is(err, scheduler.ErrJobNotFound) || errors.Is(err, scheduler.ErrJobRunning) {
		s.writeError(w, r, err)
		return
	}

	body := map[string]any{
		"run_id":   res.RunID,
		"job":      res.JobName,
		"duration": res.Duration.String(),
		"success":  res.Success(),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, r, http.StatusOK, body)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// writeError maps domain and infrastructure errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, scheduler.ErrJobNotFound):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSONError(w, r, http.StatusConflict, "conflict", err.Error())
	case circuitbreaker.IsRejected(err):
		writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		s.logger.WithRequestID(requestID(r.Context())).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "request failed")
	}
}

func notConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_configured", "endpoint is not configured on this worker")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

// parseHonorary parses "main:40,seasonal:5".
func parseHonorary(raw string) (map[string]int64, error) {
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]int64)
	for _, part := range strings.Split(raw, ",") {
		tree, val, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || tree == "" {
			return nil, errors.New("honorary must look like tree:xp,tree:xp")
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, errors.New("honorary xp of " + tree + " is not an integer")
		}
		out[tree] = n
	}
	return out, nil
}
