package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alem-hub/arena-engine/internal/application/command"
	"github.com/alem-hub/arena-engine/internal/application/query"
	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/internal/interface/http/handlers"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

type achievementDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type statsDTO struct {
	XP                  uint64 `json:"xp"`
	RankPoints          uint64 `json:"rankPoints"`
	GamesPlayed         uint32 `json:"gamesPlayed"`
	Wins                uint32 `json:"wins"`
	CompletedChallenges int    `json:"completedChallenges"`
	Score               uint64 `json:"score"`
	Training            bool   `json:"training"`
}

type submitResponse struct {
	EffectiveXP          uint64           `json:"effectiveXP"`
	NewLevel             arena.Level      `json:"newLevel"`
	UnlockedAchievements []achievementDTO `json:"unlockedAchievements"`
	Stats                statsDTO         `json:"stats"`
}

type statusResponse struct {
	Profile  query.ProfileView `json:"profile"`
	Scope    string            `json:"scope"`
	Position *int              `json:"position"`
	Score    uint64            `json:"score"`
}

func newSubmitResponse(res *command.SubmitSessionResult) submitResponse {
	unlocked := make([]achievementDTO, len(res.UnlockedAchievements))
	for i, a := range res.UnlockedAchievements {
		unlocked[i] = achievementDTO{ID: a.ID, Title: a.Title, Description: a.Description}
	}
	return submitResponse{
		EffectiveXP:          res.EffectiveXP,
		NewLevel:             res.NewLevel,
		UnlockedAchievements: unlocked,
		Stats: statsDTO{
			XP:                  res.Stats.XP,
			RankPoints:          res.Stats.RankPoints,
			GamesPlayed:         res.Stats.GamesPlayed,
			Wins:                res.Stats.Wins,
			CompletedChallenges: res.Stats.CompletedChallenges,
			Score:               res.Stats.Score,
			Training:            res.Stats.Training,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSubmit handles POST /arena/submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, _ := handlers.UserIDFromContext(r.Context())

	var sub arena.SessionSubmission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body is not a valid session submission")
		return
	}

	res, err := s.deps.SubmitSession.Handle(r.Context(), command.SubmitSessionCommand{
		UserID:     userID,
		ClientIP:   s.clientIP(r),
		Submission: sub,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmitResponse(res))
}

// handleRanking handles GET /arena/ranking.
func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	res, err := s.deps.GetRanking.Handle(r.Context(), query.GetRankingQuery{
		Scope:   q.Get("scope"),
		Country: q.Get("country"),
		State:   q.Get("state"),
		Limit:   limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Arena-Source", string(res.Source))
	writeJSON(w, http.StatusOK, res.Entries)
}

// handleStatus handles GET /arena/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := handlers.UserIDFromContext(r.Context())
	q := r.URL.Query()

	res, err := s.deps.GetStatus.Handle(r.Context(), query.GetArenaStatusQuery{
		UserID:  userID,
		Scope:   q.Get("scope"),
		Country: q.Get("country"),
		State:   q.Get("state"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Profile:  res.Profile,
		Scope:    res.Scope.Key(),
		Position: res.Rank.Position,
		Score:    res.Rank.Score,
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"healthy": true, "version": s.config.Version})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeError maps domain error kinds to status codes. Anything unclassified
// is logged and reported as a 500 without details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *shared.DomainError
	message := "Request rejected"
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}

	switch {
	case errors.Is(err, shared.ErrSubmitRateExceeded):
		writeRateLimited(w, s.config.SubmitRateWindow)
	case errors.Is(err, shared.ErrRateLimited):
		writeRateLimited(w, s.config.APIRateWindow)
	case errors.Is(err, shared.ErrLockedOut):
		writeJSONError(w, http.StatusForbidden, "locked_out", message)
	case shared.IsAntiCheat(err):
		writeJSONError(w, http.StatusBadRequest, "anti_cheat_rejected", message)
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", message)
	case errors.Is(err, shared.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
	case shared.IsConflict(err):
		writeJSONError(w, http.StatusConflict, "conflict", "Profile is busy, retry the submission")
	case errors.Is(err, shared.ErrServiceUnavailable):
		logger.FromContext(r.Context()).Warn("dependency unavailable",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		w.Header().Set("Retry-After", "5")
		writeJSONError(w, http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable, retry shortly")
	default:
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

// unauthorized is the JWTAuth 401 writer.
func unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Debug("unauthorized request", logger.Err(err))
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
}

// AuthOptions returns the JWTAuth options that keep 401 bodies consistent
// with the rest of the API.
func AuthOptions(issuer string) []handlers.JWTAuthOption {
	opts := []handlers.JWTAuthOption{handlers.WithUnauthorized(unauthorized)}
	if issuer != "" {
		opts = append(opts, handlers.WithIssuer(issuer))
	}
	return opts
}
