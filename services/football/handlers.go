// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package football

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/GridironAI/gridiron/services/football/datatypes"
	"github.com/GridironAI/gridiron/services/football/routing"
	"github.com/GridironAI/gridiron/services/football/store"
)

// teamCodeRe matches a franchise code like "KC" or "PHI". Codes are
// case-insensitive on input; the service uppercases before lookup.
var teamCodeRe = regexp.MustCompile(`^[A-Za-z]{2,3}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("teamcode", func(fl validator.FieldLevel) bool {
			return teamCodeRe.MatchString(fl.Field().String())
		})
	}
}

// =============================================================================
// Request / Response Types
// =============================================================================

// AskRequest is the POST /v1/football/ask body.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question" binding:"required,min=1,max=2000"`

	// FavoriteTeam and PreferredSeason update the session's defaults
	// before the question is resolved.
	FavoriteTeam    string `json:"favorite_team,omitempty" binding:"omitempty,teamcode"`
	PreferredSeason int    `json:"preferred_season,omitempty" binding:"omitempty,min=1999,max=2100"`
}

// RoutingFailureResponse asks the caller for the missing information.
type RoutingFailureResponse struct {
	Error        string   `json:"error"`
	Code         string   `json:"code"`
	BestPipeline string   `json:"best_pipeline,omitempty"`
	MissingSlots []string `json:"missing_slots,omitempty"`
}

// ErrorResponse is the generic failure body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RateLimitResponse reports the session's tier-3 budget.
type RateLimitResponse struct {
	SessionID string `json:"session_id"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// =============================================================================
// Handlers
// =============================================================================

// Handlers binds HTTP requests to the Service. Transport stays thin: binding,
// validation, and status mapping only.
type Handlers struct {
	svc    *Service
	quota  *routing.Quota
	logger *slog.Logger
}

// NewHandlers creates the handler set. quota may be nil when tier 3 is
// disabled; the ratelimit endpoint then reports unlimited.
func NewHandlers(svc *Service, quota *routing.Quota, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, quota: quota, logger: logger}
}

// HandleAsk handles POST /v1/football/ask.
//
// Response:
//
//	200 OK: Answer
//	400 Bad Request: body validation failed
//	422 Unprocessable Entity: RoutingFailureResponse naming missing slots
//	404 Not Found: the named team or situation has no stored aggregates
//	500 Internal Server Error: pipeline failure
func (h *Handlers) HandleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	logger := h.logger.With(slog.String("session_id", req.SessionID))

	if req.FavoriteTeam != "" || req.PreferredSeason != 0 {
		if _, err := h.svc.SetPreferences(c.Request.Context(), req.SessionID, req.FavoriteTeam, req.PreferredSeason); err != nil {
			logger.Error("setting preferences failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to store preferences", Code: "PREFERENCES_FAILED"})
			return
		}
	}

	answer, err := h.svc.Ask(c.Request.Context(), req.SessionID, req.Question)
	if err != nil {
		h.writeAskError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (h *Handlers) writeAskError(c *gin.Context, logger *slog.Logger, err error) {
	var routingErr *datatypes.RoutingError
	switch {
	case errors.As(err, &routingErr):
		resp := RoutingFailureResponse{
			Error:        routingErr.Error(),
			Code:         "ROUTING_FAILED",
			MissingSlots: routingErr.MissingSlots,
		}
		if routingErr.HasCandidate {
			resp.BestPipeline = routingErr.BestPipeline.String()
		}
		c.JSON(http.StatusUnprocessableEntity, resp)

	case errors.Is(err, datatypes.ErrNoHistoricalSample):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "SIMULATION_DATA_GAP"})

	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "AGGREGATE_NOT_FOUND"})

	default:
		logger.Error("turn failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "PIPELINE_FAILED"})
	}
}

// HandleSession handles GET /v1/football/sessions/:id.
func (h *Handlers) HandleSession(c *gin.Context) {
	sess, err := h.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, datatypes.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found", Code: "SESSION_NOT_FOUND"})
			return
		}
		h.logger.Error("loading session failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "SESSION_LOAD_FAILED"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// HandleRateLimit handles GET /v1/football/ratelimit.
func (h *Handlers) HandleRateLimit(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "session_id query parameter is required", Code: "INVALID_REQUEST"})
		return
	}
	if h.quota == nil {
		c.JSON(http.StatusOK, RateLimitResponse{SessionID: sessionID, Limit: -1, Remaining: -1})
		return
	}
	used, limit := h.quota.Usage(sessionID)
	c.JSON(http.StatusOK, RateLimitResponse{
		SessionID: sessionID,
		Used:      used,
		Limit:     limit,
		Remaining: limit - used,
	})
}

// HandleTeams handles GET /v1/football/teams.
func (h *Handlers) HandleTeams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"teams": h.svc.Teams()})
}

// HandleHealth handles GET /v1/football/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/football/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
