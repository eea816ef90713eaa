// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package football

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService(t, nil)
	handlers := NewHandlers(svc, nil, nil)

	engine := gin.New()
	RegisterRoutes(engine.Group("/v1"), handlers)
	return engine
}

func postAsk(t *testing.T, engine *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/football/ask", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHandleAskReturnsAnswer(t *testing.T) {
	engine := newTestRouter(t)

	w := postAsk(t, engine, AskRequest{SessionID: "h1", Question: "How good are the Chiefs?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var answer Answer
	if err := json.Unmarshal(w.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decoding answer: %v", err)
	}
	if answer.Pipeline != "team_profile" {
		t.Errorf("pipeline = %q, want team_profile", answer.Pipeline)
	}
	if answer.SessionID != "h1" {
		t.Errorf("session_id = %q, want h1", answer.SessionID)
	}
	if answer.Rendered == "" {
		t.Error("rendered text is empty")
	}
}

func TestHandleAskAssignsSessionID(t *testing.T) {
	engine := newTestRouter(t)

	w := postAsk(t, engine, AskRequest{Question: "How good are the Chiefs?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var answer Answer
	if err := json.Unmarshal(w.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decoding answer: %v", err)
	}
	if answer.SessionID == "" {
		t.Error("handler did not assign a session id")
	}
}

func TestHandleAskRejectsEmptyQuestion(t *testing.T) {
	engine := newTestRouter(t)

	w := postAsk(t, engine, map[string]string{"session_id": "h2"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", resp.Code)
	}
}

func TestHandleAskRejectsBadTeamCode(t *testing.T) {
	engine := newTestRouter(t)

	w := postAsk(t, engine, AskRequest{
		SessionID:    "h2b",
		Question:     "How good are they?",
		FavoriteTeam: "Kansas City",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a non-code favorite team", w.Code)
	}
}

func TestHandleAskRoutingFailureBody(t *testing.T) {
	engine := newTestRouter(t)

	w := postAsk(t, engine, AskRequest{SessionID: "h3", Question: "run or pass?"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", w.Code, w.Body.String())
	}

	var resp RoutingFailureResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding routing failure body: %v", err)
	}
	if resp.Code != "ROUTING_FAILED" {
		t.Errorf("code = %q, want ROUTING_FAILED", resp.Code)
	}
	if resp.BestPipeline != "situation_epa" {
		t.Errorf("best_pipeline = %q, want situation_epa", resp.BestPipeline)
	}
	missing := map[string]bool{}
	for _, slot := range resp.MissingSlots {
		missing[slot] = true
	}
	if !missing["down"] || !missing["distance"] {
		t.Errorf("missing_slots = %v, want down and distance", resp.MissingSlots)
	}
}

func TestHandleAskStoresPreferences(t *testing.T) {
	engine := newTestRouter(t)

	w := postAsk(t, engine, AskRequest{
		SessionID:       "h4",
		Question:        "How good are they?",
		FavoriteTeam:    "DAL",
		PreferredSeason: 2023,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var answer Answer
	if err := json.Unmarshal(w.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decoding answer: %v", err)
	}
	if answer.Resolved.Team1 == nil || *answer.Resolved.Team1 != "DAL" {
		t.Errorf("team1 = %v, want the favorite team DAL", answer.Resolved.Team1)
	}
}

func TestHandleSessionNotFound(t *testing.T) {
	engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/football/sessions/nope", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Code != "SESSION_NOT_FOUND" {
		t.Errorf("code = %q, want SESSION_NOT_FOUND", resp.Code)
	}
}

func TestHandleSessionReturnsTurns(t *testing.T) {
	engine := newTestRouter(t)

	if w := postAsk(t, engine, AskRequest{SessionID: "h5", Question: "How good are the Chiefs?"}); w.Code != http.StatusOK {
		t.Fatalf("seeding turn failed: %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/football/sessions/h5", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var sess struct {
		ID    string `json:"id"`
		Turns []struct {
			Pipeline string `json:"pipeline"`
		} `json:"turns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	if sess.ID != "h5" || len(sess.Turns) != 1 {
		t.Errorf("session = %+v, want id h5 with one turn", sess)
	}
}

func TestHandleRateLimitWithoutQuota(t *testing.T) {
	engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/football/ratelimit?session_id=h6", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp RateLimitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding rate limit body: %v", err)
	}
	if resp.Limit != -1 {
		t.Errorf("limit = %d, want -1 when tier 3 is disabled", resp.Limit)
	}
}

func TestHandleRateLimitRequiresSessionID(t *testing.T) {
	engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/football/ratelimit", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleTeams(t *testing.T) {
	engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/football/teams", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Teams []string `json:"teams"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding teams body: %v", err)
	}
	found := false
	for _, code := range resp.Teams {
		if code == "KC" {
			found = true
		}
	}
	if !found {
		t.Errorf("teams list %v does not contain KC", resp.Teams)
	}
}
