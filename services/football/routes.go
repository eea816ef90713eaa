// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package football

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all /v1/football/* endpoints with the router
// group. The group should already carry any required middleware.
//
// Endpoints:
//
//	POST /v1/football/ask - Answer a question in session context
//	GET  /v1/football/sessions/:id - Inspect stored session state
//	GET  /v1/football/ratelimit - Report the session's tier-3 budget
//	GET  /v1/football/teams - List recognized franchise codes
//	GET  /v1/football/health - Health check
//	GET  /v1/football/ready - Readiness check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	football := rg.Group("/football")
	{
		football.POST("/ask", handlers.HandleAsk)
		football.GET("/sessions/:id", handlers.HandleSession)
		football.GET("/ratelimit", handlers.HandleRateLimit)
		football.GET("/teams", handlers.HandleTeams)
		football.GET("/health", handlers.HandleHealth)
		football.GET("/ready", handlers.HandleReady)
	}
}
