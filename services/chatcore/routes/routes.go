// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/lodestar-ai/lodestar/services/chatcore/auth"
	"github.com/lodestar-ai/lodestar/services/chatcore/config"
	"github.com/lodestar-ai/lodestar/services/chatcore/handlers"
	"github.com/lodestar-ai/lodestar/services/chatcore/middleware"
	"github.com/lodestar-ai/lodestar/services/chatcore/observability"
	"github.com/lodestar-ai/lodestar/services/chatcore/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes mounts every chatcore endpoint on the router.
// /health and /metrics are open; the chat endpoints sit behind session
// validation.
func SetupRoutes(router *gin.Engine, cfg *config.Config, service *services.ChatService,
	validator auth.SessionValidator, metrics *observability.ChatMetrics) {

	router.GET("/health", handlers.HealthCheck(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := router.Group("/")
	authed.Use(middleware.AuthMiddleware(validator))
	{
		authed.POST("/chat", handlers.HandleChat(service, metrics))
		authed.POST("/chat/compare", handlers.HandleCompare(service, metrics))
		authed.POST("/chat/comparison/select", handlers.HandleComparisonSelect(service, metrics))
	}
}
