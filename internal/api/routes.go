package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func (s *Server) registerRoutes() {
	// Health check.
	s.App.Get("/health", s.HealthCheck)

	api := s.App.Group("/api")
	api.Post("/auth/login", s.Login)
	if s.config.JWTSecret != "" {
		api.Use(requireAuth(s.config.JWTSecret))
	}

	// Agents.
	agents := api.Group("/agents")
	agents.Get("/", s.ListAgents)
	agents.Post("/", s.UpsertAgent)
	agents.Get("/:id", s.GetAgent)
	agents.Get("/:id/status", s.GetAgentStatus)
	agents.Post("/:id/lifecycle/:action", s.ChangeAgentLifecycle)
	agents.Get("/:id/subordinates", s.GetSubordinates)
	agents.Get("/:id/report", s.CompileReport)
	agents.Get("/:id/inbox", s.ReadInbox)
	agents.Put("/:id/trust-score", s.UpdateTrustScore)
	agents.Get("/:id/autonomy", s.GetAutonomy)
	agents.Get("/:id/timing-rules", s.GetTimingRules)
	agents.Put("/:id/timing-rules/:type", s.SetTimingRule)

	// Messages and routing.
	api.Post("/messages", s.SendMessage)
	api.Post("/messages/:id/read", s.MarkRead)
	api.Post("/messages/:id/delivered", s.MarkDelivered)
	api.Get("/routes/check", s.CheckRoute)

	// Private sessions.
	sessions := api.Group("/sessions")
	sessions.Post("/", s.StartSession)
	sessions.Get("/active", s.GetActiveSession)
	sessions.Post("/sweep", s.SweepSessions)
	sessions.Get("/:id", s.GetSession)
	sessions.Post("/:id/messages", s.SendPrivateMessage)
	sessions.Post("/:id/end", s.EndSession)

	// Human.
	humans := api.Group("/humans")
	humans.Put("/:id/burnout", s.UpdateBurnoutScore)
	humans.Get("/:id/state", s.GetHumanState)
	humans.Put("/:id/state", s.UpdateHumanState)
	humans.Get("/:id/trust-config", s.GetTrustConfig)
	humans.Put("/:id/trust-config", s.SetTrustConfig)
	humans.Get("/:id/delivery", s.CheckDelivery)
	humans.Post("/:id/deliver", s.DeliverPending)
	humans.Get("/:id/rejections", s.ListRejections)

	// Decisions and learning.
	api.Post("/decisions", s.LogDecision)
	api.Get("/decisions", s.ListDecisions)
	api.Post("/decisions/:id/feedback", s.RecordFeedback)
	api.Post("/ideas/filter", s.FilterIdea)
	api.Post("/knowledge", s.StoreKnowledge)
	api.Get("/knowledge", s.SearchKnowledge)
	api.Post("/rejections", s.LogRejection)

	// Team mailbox.
	api.Post("/mailbox", s.PostToMailbox)
	api.Post("/mailbox/:id/read", s.MarkMailboxRead)
	api.Get("/teams/:id/mailbox", s.GetTeamMailbox)
	api.Get("/teams/:id/mailbox/summary", s.GetTeamMailboxSummary)

	// Settings and audit.
	api.Get("/settings", s.GetSettings)
	api.Get("/settings/:key", s.GetSetting)
	api.Put("/settings", s.UpdateSettings)
	api.Delete("/settings/:key", s.DeleteSetting)
	api.Get("/audit", s.GetAuditTrail)

	// WebSocket endpoints.
	if s.events == nil {
		return
	}
	ws := s.App.Group("/ws")
	if s.config.JWTSecret != "" {
		ws.Use(requireAuth(s.config.JWTSecret))
	}
	ws.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/events", websocket.New(s.StreamEvents))
}
