package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/helmcode/crew-bus/internal/crew"
)

// GetSettings returns all settings.
func (s *Server) GetSettings(c *fiber.Ctx) error {
	settings, err := s.crew.ListConfig(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(settings)
}

// GetSetting returns one setting by key.
func (s *Server) GetSetting(c *fiber.Ctx) error {
	settings, err := s.crew.ListConfig(c.UserContext())
	if err != nil {
		return err
	}
	for _, st := range settings {
		if st.Key == c.Params("key") {
			return c.JSON(st)
		}
	}
	return fiber.NewError(fiber.StatusNotFound, "setting not found")
}

// UpdateSettings creates or updates a setting.
func (s *Server) UpdateSettings(c *fiber.Ctx) error {
	var req UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" {
		return fiber.NewError(fiber.StatusBadRequest, "key is required")
	}
	setting, err := s.crew.SetConfig(c.UserContext(), req.Key, req.Value)
	if err != nil {
		return err
	}
	return c.JSON(setting)
}

// DeleteSetting removes a setting by key.
func (s *Server) DeleteSetting(c *fiber.Ctx) error {
	if err := s.crew.DeleteConfig(c.UserContext(), c.Params("key")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetAuditTrail returns audit entries newest first. since and until are RFC 3339.
func (s *Server) GetAuditTrail(c *fiber.Ctx) error {
	f := crew.AuditFilter{
		AgentID:   c.Query("agent_id"),
		EventType: c.Query("event_type"),
		Limit:     c.QueryInt("limit", 0),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, p.name+" must be an RFC 3339 timestamp")
		}
		*p.dst = &t
	}

	entries, err := s.crew.GetAuditTrail(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}
