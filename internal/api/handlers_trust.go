package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

func parseScore(c *fiber.Ctx) (int, error) {
	var req ScoreRequest
	if err := c.BodyParser(&req); err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Score == nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "score is required")
	}
	return *req.Score, nil
}

// UpdateTrustScore sets an agent's trust score.
func (s *Server) UpdateTrustScore(c *fiber.Ctx) error {
	score, err := parseScore(c)
	if err != nil {
		return err
	}
	if err := s.crew.UpdateTrustScore(c.UserContext(), c.Params("id"), score); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": c.Params("id"), "trust_score": score})
}

// GetAutonomy returns the Crew Boss's autonomy tier and track record.
func (s *Server) GetAutonomy(c *fiber.Ctx) error {
	level, err := s.crew.GetAutonomyLevel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(level)
}

// UpdateBurnoutScore sets the human's burnout score.
func (s *Server) UpdateBurnoutScore(c *fiber.Ctx) error {
	score, err := parseScore(c)
	if err != nil {
		return err
	}
	if err := s.crew.UpdateBurnoutScore(c.UserContext(), c.Params("id"), score); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": c.Params("id"), "burnout_score": score})
}

// GetTrustConfig returns the human's trust config.
func (s *Server) GetTrustConfig(c *fiber.Ctx) error {
	tc, err := s.crew.GetTrustConfig(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if tc == nil {
		return fiber.NewError(fiber.StatusNotFound, "trust config not found")
	}
	return c.JSON(tc)
}

// SetTrustConfig upserts the human's trust config.
func (s *Server) SetTrustConfig(c *fiber.Ctx) error {
	var req crew.TrustConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.HumanID = c.Params("id")
	tc, err := s.crew.SetTrustConfig(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(tc)
}

// GetHumanState returns the human's state, creating defaults on first read.
func (s *Server) GetHumanState(c *fiber.Ctx) error {
	st, err := s.crew.GetHumanState(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// UpdateHumanState changes the provided human state fields.
func (s *Server) UpdateHumanState(c *fiber.Ctx) error {
	var req HumanStateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	st, err := s.crew.UpdateHumanState(c.UserContext(), c.Params("id"), req.HumanStateUpdate, req.UpdatedBy)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// GetTimingRules lists an agent's timing rules.
func (s *Server) GetTimingRules(c *fiber.Ctx) error {
	rules, err := s.crew.GetTimingRules(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(rules)
}

// SetTimingRule creates or replaces one timing rule. enabled defaults to true.
func (s *Server) SetTimingRule(c *fiber.Ctx) error {
	var req TimingRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule, err := s.crew.SetTimingRule(c.UserContext(), c.Params("id"),
		models.TimingRuleType(c.Params("type")), req.Config, enabled)
	if err != nil {
		return err
	}
	return c.JSON(rule)
}

// CheckDelivery asks the timing gate about a message of ?priority= (default normal).
func (s *Server) CheckDelivery(c *fiber.Ctx) error {
	d, err := s.crew.ShouldDeliverNow(c.UserContext(), c.Params("id"),
		models.Priority(c.Query("priority", string(models.PriorityNormal))))
	if err != nil {
		return err
	}
	return c.JSON(d)
}

// DeliverPending releases queued messages the timing gate now allows.
func (s *Server) DeliverPending(c *fiber.Ctx) error {
	report, err := s.crew.DeliverPending(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(report)
}
