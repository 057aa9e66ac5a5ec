package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

// StartSession opens (or returns the open) private session for a pair.
func (s *Server) StartSession(c *fiber.Ctx) error {
	var req crew.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	sess, err := s.crew.StartPrivateSession(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// GetSession returns a session by id.
func (s *Server) GetSession(c *fiber.Ctx) error {
	sess, err := s.crew.GetPrivateSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

// GetActiveSession returns the open session for ?human_id= and ?agent_id=.
func (s *Server) GetActiveSession(c *fiber.Ctx) error {
	humanID, agentID := c.Query("human_id"), c.Query("agent_id")
	if humanID == "" || agentID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "human_id and agent_id are required")
	}
	sess, err := s.crew.GetActivePrivateSession(c.UserContext(), humanID, agentID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fiber.NewError(fiber.StatusNotFound, "no active session")
	}
	return c.JSON(sess)
}

// SendPrivateMessage posts into an open session.
func (s *Server) SendPrivateMessage(c *fiber.Ctx) error {
	var req PrivateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	msg, err := s.crew.SendPrivateMessage(c.UserContext(), c.Params("id"), req.FromID, req.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// EndSession closes a session. ended_by defaults to human.
func (s *Server) EndSession(c *fiber.Ctx) error {
	var req EndSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	res, err := s.crew.EndPrivateSession(c.UserContext(), c.Params("id"), models.SessionEnder(req.EndedBy))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// SweepSessions closes every expired session now.
func (s *Server) SweepSessions(c *fiber.Ctx) error {
	n, err := s.crew.CleanupExpiredSessions(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"closed": n})
}
