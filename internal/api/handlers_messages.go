package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

// SendMessage routes a message between two agents.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req crew.SendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	res, err := s.crew.SendMessage(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// ReadInbox lists an agent's messages, optionally filtered by ?status=.
func (s *Server) ReadInbox(c *fiber.Ctx) error {
	msgs, err := s.crew.ReadInbox(c.UserContext(), c.Params("id"), models.MessageStatus(c.Query("status")))
	if err != nil {
		return err
	}
	return c.JSON(msgs)
}

// MarkRead moves a message to read.
func (s *Server) MarkRead(c *fiber.Ctx) error {
	changed, err := s.crew.MarkRead(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ReadResponse{ID: c.Params("id"), Changed: changed})
}

// MarkDelivered moves a queued message to delivered.
func (s *Server) MarkDelivered(c *fiber.Ctx) error {
	changed, err := s.crew.MarkDelivered(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ReadResponse{ID: c.Params("id"), Changed: changed})
}

// CheckRoute dry-runs the routing resolver for ?from= and ?to=.
func (s *Server) CheckRoute(c *fiber.Ctx) error {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		return fiber.NewError(fiber.StatusBadRequest, "from and to are required")
	}
	d, err := s.crew.CheckRoute(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(d)
}
