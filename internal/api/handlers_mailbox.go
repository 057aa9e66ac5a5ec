package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helmcode/crew-bus/internal/crew"
)

// PostToMailbox sends an entry to the sender's team mailbox.
func (s *Server) PostToMailbox(c *fiber.Ctx) error {
	var req crew.MailboxRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	entry, err := s.crew.SendToTeamMailbox(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// GetTeamMailbox lists a team's entries; ?unread=true keeps unread only.
func (s *Server) GetTeamMailbox(c *fiber.Ctx) error {
	out, err := s.crew.GetTeamMailbox(c.UserContext(), c.Params("id"),
		c.QueryBool("unread", false), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// GetTeamMailboxSummary returns unread counters for a team.
func (s *Server) GetTeamMailboxSummary(c *fiber.Ctx) error {
	sum, err := s.crew.GetTeamMailboxSummary(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sum)
}

// MarkMailboxRead marks one entry read.
func (s *Server) MarkMailboxRead(c *fiber.Ctx) error {
	changed, err := s.crew.MarkMailboxRead(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ReadResponse{ID: c.Params("id"), Changed: changed})
}
