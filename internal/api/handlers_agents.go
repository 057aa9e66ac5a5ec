package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

// ListAgents returns every agent ordered by rank then name.
func (s *Server) ListAgents(c *fiber.Ctx) error {
	agents, err := s.crew.ListAgents(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(agents)
}

// UpsertAgent creates or updates an agent by name.
func (s *Server) UpsertAgent(c *fiber.Ctx) error {
	var spec crew.AgentSpec
	if err := c.BodyParser(&spec); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	agent, err := s.crew.UpsertAgent(c.UserContext(), spec)
	if err != nil {
		return err
	}
	return c.JSON(agent)
}

// GetAgent returns a single agent by id, or by name with ?by=name.
func (s *Server) GetAgent(c *fiber.Ctx) error {
	var (
		agent *models.Agent
		err   error
	)
	if c.Query("by") == "name" {
		agent, err = s.crew.GetAgentByName(c.UserContext(), c.Params("id"))
	} else {
		agent, err = s.crew.GetAgent(c.UserContext(), c.Params("id"))
	}
	if err != nil {
		return err
	}
	return c.JSON(agent)
}

// GetAgentStatus returns an agent with its message counters.
func (s *Server) GetAgentStatus(c *fiber.Ctx) error {
	report, err := s.crew.GetAgentStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(report)
}

// ChangeAgentLifecycle applies one of the lifecycle actions named in the path.
func (s *Server) ChangeAgentLifecycle(c *fiber.Ctx) error {
	ctx, id := c.UserContext(), c.Params("id")

	var (
		agent *models.Agent
		err   error
	)
	switch c.Params("action") {
	case "quarantine":
		agent, err = s.crew.QuarantineAgent(ctx, id)
	case "restore":
		agent, err = s.crew.RestoreAgent(ctx, id)
	case "terminate":
		agent, err = s.crew.TerminateAgent(ctx, id)
	case "activate":
		agent, err = s.crew.ActivateAgent(ctx, id)
	case "deactivate":
		agent, err = s.crew.DeactivateAgent(ctx, id)
	default:
		return fiber.NewError(fiber.StatusNotFound, "unknown action")
	}
	if err != nil {
		return err
	}
	return c.JSON(agent)
}

// GetSubordinates returns every live agent below the given one.
func (s *Server) GetSubordinates(c *fiber.Ctx) error {
	subs, err := s.crew.Subordinates(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(subs)
}

// CompileReport summarizes subordinate reports over ?hours= (default 24).
func (s *Server) CompileReport(c *fiber.Ctx) error {
	report, err := s.crew.CompileReport(c.UserContext(), c.Params("id"), c.QueryInt("hours", 24))
	if err != nil {
		return err
	}
	return c.JSON(report)
}
