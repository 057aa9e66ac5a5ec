package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

// LogDecision records a Crew Boss decision.
func (s *Server) LogDecision(c *fiber.Ctx) error {
	var req crew.DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	d, err := s.crew.LogDecision(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// ListDecisions returns decision history filtered by ?human_id= and ?type=.
func (s *Server) ListDecisions(c *fiber.Ctx) error {
	out, err := s.crew.GetDecisionHistory(c.UserContext(), crew.DecisionFilter{
		HumanID: c.Query("human_id"),
		Type:    models.DecisionType(c.Query("type")),
		Limit:   c.QueryInt("limit", 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// RecordFeedback stores the human's verdict on a decision.
func (s *Server) RecordFeedback(c *fiber.Ctx) error {
	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.crew.RecordHumanFeedback(c.UserContext(), c.Params("id"), req.Override, req.HumanAction, req.Note); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"decision_id": c.Params("id"), "override": req.Override})
}

// FilterIdea checks a strategy idea against past rejections.
func (s *Server) FilterIdea(c *fiber.Ctx) error {
	var req IdeaRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	var (
		v   *crew.IdeaVerdict
		err error
	)
	if req.MessageID != "" {
		v, err = s.crew.FilterIdeaMessage(c.UserContext(), req.RightHandID, req.MessageID)
	} else {
		v, err = s.crew.FilterStrategyIdea(c.UserContext(), req.RightHandID, req.Subject, req.Body)
	}
	if err != nil {
		return err
	}
	return c.JSON(v)
}

// StoreKnowledge adds a knowledge entry.
func (s *Server) StoreKnowledge(c *fiber.Ctx) error {
	var req crew.KnowledgeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	entry, err := s.crew.StoreKnowledge(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// SearchKnowledge matches ?q= against subject, content and tags.
func (s *Server) SearchKnowledge(c *fiber.Ctx) error {
	out, err := s.crew.SearchKnowledge(c.UserContext(), c.Query("q"),
		models.KnowledgeCategory(c.Query("category")), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// LogRejection records an idea the human turned down.
func (s *Server) LogRejection(c *fiber.Ctx) error {
	var req crew.RejectionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	r, err := s.crew.LogRejection(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

// ListRejections returns the human's rejection history.
func (s *Server) ListRejections(c *fiber.Ctx) error {
	out, err := s.crew.GetRejectionHistory(c.UserContext(), c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(out)
}
