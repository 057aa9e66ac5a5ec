package api

import (
	"github.com/gofiber/fiber/v2"
)

// AddHealthCheck registers an extra dependency check reported by /health
// under name.
func (s *Server) AddHealthCheck(name string, check func() error) {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
}

type namedCheck struct {
	name  string
	check func() error
}

// HealthCheck verifies database connectivity and every registered check.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	var errors []string

	if err := s.crew.Ping(c.UserContext()); err != nil {
		errors = append(errors, "database: "+err.Error())
	}
	for _, nc := range s.checks {
		if err := nc.check(); err != nil {
			errors = append(errors, nc.name+": "+err.Error())
		}
	}

	if len(errors) > 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"errors": errors,
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
