package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/helmcode/crew-bus/internal/crew"
)

// requestLogger returns a middleware that logs each request.
func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not run yet; report the status it will set.
			status = statusFor(err)
		}
		logger.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.Locals("requestid"),
		)
		return err
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	var ve *crew.ValidationError
	var pe *crew.PermissionError
	var se *crew.StateError
	var re *crew.RateLimitError

	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &pe):
		return fiber.StatusForbidden
	case errors.As(err, &ve):
		if errors.Is(err, crew.ErrNotFound) {
			return fiber.StatusNotFound
		}
		return fiber.StatusBadRequest
	case errors.As(err, &se):
		return fiber.StatusConflict
	case errors.As(err, &re):
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusInternalServerError
}

// errorHandler returns JSON for every error. Internal errors (5xx) return a
// generic message to avoid leaking implementation details.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		resp := ErrorResponse{Error: "internal server error"}

		if code < 500 {
			resp.Error = err.Error()
			var fe *fiber.Error
			if errors.As(err, &fe) {
				resp.Error = fe.Message
			}
			resp.Blocked = errors.Is(err, crew.ErrBlocked)
		} else {
			logger.Error("unhandled error", "error", err.Error(), "path", c.Path())
		}

		return c.Status(code).JSON(resp)
	}
}

// requireAuth validates an HS256 bearer token. Websocket clients may pass
// the token as ?token= since browsers cannot set headers on upgrade.
func requireAuth(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		raw := c.Query("token")
		if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		}
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals("subject", claims.Subject)
		return c.Next()
	}
}

// rateLimiter applies a token bucket per client IP. Idle clients are
// dropped once a minute until ctx is cancelled.
func rateLimiter(ctx context.Context, perMinute, burst int) fiber.Handler {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	clients := make(map[string]*client)
	var mu sync.Mutex

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				for ip, cl := range clients {
					if time.Since(cl.lastSeen) > 3*time.Minute {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(c *fiber.Ctx) error {
		ip := c.IP()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(perMinute)/60.0, burst)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
