package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets default Cache-Control headers per endpoint
// class. Handlers that set their own header win.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		// Default cache times by endpoint pattern
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0" // GraphQL varies wildly

		case path == "/v1/inventory" || path == "/v1/trees":
			ttl = "private, max-age=30" // Viewport results shift with pan and zoom

		case strings.HasSuffix(path, "/export.csv"):
			ttl = "no-store" // Downloads reflect the moment they were requested

		case strings.HasPrefix(path, "/v1/outbox"):
			ttl = "no-store" // Queue state changes under the reader

		case strings.HasPrefix(path, "/v1/plans") && strings.Count(path, "/") > 2:
			ttl = "public, max-age=60" // Single plan

		case strings.HasPrefix(path, "/v1/plans"):
			ttl = "public, max-age=30" // Plan lists

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=60" // Default for API endpoints
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
