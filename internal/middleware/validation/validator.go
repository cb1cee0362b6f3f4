package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxQueryLength = 2000

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(union\s+select|insert\s+into|delete\s+from|drop\s+table|exec\s*\(|script\s*>)`)
	xssPattern          = regexp.MustCompile(`(?i)(<script|javascript:|on\w+\s*=)`)
)

type queryBody struct {
	Query string `json:"query"`
}

// Middleware screens incoming retrieval requests for malformed or
// obviously hostile payloads before they reach the pipeline.
func Middleware(logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Content-Type must be application/json",
			})
		}

		if !strings.HasPrefix(c.Path(), "/api/v1/") {
			return c.Next()
		}

		var body queryBody
		if err := c.BodyParser(&body); err != nil {
			// Let the handler produce its own parse error.
			return c.Next()
		}

		if len(body.Query) > maxQueryLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Query exceeds maximum length",
			})
		}

		if sqlInjectionPattern.MatchString(body.Query) || xssPattern.MatchString(body.Query) {
			logger.Warn("Rejected suspicious query",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Query contains disallowed content",
			})
		}

		return c.Next()
	}
}
