package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/retrieval"
	"github.com/tutor-agent/backend/pkg/logger"
)

type ContextHandler struct {
	maxChars int
}

func NewContextHandler(maxChars int) *ContextHandler {
	return &ContextHandler{
		maxChars: maxChars,
	}
}

type contextRequest struct {
	Results  []retrieval.MergedResult `json:"results"`
	MaxChars int                      `json:"max_chars"`
}

func (h *ContextHandler) HandleBuildContext(c *fiber.Ctx) error {
	var req contextRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = h.maxChars
	}

	built := retrieval.BuildContext(req.Results, maxChars)

	return c.JSON(built)
}
