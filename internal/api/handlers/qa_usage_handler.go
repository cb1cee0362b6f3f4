package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tutor-agent/backend/internal/retrieval"
)

type QAUsageHandler struct {
	matcher *retrieval.QAMatcher
}

func NewQAUsageHandler(matcher *retrieval.QAMatcher) *QAUsageHandler {
	return &QAUsageHandler{
		matcher: matcher,
	}
}

type qaUsageRequest struct {
	QAID       string  `json:"qa_id"`
	SessionID  string  `json:"session_id"`
	Query      string  `json:"query"`
	Similarity float64 `json:"similarity_score"`
	Direct     bool    `json:"direct"`
}

// HandleTrackUsage records that a stored QA pair was served for a query.
// Recording happens in the background, so the handler acknowledges
// immediately.
func (h *QAUsageHandler) HandleTrackUsage(c *fiber.Ctx) error {
	var req qaUsageRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.QAID == "" || req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "qa_id and session_id are required",
		})
	}

	h.matcher.TrackUsage(req.QAID, req.SessionID, req.Query, req.Similarity, req.Direct)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "accepted",
	})
}
