package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/evaluation"
	"github.com/tutor-agent/backend/internal/retrieval"
	"github.com/tutor-agent/backend/pkg/logger"
)

type EvaluationHandler struct {
	evaluator *evaluation.Evaluator
	reranker  *evaluation.Reranker
}

func NewEvaluationHandler(evaluator *evaluation.Evaluator, reranker *evaluation.Reranker) *EvaluationHandler {
	return &EvaluationHandler{
		evaluator: evaluator,
		reranker:  reranker,
	}
}

type evaluateRequest struct {
	Query           string                   `json:"query"`
	Results         []retrieval.MergedResult `json:"results"`
	FilterThreshold float64                  `json:"filter_threshold"`
	Rerank          bool                     `json:"rerank"`
}

// HandleEvaluate runs the quality gate over fused candidates. When the
// verdict is refine, the filtered list is returned alongside it; when rerank
// is requested the surviving candidates are reordered by the cross-encoder.
func (h *EvaluationHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req evaluateRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	verdict := h.evaluator.Evaluate(c.Context(), req.Query, req.Results)

	results := req.Results
	if verdict.Action == evaluation.ActionRefine {
		results = h.evaluator.FilterByThreshold(c.Context(), req.Query, results, req.FilterThreshold)
	}

	response := fiber.Map{
		"verdict": verdict,
		"results": results,
	}

	if req.Rerank && h.reranker != nil {
		reranked := h.reranker.Rerank(c.Context(), req.Query, results)
		response["results"] = reranked.Results
		response["rerank"] = fiber.Map{
			"reordered": reranked.Reordered,
			"max_score": reranked.MaxScore,
			"avg_score": reranked.AvgScore,
		}
	}

	return c.JSON(response)
}
